package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTeesToFile(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "application.log")
	closer, err := Setup(Options{Level: "debug", File: path, JSON: true})
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupRejectsBadLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestProgressRendersBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress("backtest", 4, &buf)
	p.Increment("period 1")
	p.Increment("")

	assert.Equal(t, 2, p.Current())
	assert.Contains(t, buf.String(), "2/4 (50.0%)")
	assert.Contains(t, buf.String(), "period 1")

	p.Finish()
	assert.Contains(t, buf.String(), "backtest completed (2 steps")
}
