package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/market"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Parameters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.InitialCash.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "equal", cfg.AllocationMethod)
	assert.Equal(t, ModelComposite, cfg.AllocationModel)
	assert.Equal(t, []int{20, 60, 120}, cfg.MomentumLookbacks)
	assert.Equal(t, 0.3, cfg.TopFraction)
	assert.Equal(t, "ffill", cfg.MissingValueMethod)
	assert.Equal(t, 14, cfg.IndicatorParameters.RSIWindow)
	assert.Equal(t, market.MustDate("2023-12-31"), cfg.TrainingEnd())
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestLoadKeepsFileValues(t *testing.T) {
	path := writeConfig(t, `
Tickers: [AAA, BBB]
TrainingEndDate: "2020-12-31"
InitialCash: 2500.50
AllocationMethod: volatility-inverse
MomentumLookbacks: [5, 10]
LookbackWeights:
  Lookback_5: 2
IndicatorParameters:
  SMAWindow: 50
Provider:
  Timeout: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, cfg.Tickers)
	assert.Equal(t, market.MustDate("2020-12-31"), cfg.TrainingEnd())
	assert.Equal(t, "2500.5", cfg.InitialCash.String())
	assert.Equal(t, 50, cfg.IndicatorParameters.SMAWindow)
	assert.Equal(t, 20, cfg.IndicatorParameters.EMAWindow)
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout)

	pc := cfg.Pipeline()
	assert.Equal(t, []int{5, 10}, pc.Lookbacks)
	assert.Equal(t, map[string]float64{"Lookback_5": 2}, pc.LookbackWeights)

	bc := cfg.Backtest()
	assert.Equal(t, market.MustDate("2020-01-01"), bc.HistoryStart)
	assert.Equal(t, market.MustDate("2020-12-31"), bc.TrainingEnd)
	assert.Equal(t, market.MustDate("2024-12-31"), bc.End)
	assert.Equal(t, []string{"AAA", "BBB"}, bc.Universe)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ROTATOR_TOP_N", "3")
	t.Setenv("ROTATOR_INITIAL_CASH", "500")
	t.Setenv("ROTATOR_INDICATORS_RSI_WINDOW", "7")
	t.Setenv("ROTATOR_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(writeConfig(t, "TopN: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TopN)
	assert.Equal(t, "500", cfg.InitialCash.String())
	assert.Equal(t, 7, cfg.IndicatorParameters.RSIWindow)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"unknown method", "AllocationMethod: momentum\n", errs.ErrInvalidArgument},
		{"unknown model", "AllocationModel: ml\n", errs.ErrInvalidArgument},
		{"bad date", "BacktestStart: 2024/01/01\n", errs.ErrInvalidArgument},
		{"inverted horizon", "BacktestStart: \"2024-06-01\"\nBacktestEnd: \"2024-01-01\"\n", errs.ErrInvalidArgument},
		{"training before history", "TrainingEndDate: \"2019-01-01\"\n", errs.ErrInvalidArgument},
		{"negative cash", "InitialCash: -5\n", errs.ErrInvalidArgument},
		{"fraction above one", "TopFraction: 1.5\n", errs.ErrInvalidArgument},
		{"unknown lookback key", "LookbackWeights:\n  Lookback_7: 1\n", errs.ErrKeyNotFound},
		{"database without dsn", "Database:\n  Enabled: true\n", errs.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "Tickers: [AAA\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestSaveLookbackWeights(t *testing.T) {
	path := writeConfig(t, `# portfolio universe
Tickers: [AAA, BBB]
LookbackWeights:
  Lookback_20: 1
TopN: 2
`)
	require.NoError(t, SaveLookbackWeights(path, map[string]float64{
		"Lookback_20":  0.5,
		"Lookback_60":  2.25,
		"Lookback_120": 0,
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# portfolio universe"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, cfg.Tickers)
	assert.Equal(t, 2, cfg.TopN)
	assert.Equal(t, map[string]float64{"Lookback_20": 0.5, "Lookback_60": 2.25, "Lookback_120": 0}, cfg.LookbackWeights)
}

func TestSaveLookbackWeightsCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	require.NoError(t, SaveLookbackWeights(path, map[string]float64{"Lookback_20": 1.5}))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.LookbackWeights["Lookback_20"])
}
