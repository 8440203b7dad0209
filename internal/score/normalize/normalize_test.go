package normalize

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

func sampleTable(t *testing.T) frame.Table {
	t.Helper()
	tbl, err := frame.NewTable(
		[]string{"A", "B", "C"},
		[]string{"IndicatorA", "IndicatorB", "IndicatorC"},
		[][]frame.Value{
			{frame.Some(1), frame.Some(1), frame.Some(1)},
			{frame.Some(2), frame.Some(1), frame.None()},
			{frame.Some(3), frame.Some(1), frame.Some(3)},
		},
	)
	require.NoError(t, err)
	return tbl
}

func TestHandleMissingMethods(t *testing.T) {
	tbl := sampleTable(t)

	dropped, err := HandleMissing(tbl, Drop)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, dropped.Rows())

	filled, err := HandleMissing(tbl, FFill)
	require.NoError(t, err)
	assert.False(t, filled.AnyMissing())
	v, _ := filled.Get("B", "IndicatorC")
	assert.Equal(t, frame.Some(1), v)

	zeroed, err := HandleMissing(tbl, Zero)
	require.NoError(t, err)
	v, _ = zeroed.Get("B", "IndicatorC")
	assert.Equal(t, frame.Some(0), v)

	// original table is untouched
	v, _ = tbl.Get("B", "IndicatorC")
	assert.False(t, v.Valid())
}

func TestFFillBackfillsLeadingGap(t *testing.T) {
	tbl, err := frame.NewTable([]string{"A", "B"}, []string{"X"},
		[][]frame.Value{{frame.None()}, {frame.Some(4)}})
	require.NoError(t, err)

	filled, err := HandleMissing(tbl, FFill)
	require.NoError(t, err)
	v, _ := filled.Get("A", "X")
	assert.Equal(t, frame.Some(4), v)
}

func TestHandleMissingUnknownMethod(t *testing.T) {
	_, err := HandleMissing(sampleTable(t), Method("interpolate"))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestZScoreConstantColumnIsZero(t *testing.T) {
	n, err := NewNormalizer(FFill)
	require.NoError(t, err)
	_, normalized, err := n.Apply(sampleTable(t))
	require.NoError(t, err)

	col, err := normalized.Column("IndicatorB")
	require.NoError(t, err)
	for _, v := range col.Values() {
		assert.Equal(t, frame.Some(0), v)
	}

	for _, name := range normalized.Columns() {
		c, _ := normalized.Column(name)
		assert.InDelta(t, 0, c.Sum()/float64(c.Len()), 1e-8)
	}
}

func TestZScoreUsesPopulationStd(t *testing.T) {
	tbl, err := frame.NewTable([]string{"A", "B", "C"}, []string{"X"},
		[][]frame.Value{{frame.Some(1)}, {frame.Some(2)}, {frame.Some(3)}})
	require.NoError(t, err)

	z, err := ZScore(tbl)
	require.NoError(t, err)
	v, _ := z.Get("C", "X")
	f, ok := v.Get()
	require.True(t, ok)
	assert.InDelta(t, 1/math.Sqrt(2.0/3.0), f, 1e-12)
}

func TestZScoreMissingCellScoresZero(t *testing.T) {
	z, err := ZScore(sampleTable(t))
	require.NoError(t, err)
	v, _ := z.Get("B", "IndicatorC")
	assert.Equal(t, frame.Some(0), v)
}

func TestParseMethodAliases(t *testing.T) {
	m, err := ParseMethod("forward-then-backward-fill")
	require.NoError(t, err)
	assert.Equal(t, FFill, m)
}
