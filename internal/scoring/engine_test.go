package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

func normalizedTable(t *testing.T) frame.Table {
	t.Helper()
	tbl, err := frame.NewTable([]string{"A", "B"}, []string{"IndA", "IndB"}, [][]frame.Value{
		frame.Values(0, 1),
		frame.Values(1, 0),
	})
	require.NoError(t, err)
	return tbl
}

func series(t *testing.T, keys []string, vals ...frame.Value) frame.Series {
	t.Helper()
	s, err := frame.NewSeries(keys, vals)
	require.NoError(t, err)
	return s
}

func TestWeightIndicators(t *testing.T) {
	got, err := WeightIndicators(normalizedTable(t), map[string]float64{"IndA": 2, "IndB": 1})
	require.NoError(t, err)
	assert.Equal(t, frame.Values(1, 2), got.Values())

	def, err := WeightIndicators(normalizedTable(t), nil)
	require.NoError(t, err)
	assert.Equal(t, frame.Values(1, 1), def.Values())
}

func TestWeightIndicatorsUnknownKey(t *testing.T) {
	_, err := WeightIndicators(normalizedTable(t), map[string]float64{"Nope": 1})
	assert.True(t, errors.Is(err, errs.ErrKeyNotFound))
}

func TestWeightMomentumTakesMean(t *testing.T) {
	ranks, err := frame.NewTable([]string{"A", "B"}, []string{"Lookback_20", "Lookback_60"}, [][]frame.Value{
		frame.Values(1, 3),
		{frame.Some(2), frame.None()},
	})
	require.NoError(t, err)

	got, err := WeightMomentum(ranks, map[string]float64{"Lookback_20": 1, "Lookback_60": 2})
	require.NoError(t, err)
	assert.Equal(t, frame.Values(3.5, 2), got.Values())
}

func TestAggregatePropagatesMissingMomentum(t *testing.T) {
	ind := series(t, []string{"A", "B", "C"}, frame.Values(1, 2, 3)...)
	mom := series(t, []string{"C", "A", "Z"}, frame.Values(1, 2, 9)...)

	got, err := Aggregate(ind, mom, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got.Keys())
	assert.Equal(t, []frame.Value{frame.Some(0), frame.None(), frame.Some(2.5)}, got.Values())
}

func TestScaleRange(t *testing.T) {
	got, err := Scale(series(t, []string{"A", "B", "C", "D"}, frame.Some(-2), frame.Some(0), frame.None(), frame.Some(2)))
	require.NoError(t, err)
	assert.Equal(t, []frame.Value{frame.Some(0), frame.Some(50), frame.None(), frame.Some(100)}, got.Values())
}

func TestScaleConstant(t *testing.T) {
	got, err := Scale(series(t, []string{"A", "B"}, frame.Values(7, 7)...))
	require.NoError(t, err)
	assert.Equal(t, frame.Values(50, 50), got.Values())
}

func TestScoringIsDeterministic(t *testing.T) {
	run := func() frame.Series {
		weighted, err := WeightIndicators(normalizedTable(t), map[string]float64{"IndA": 2, "IndB": 1})
		require.NoError(t, err)
		combined, err := Aggregate(weighted, series(t, []string{"A", "B"}, frame.Values(1, 2)...), 0.5)
		require.NoError(t, err)
		scaled, err := Scale(combined)
		require.NoError(t, err)
		return scaled
	}
	first, second := run(), run()
	assert.Equal(t, first.Entries(), second.Entries())
	// A: 1 - 0.5 = 0.5, B: 2 - 1 = 1
	assert.Equal(t, frame.Values(0, 100), first.Values())
}
