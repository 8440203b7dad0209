package portfolio

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

func scores(t *testing.T, keys []string, vals ...frame.Value) frame.Series {
	t.Helper()
	s, err := frame.NewSeries(keys, vals)
	require.NoError(t, err)
	return s
}

func sumWeights(s frame.Series) float64 {
	total := 0.0
	for _, v := range s.Values() {
		f, _ := v.Get()
		total += f
	}
	return total
}

func TestSelectTopN(t *testing.T) {
	top, err := Select(scores(t, []string{"AAA", "BBB", "CCC", "DDD"},
		frame.Some(3), frame.Some(1), frame.Some(2), frame.None()), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "CCC"}, top.Keys())
}

func TestSelectStableTies(t *testing.T) {
	top, err := Select(scores(t, []string{"X", "Y", "Z"}, frame.Values(5, 5, 5)...), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, top.Keys())
}

func TestSelectInvalid(t *testing.T) {
	_, err := Select(scores(t, []string{"A"}, frame.Some(1)), 0)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = Select(frame.Series{}, 3)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestAllocateMethodsSumToOne(t *testing.T) {
	selected := scores(t, []string{"A", "B", "C"}, frame.Values(80, 15, 5)...)
	for _, m := range []Method{Equal, ScoreProportional, VolatilityInverse} {
		t.Run(string(m), func(t *testing.T) {
			got, err := Allocate(selected, m)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, sumWeights(got), 1e-8)
			for _, v := range got.Values() {
				f, _ := v.Get()
				assert.GreaterOrEqual(t, f, 0.0)
			}
		})
	}
}

func TestAllocateScoreProportional(t *testing.T) {
	got, err := Allocate(scores(t, []string{"A", "B"}, frame.Values(75, 25)...), "score")
	require.NoError(t, err)
	assert.Equal(t, frame.Values(0.75, 0.25), got.Values())
}

func TestAllocateScoreZeroSumFallsBackToEqual(t *testing.T) {
	cases := []struct {
		name string
		keys []string
		vals []frame.Value
	}{
		{"zeros", []string{"A", "B"}, frame.Values(0, 0)},
		{"mixed signs", []string{"A", "B"}, frame.Values(1, -1)},
		{"one positive two negative", []string{"A", "B", "C"}, frame.Values(2, -1, -1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Allocate(scores(t, tc.keys, tc.vals...), ScoreProportional)
			require.NoError(t, err)
			want := 1 / float64(len(tc.keys))
			for _, f := range floats(got) {
				assert.InDelta(t, want, f, 1e-12)
			}
		})
	}
}

func TestAllocateScoreClampsNegativesWhenSumNonZero(t *testing.T) {
	got, err := Allocate(scores(t, []string{"A", "B", "C"}, frame.Values(3, -1, 1)...), ScoreProportional)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0, 0.25}, floats(got), 1e-12)
}

func TestAllocateVolatilityInverse(t *testing.T) {
	got, err := Allocate(scores(t, []string{"A", "B", "C"}, frame.Values(0.1, 0.3, 0)...), "volatility")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25, 0}, floats(got), 1e-12)

	all, err := Allocate(scores(t, []string{"A", "B"}, frame.Values(0, 0)...), VolatilityInverse)
	require.NoError(t, err)
	assert.Equal(t, frame.Values(0.5, 0.5), all.Values())
}

func TestAllocateInvalid(t *testing.T) {
	_, err := Allocate(frame.Series{}, Equal)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = Allocate(scores(t, []string{"A"}, frame.Some(1)), Method("kelly"))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestExporterRoundTrip(t *testing.T) {
	holdings := []Holding{
		{Ticker: "AAA", Score: 100, Allocation: 0.5},
		{Ticker: "CCC", Score: 62.5, Allocation: 0.25},
		{Ticker: "BBB", Score: 40, Allocation: 0.25},
	}
	paths, err := NewExporter(t.TempDir()).Export("portfolio", holdings)
	require.NoError(t, err)

	fromCSV, err := ReadCSV(paths.CSV)
	require.NoError(t, err)
	assert.Equal(t, holdings, fromCSV)

	fromXLSX, err := ReadXLSX(paths.XLSX)
	require.NoError(t, err)
	assert.Equal(t, holdings, fromXLSX)

	data, err := os.ReadFile(paths.JSON)
	require.NoError(t, err)
	var fromJSON []Holding
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, holdings, fromJSON)
}

func TestHoldingsFollowSelectionOrder(t *testing.T) {
	sel := scores(t, []string{"B", "A"}, frame.Values(9, 4)...)
	alloc := scores(t, []string{"A", "B"}, frame.Values(0.4, 0.6)...)
	assert.Equal(t, []Holding{{"B", 9, 0.6}, {"A", 4, 0.4}}, Holdings(sel, alloc))
}

func floats(s frame.Series) []float64 {
	out := make([]float64, s.Len())
	for i, v := range s.Values() {
		out[i], _ = v.Get()
	}
	return out
}
