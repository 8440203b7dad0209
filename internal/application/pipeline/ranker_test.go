package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/metrics"
	"github.com/sawpanic/rotator/internal/score/portfolio"
)

var drifts = map[string]float64{
	"AAA": 0.004,
	"BBB": 0.001,
	"CCC": -0.002,
	"DDD": 0.0025,
	"EEE": 0.0,
}

func history(t *testing.T, days int) market.PriceMatrix {
	t.Helper()
	start := market.MustDate("2023-01-02")
	var all []market.PriceSeries
	i := 0
	for _, ticker := range []string{"AAA", "BBB", "CCC", "DDD", "EEE"} {
		i++
		var pts []market.Point
		for d := 0; d < days; d++ {
			p := 100 * math.Pow(1+drifts[ticker], float64(d)) * (1 + 0.01*math.Sin(float64(d*i)))
			pts = append(pts, market.Point{Date: start.AddDate(0, 0, d), Price: p})
		}
		s, err := market.NewPriceSeries(ticker, pts)
		require.NoError(t, err)
		all = append(all, s)
	}
	m, err := market.Join(all...)
	require.NoError(t, err)
	return m
}

func sum(s frame.Series) float64 {
	total := 0.0
	for _, v := range s.Values() {
		f, _ := v.Get()
		total += f
	}
	return total
}

func TestRankProducesAllocation(t *testing.T) {
	reg := metrics.NewRegistry()
	r, err := NewRanker(DefaultConfig(), WithRecorder(reg))
	require.NoError(t, err)

	res, err := r.Rank(context.Background(), history(t, 150))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Indicators.Len())
	assert.False(t, res.Normalized.AnyMissing())
	assert.Equal(t, []string{"Lookback_20", "Lookback_60", "Lookback_120"}, res.Ranks.Columns())
	assert.Equal(t, 1, res.Selected.Len())
	assert.InDelta(t, 1.0, sum(res.Allocations), 1e-8)
	assert.Len(t, res.StepDurations, 6)
	assert.Len(t, res.Holdings(), 1)

	for _, v := range res.Scores.Values() {
		f, ok := v.Get()
		require.True(t, ok)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 100.0)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 3
	cfg.Allocation = portfolio.ScoreProportional
	r, err := NewRanker(cfg)
	require.NoError(t, err)

	h := history(t, 150)
	first, err := r.Rank(context.Background(), h)
	require.NoError(t, err)
	second, err := r.Rank(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, first.Scores.Entries(), second.Scores.Entries())
	assert.Equal(t, first.Allocations.Entries(), second.Allocations.Entries())
	assert.Equal(t, 3, first.Selected.Len())
}

func TestVolatilityAllocationUsesCleanedVolatility(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 2
	cfg.Allocation = "volatility"
	r, err := NewRanker(cfg)
	require.NoError(t, err)

	res, err := r.Rank(context.Background(), history(t, 150))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum(res.Allocations), 1e-8)

	// weights are inversely proportional to the raw Volatility indicator
	keys := res.Selected.Keys()
	v0, _ := res.Indicators.Get(keys[0], "Volatility")
	v1, _ := res.Indicators.Get(keys[1], "Volatility")
	a0, _ := res.Allocations.Get(keys[0])
	a1, _ := res.Allocations.Get(keys[1])
	assert.InDelta(t, v1.Or(0)/v0.Or(0), a0.Or(0)/a1.Or(0), 1e-9)
}

func TestRankUnknownLookbackWeight(t *testing.T) {
	r, err := NewRanker(DefaultConfig())
	require.NoError(t, err)

	_, err = r.WithLookbackWeights(map[string]float64{"Lookback_7": 1}).Rank(context.Background(), history(t, 150))
	assert.True(t, errors.Is(err, errs.ErrKeyNotFound))

	// receiver keeps its own weights
	assert.Nil(t, r.Config().LookbackWeights)
}

func TestRankEmptyHistory(t *testing.T) {
	r, err := NewRanker(DefaultConfig())
	require.NoError(t, err)
	_, err = r.Rank(context.Background(), market.PriceMatrix{})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestNewRankerValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Allocation = "kelly"
	_, err := NewRanker(cfg)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	cfg = DefaultConfig()
	cfg.Lookbacks = []int{0}
	_, err = NewRanker(cfg)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	cfg = DefaultConfig()
	cfg.MissingValues = "interpolate"
	_, err = NewRanker(cfg)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestTopCount(t *testing.T) {
	r, err := NewRanker(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, r.TopCount(3))
	assert.Equal(t, 3, r.TopCount(10))
	assert.Equal(t, 1, r.TopCount(0))
}
