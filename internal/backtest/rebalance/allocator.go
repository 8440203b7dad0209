package rebalance

import (
	"context"
	"math"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/score/portfolio"
)

// TrailingReturnAllocator keeps the instruments with the best compounded
// return over the whole history and weights them by Method.
type TrailingReturnAllocator struct {
	Method portfolio.Method
	// TopFraction of the universe is kept, at least one instrument.
	TopFraction float64
}

// NewTrailingReturnAllocator validates method and fraction.
func NewTrailingReturnAllocator(method portfolio.Method, topFraction float64) (*TrailingReturnAllocator, error) {
	m, err := portfolio.ParseMethod(string(method))
	if err != nil {
		return nil, err
	}
	if topFraction <= 0 || topFraction > 1 {
		return nil, errs.InvalidArgument("top fraction must be in (0, 1], got %g", topFraction)
	}
	return &TrailingReturnAllocator{Method: m, TopFraction: topFraction}, nil
}

// Allocate ranks history's instruments by prod(1+r)-1 over their daily
// returns. Volatility-inverse weights use the sample stdev of the same
// returns.
func (a *TrailingReturnAllocator) Allocate(ctx context.Context, history market.PriceMatrix) (frame.Series, error) {
	if err := ctx.Err(); err != nil {
		return frame.Series{}, err
	}
	tickers := history.Tickers()
	if len(tickers) == 0 {
		return frame.Series{}, errs.InvalidArgument("empty price history")
	}

	cumulative := make([]frame.Value, len(tickers))
	vol := make(map[string]frame.Value, len(tickers))
	for i, t := range tickers {
		col, _ := history.Column(t)
		rets := dailyReturns(col)
		// an instrument without a single price pair compounds to 0
		growth := 1.0
		for _, r := range rets {
			growth *= 1 + r
		}
		cumulative[i] = frame.Some(growth - 1)
		vol[t] = sampleStd(rets)
	}
	scores, err := frame.NewSeries(tickers, cumulative)
	if err != nil {
		return frame.Series{}, err
	}

	k := int(math.Floor(float64(len(tickers)) * a.TopFraction))
	if k < 1 {
		k = 1
	}
	selected, err := portfolio.Select(scores, k)
	if err != nil {
		return frame.Series{}, err
	}

	input := selected
	if a.Method == portfolio.VolatilityInverse {
		vals := make([]frame.Value, 0, selected.Len())
		for _, t := range selected.Keys() {
			vals = append(vals, vol[t])
		}
		if input, err = frame.NewSeries(selected.Keys(), vals); err != nil {
			return frame.Series{}, err
		}
	}
	return portfolio.Allocate(input, a.Method)
}

// dailyReturns returns p[t]/p[t-1]-1 for every pair of present adjacent
// cells.
func dailyReturns(col []frame.Value) []float64 {
	var out []float64
	for i := 1; i < len(col); i++ {
		prev, ok1 := col[i-1].Get()
		cur, ok2 := col[i].Get()
		if !ok1 || !ok2 || prev == 0 {
			continue
		}
		out = append(out, cur/prev-1)
	}
	return out
}

func sampleStd(xs []float64) frame.Value {
	if len(xs) < 2 {
		return frame.None()
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return frame.Some(math.Sqrt(ss / float64(len(xs)-1)))
}
