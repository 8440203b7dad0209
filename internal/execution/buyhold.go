// Package execution evaluates single-instrument buy-and-hold positions.
package execution

import (
	"context"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/market"
)

// Evaluator turns a cash amount and a price slice into an ending value.
type Evaluator interface {
	EvaluateBuyAndHold(ctx context.Context, slice market.PriceSeries, cash float64) (float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, slice market.PriceSeries, cash float64) (float64, error)

// EvaluateBuyAndHold calls f.
func (f EvaluatorFunc) EvaluateBuyAndHold(ctx context.Context, slice market.PriceSeries, cash float64) (float64, error) {
	return f(ctx, slice, cash)
}

// BuyAndHold enters at the first price of the slice and exits at the last.
// Fractional units are allowed and no fees apply.
type BuyAndHold struct{}

// EvaluateBuyAndHold returns cash × exit/entry, or cash unchanged for an
// empty slice.
func (BuyAndHold) EvaluateBuyAndHold(ctx context.Context, slice market.PriceSeries, cash float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if slice.Len() == 0 {
		return cash, nil
	}
	entry := slice.Points[0].Price
	exit := slice.Points[slice.Len()-1].Price
	if entry <= 0 {
		return 0, errs.InvalidArgument("%s: entry price must be positive, got %g", slice.Ticker, entry)
	}
	return cash * exit / entry, nil
}
