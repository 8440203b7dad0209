package opt

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/application/pipeline"
	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/errs"
)

// NewBacktestObjective ranks tickers on the training window with the
// candidate lookback weights, simulates the resulting portfolio over the
// engine horizon rebalancing every months months, and returns the negated
// total return. Neither engine nor ranker is modified.
func NewBacktestObjective(engine *rebalance.Engine, ranker *pipeline.Ranker, tickers []string, months int) (Objective, error) {
	if engine == nil || ranker == nil {
		return nil, errs.InvalidArgument("engine and ranker are required")
	}
	if len(tickers) == 0 {
		return nil, errs.InvalidArgument("no tickers provided")
	}
	trainingEnd := engine.Config().TrainingEnd

	return func(ctx context.Context, weights map[string]float64) (float64, error) {
		e := engine.WithAllocator(ranker.WithLookbackWeights(weights))
		alloc, err := e.AllocateUntil(ctx, tickers, trainingEnd)
		if err != nil {
			return 0, err
		}
		res, err := e.PortfolioBacktest(ctx, alloc, months)
		if err != nil {
			return 0, err
		}
		log.Info().
			Interface("weights", weights).
			Float64("return", res.TotalReturn).
			Msg("Lookback weights evaluated")
		return -res.TotalReturn, nil
	}, nil
}
