package opt

import (
	"context"
	"math"
	"testing"

	"github.com/sawpanic/rotator/internal/application/pipeline"
	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/market"
)

type matrixSource struct {
	m market.PriceMatrix
}

func (s matrixSource) GetPrices(_ context.Context, tickers []string, r market.DateRange) (market.PriceMatrix, error) {
	sel, err := s.m.Select(tickers)
	if err != nil {
		return market.PriceMatrix{}, err
	}
	return sel.Slice(r), nil
}

func syntheticPrices(t *testing.T) market.PriceMatrix {
	t.Helper()
	start := market.MustDate("2023-01-01")
	drift := map[string]float64{"AAA": 0.002, "BBB": -0.001, "CCC": 0.0005}
	var all []market.PriceSeries
	for i, ticker := range []string{"AAA", "BBB", "CCC"} {
		var pts []market.Point
		for d := 0; d < 456; d++ {
			p := 50 * math.Pow(1+drift[ticker], float64(d)) * (1 + 0.02*math.Sin(float64(d*(i+2))/7))
			pts = append(pts, market.Point{Date: start.AddDate(0, 0, d), Price: p})
		}
		s, err := market.NewPriceSeries(ticker, pts)
		if err != nil {
			t.Fatalf("NewPriceSeries: %v", err)
		}
		all = append(all, s)
	}
	m, err := market.Join(all...)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return m
}

func TestBacktestObjective(t *testing.T) {
	cfg := rebalance.DefaultConfig()
	cfg.HistoryStart = market.MustDate("2023-01-01")
	cfg.End = market.MustDate("2024-03-31")
	cfg.Universe = []string{"AAA", "BBB", "CCC"}
	engine, err := rebalance.NewEngine(cfg, matrixSource{syntheticPrices(t)})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	rcfg := pipeline.DefaultConfig()
	rcfg.Lookbacks = []int{5, 20}
	rcfg.TopN = 1
	ranker, err := pipeline.NewRanker(rcfg)
	if err != nil {
		t.Fatalf("NewRanker: %v", err)
	}

	objective, err := NewBacktestObjective(engine, ranker, cfg.Universe, 1)
	if err != nil {
		t.Fatalf("NewBacktestObjective: %v", err)
	}

	weights := map[string]float64{"Lookback_5": 0.5, "Lookback_20": 2}
	first, err := objective(context.Background(), weights)
	if err != nil {
		t.Fatalf("objective failed: %v", err)
	}
	if math.IsNaN(first) || math.IsInf(first, 0) {
		t.Fatalf("objective is not finite: %v", first)
	}

	second, _ := objective(context.Background(), weights)
	if first != second {
		t.Errorf("objective not deterministic: %v vs %v", first, second)
	}
	if ranker.Config().LookbackWeights != nil {
		t.Error("objective mutated the ranker")
	}

	// the optimizer drives the same entry point
	ocfg := testConfig()
	ocfg.MaxEvaluations = 4
	cd, err := NewCoordinateDescent(ocfg, []string{"Lookback_5", "Lookback_20"}, objective)
	if err != nil {
		t.Fatalf("NewCoordinateDescent: %v", err)
	}
	result, err := cd.Optimize(context.Background(), weights)
	if err != nil {
		t.Fatalf("optimization failed: %v", err)
	}
	if result.InitialObjective != first {
		t.Errorf("initial objective %v, want %v", result.InitialObjective, first)
	}
	if result.BestObjective > first {
		t.Errorf("best objective %v worse than initial %v", result.BestObjective, first)
	}
}

func TestBacktestObjectiveRejectsEmptyTickers(t *testing.T) {
	engine, _ := rebalance.NewEngine(rebalance.DefaultConfig(), matrixSource{})
	ranker, _ := pipeline.NewRanker(pipeline.DefaultConfig())
	if _, err := NewBacktestObjective(engine, ranker, nil, 1); err == nil {
		t.Error("expected error for empty tickers")
	}
}
