// Package persistence stores backtest runs and their period ledger.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/market"
)

var (
	// ErrNotFound is returned when a run id is unknown.
	ErrNotFound = errors.New("run not found")

	// ErrDuplicate is returned when a run id is already stored.
	ErrDuplicate = errors.New("run already stored")
)

// Run is a stored simulation with its ledger.
type Run struct {
	ID              uuid.UUID       `json:"id"`
	Kind            string          `json:"kind"`
	StartedAt       time.Time       `json:"started_at"`
	Start           string          `json:"start"`
	End             string          `json:"end"`
	InitialCash     decimal.Decimal `json:"initial_cash"`
	FinalCash       decimal.Decimal `json:"final_cash"`
	TotalReturn     float64         `json:"total_return"`
	RebalanceMonths int             `json:"rebalance_months"`
	Params          json.RawMessage `json:"params,omitempty"`
	Periods         []PeriodRecord  `json:"periods,omitempty"`
}

// PeriodRecord is one row of the ledger.
type PeriodRecord struct {
	Index     int                 `json:"index"`
	Start     string              `json:"start"`
	End       string              `json:"end"`
	StartCash decimal.Decimal     `json:"start_cash"`
	EndCash   decimal.Decimal     `json:"end_cash"`
	Return    float64             `json:"return"`
	Holdings  []rebalance.Holding `json:"holdings"`
}

// RunStore persists runs.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// FromResult converts a simulation result, rounding cash to cents. params
// is stored as JSON alongside the run.
func FromResult(res *rebalance.Result, params any) (Run, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Run{}, fmt.Errorf("failed to marshal run params: %w", err)
		}
		raw = b
	}

	run := Run{
		ID:              res.RunID,
		Kind:            res.Kind,
		StartedAt:       res.StartedAt.UTC(),
		Start:           res.Start.Format(market.DateLayout),
		End:             res.End.Format(market.DateLayout),
		InitialCash:     cents(res.InitialCash),
		FinalCash:       cents(res.FinalCash),
		TotalReturn:     res.TotalReturn,
		RebalanceMonths: res.RebalanceMonths,
		Params:          raw,
	}
	for _, p := range res.Periods {
		run.Periods = append(run.Periods, PeriodRecord{
			Index:     p.Index,
			Start:     p.Start.Format(market.DateLayout),
			End:       p.End.Format(market.DateLayout),
			StartCash: cents(p.StartCash),
			EndCash:   cents(p.EndCash),
			Return:    p.Return,
			Holdings:  p.Holdings,
		})
	}
	return run, nil
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
