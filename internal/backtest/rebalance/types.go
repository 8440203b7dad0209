// Package rebalance simulates a portfolio over a fixed horizon, optionally
// re-deriving allocations every N months from data observed so far.
package rebalance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
)

// Run kinds.
const (
	KindPortfolio = "portfolio"
	KindBuyHold   = "buyhold"
	KindInterval  = "interval"
)

// State is the simulator lifecycle.
type State int

const (
	Idle State = iota
	InPeriod
	Rebalanced
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InPeriod:
		return "in-period"
	case Rebalanced:
		return "rebalanced"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Allocator derives weights from a price history. The history never holds
// a date on or after the start of the period being allocated.
type Allocator interface {
	Allocate(ctx context.Context, history market.PriceMatrix) (frame.Series, error)
}

// AllocatorFunc adapts a function to Allocator.
type AllocatorFunc func(ctx context.Context, history market.PriceMatrix) (frame.Series, error)

// Allocate calls f.
func (f AllocatorFunc) Allocate(ctx context.Context, history market.PriceMatrix) (frame.Series, error) {
	return f(ctx, history)
}

// PriceSource retrieves aligned prices for a set of instruments. It fails
// as a whole when any instrument cannot be retrieved.
type PriceSource interface {
	GetPrices(ctx context.Context, tickers []string, r market.DateRange) (market.PriceMatrix, error)
}

// Clock interface for testable time
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using system time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Config bounds the simulation.
type Config struct {
	InitialCash decimal.Decimal `json:"initial_cash"`
	// HistoryStart is the earliest date any allocator sees.
	HistoryStart time.Time `json:"history_start"`
	// TrainingEnd closes the window for the initial interval allocation.
	TrainingEnd time.Time `json:"training_end"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	// Universe is re-ranked on every refresh. Empty means the tickers of
	// the initial allocation.
	Universe []string `json:"universe,omitempty"`
}

// DefaultConfig returns a one-year 2024 horizon trained on 2020-2023.
func DefaultConfig() Config {
	return Config{
		InitialCash:  decimal.NewFromInt(10000),
		HistoryStart: market.MustDate("2020-01-01"),
		TrainingEnd:  market.MustDate("2023-12-31"),
		Start:        market.MustDate("2024-01-01"),
		End:          market.MustDate("2024-12-31"),
	}
}

// Holding is one instrument position inside a period.
type Holding struct {
	Ticker   string  `json:"ticker"`
	Weight   float64 `json:"weight"`
	Cash     float64 `json:"cash"`
	EndValue float64 `json:"end_value"`
	// Skipped is set when the instrument had no prices in the period.
	Skipped bool `json:"skipped,omitempty"`
}

// Period is one closed rebalancing interval.
type Period struct {
	Index     int       `json:"index"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	StartCash float64   `json:"start_cash"`
	EndCash   float64   `json:"end_cash"`
	Return    float64   `json:"return"`
	Holdings  []Holding `json:"holdings"`
}

// Result is the outcome of one simulation.
type Result struct {
	RunID           uuid.UUID `json:"run_id"`
	Kind            string    `json:"kind"`
	StartedAt       time.Time `json:"started_at"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	InitialCash     float64   `json:"initial_cash"`
	FinalCash       float64   `json:"final_cash"`
	TotalReturn     float64   `json:"total_return"`
	RebalanceMonths int       `json:"rebalance_months"`
	Periods         []Period  `json:"periods"`
}

// PeriodEvent is emitted after every period closes.
type PeriodEvent struct {
	RunID  uuid.UUID `json:"run_id"`
	Kind   string    `json:"kind"`
	State  State     `json:"state"`
	Period Period    `json:"period"`
	// CumulativeReturn is the running return since the horizon start.
	CumulativeReturn float64 `json:"cumulative_return"`
}

// Observer receives period events. Implementations must not block.
type Observer interface {
	OnPeriod(PeriodEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(PeriodEvent)

// OnPeriod calls f.
func (f ObserverFunc) OnPeriod(ev PeriodEvent) { f(ev) }
