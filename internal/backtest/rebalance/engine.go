package rebalance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/execution"
	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/metrics"
)

// Engine runs rebalancing simulations against a price source.
type Engine struct {
	cfg       Config
	prices    PriceSource
	evaluator execution.Evaluator
	allocator Allocator
	observers []Observer
	rec       metrics.Recorder
	clock     Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the buy-and-hold evaluator.
func WithEvaluator(ev execution.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithAllocator sets the allocator used on every refresh.
func WithAllocator(a Allocator) Option {
	return func(e *Engine) { e.allocator = a }
}

// WithObserver adds a period observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithRecorder reports periods and runs to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(e *Engine) { e.rec = rec }
}

// WithClock sets the clock stamping results.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine validates cfg and builds an engine.
func NewEngine(cfg Config, prices PriceSource, opts ...Option) (*Engine, error) {
	if prices == nil {
		return nil, errs.InvalidArgument("price source is required")
	}
	if !cfg.InitialCash.IsPositive() {
		return nil, errs.InvalidArgument("initial cash must be positive, got %s", cfg.InitialCash)
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() || cfg.End.Before(cfg.Start) {
		return nil, errs.InvalidArgument("invalid horizon %s", market.DateRange{Start: cfg.Start, End: cfg.End})
	}
	if cfg.TrainingEnd.IsZero() {
		cfg.TrainingEnd = cfg.Start.AddDate(0, 0, -1)
	}
	if !cfg.HistoryStart.IsZero() && cfg.HistoryStart.After(cfg.TrainingEnd) {
		return nil, errs.InvalidArgument("history start %s is after training end %s",
			cfg.HistoryStart.Format(market.DateLayout), cfg.TrainingEnd.Format(market.DateLayout))
	}

	e := &Engine{
		cfg:       cfg,
		prices:    prices,
		evaluator: execution.BuyAndHold{},
		rec:       metrics.Nop{},
		clock:     RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// WithAllocator returns a copy of the engine refreshing through a. The
// receiver is not modified.
func (e *Engine) WithAllocator(a Allocator) *Engine {
	cp := *e
	cp.allocator = a
	return &cp
}

// EvaluatePeriod splits cash by weight and sums the ending value of every
// position over r. Instruments without prices in r are skipped and their
// share is not redistributed. When every instrument is skipped the cash is
// returned unchanged.
func (e *Engine) EvaluatePeriod(ctx context.Context, alloc frame.Series, prices market.PriceMatrix, r market.DateRange, cash float64) (float64, []Holding, error) {
	holdings := make([]Holding, 0, alloc.Len())
	total := 0.0
	evaluated := 0
	for _, entry := range alloc.Entries() {
		w, ok := entry.Value.Get()
		h := Holding{Ticker: entry.Key, Weight: w, Cash: cash * w}
		var slice market.PriceSeries
		if ok && prices.Has(entry.Key) {
			slice = prices.Series(entry.Key).Slice(r)
		}
		if slice.Len() == 0 {
			h.Skipped = true
			holdings = append(holdings, h)
			log.Debug().
				Str("ticker", entry.Key).
				Str("range", r.String()).
				Msg("No prices in period, skipping")
			continue
		}

		end, err := e.evaluator.EvaluateBuyAndHold(ctx, slice, h.Cash)
		if err != nil {
			return 0, nil, fmt.Errorf("evaluate %s over %s: %w", entry.Key, r, err)
		}
		h.EndValue = end
		total += end
		evaluated++
		holdings = append(holdings, h)
	}
	if evaluated == 0 {
		return cash, holdings, nil
	}
	return total, holdings, nil
}

// PortfolioBacktest simulates alloc over the horizon. With months ≤ 0 the
// allocation is held for the whole horizon; otherwise it is refreshed
// every months months through the configured allocator.
func (e *Engine) PortfolioBacktest(ctx context.Context, alloc frame.Series, months int) (*Result, error) {
	universe := e.cfg.Universe
	if len(universe) == 0 {
		universe = alloc.Keys()
	}
	return e.run(ctx, KindPortfolio, alloc, universe, months)
}

// BuyAndHold weights tickers equally and holds them for the whole horizon.
func (e *Engine) BuyAndHold(ctx context.Context, tickers []string) (*Result, error) {
	if len(tickers) == 0 {
		return nil, errs.InvalidArgument("no tickers provided")
	}
	alloc, err := frame.Constant(tickers, frame.Some(1/float64(len(tickers))))
	if err != nil {
		return nil, err
	}
	return e.run(ctx, KindBuyHold, alloc, tickers, 0)
}

// Interval allocates from the training window and then rebalances every
// months months over tickers.
func (e *Engine) Interval(ctx context.Context, tickers []string, months int) (*Result, error) {
	if months <= 0 {
		return nil, errs.InvalidArgument("months must be positive, got %d", months)
	}
	if e.allocator == nil {
		return nil, errs.InvalidArgument("interval backtest requires an allocator")
	}
	alloc, err := e.AllocateUntil(ctx, tickers, e.cfg.TrainingEnd)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, KindInterval, alloc, tickers, months)
}

// AllocateUntil runs the allocator over tickers from HistoryStart through
// cutoff inclusive.
func (e *Engine) AllocateUntil(ctx context.Context, tickers []string, cutoff time.Time) (frame.Series, error) {
	if len(tickers) == 0 {
		return frame.Series{}, errs.InvalidArgument("no tickers provided")
	}
	if e.allocator == nil {
		return frame.Series{}, errs.InvalidArgument("no allocator configured")
	}
	history, err := e.prices.GetPrices(ctx, tickers, market.DateRange{Start: e.cfg.HistoryStart, End: cutoff})
	if err != nil {
		return frame.Series{}, err
	}
	alloc, err := e.allocator.Allocate(ctx, history)
	if err != nil {
		return frame.Series{}, fmt.Errorf("allocate until %s: %w", cutoff.Format(market.DateLayout), err)
	}
	return alloc, nil
}

func (e *Engine) run(ctx context.Context, kind string, alloc frame.Series, universe []string, months int) (*Result, error) {
	if alloc.Len() == 0 {
		return nil, errs.InvalidArgument("empty allocation")
	}
	timer := metrics.StartStep(e.rec, "Backtest")
	res, err := e.simulate(ctx, kind, alloc, universe, months)
	timer.Stop(err)
	if err != nil {
		log.Error().Str("kind", kind).Err(err).Msg("Backtest failed")
		return nil, err
	}
	e.rec.RecordRun(kind, res.TotalReturn)
	log.Info().
		Str("run_id", res.RunID.String()).
		Str("kind", kind).
		Int("periods", len(res.Periods)).
		Float64("total_return", res.TotalReturn).
		Msg("Backtest completed")
	return res, nil
}

func (e *Engine) simulate(ctx context.Context, kind string, alloc frame.Series, universe []string, months int) (*Result, error) {
	initial := e.cfg.InitialCash.InexactFloat64()
	res := &Result{
		RunID:           uuid.New(),
		Kind:            kind,
		StartedAt:       e.clock.Now(),
		Start:           e.cfg.Start,
		End:             e.cfg.End,
		InitialCash:     initial,
		RebalanceMonths: months,
	}

	fetchRange := market.DateRange{Start: e.cfg.Start, End: e.cfg.End}
	tickers := alloc.Keys()
	if months > 0 {
		fetchRange.Start = e.cfg.HistoryStart
		tickers = union(universe, tickers)
	}
	prices, err := e.prices.GetPrices(ctx, tickers, fetchRange)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("kind", kind).
		Int("months", months).
		Strs("tickers", alloc.Keys()).
		Float64("cash", initial).
		Msg("Starting portfolio backtest")

	sim := &simulation{state: Idle}
	cash := initial
	current := e.cfg.Start
	for !current.After(e.cfg.End) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		periodEnd := e.cfg.End
		if months > 0 {
			if end := addMonths(current, months).AddDate(0, 0, -1); end.Before(periodEnd) {
				periodEnd = end
			}
		}
		if err := sim.transition(InPeriod); err != nil {
			return nil, err
		}

		r := market.DateRange{Start: current, End: periodEnd}
		endCash, holdings, err := e.EvaluatePeriod(ctx, alloc, prices, r, cash)
		if err != nil {
			return nil, err
		}
		p := Period{
			Index:     len(res.Periods),
			Start:     current,
			End:       periodEnd,
			StartCash: cash,
			EndCash:   endCash,
			Return:    ratio(endCash, cash),
			Holdings:  holdings,
		}
		res.Periods = append(res.Periods, p)
		e.rec.RecordPeriod(p.Return)
		cash = endCash

		current = periodEnd.AddDate(0, 0, 1)
		next := Complete
		if months > 0 && !current.After(e.cfg.End) {
			next = Rebalanced
		}
		if err := sim.transition(next); err != nil {
			return nil, err
		}
		e.notify(PeriodEvent{
			RunID:            res.RunID,
			Kind:             kind,
			State:            next,
			Period:           p,
			CumulativeReturn: ratio(cash, initial),
		})
		if next == Complete {
			break
		}

		if e.allocator == nil {
			continue
		}
		history, err := prices.Before(current).Select(universe)
		if err != nil {
			return nil, err
		}
		refreshed, err := e.allocator.Allocate(ctx, history)
		if err != nil {
			return nil, fmt.Errorf("refresh allocation before %s: %w", current.Format(market.DateLayout), err)
		}
		log.Debug().
			Time("cutoff", current.AddDate(0, 0, -1)).
			Strs("tickers", refreshed.Keys()).
			Msg("Allocation refreshed")
		alloc = refreshed
	}

	res.FinalCash = cash
	res.TotalReturn = ratio(cash, initial)
	return res, nil
}

func (e *Engine) notify(ev PeriodEvent) {
	for _, o := range e.observers {
		o.OnPeriod(ev)
	}
}

// simulation tracks the lifecycle of one run.
type simulation struct {
	state State
}

func (s *simulation) transition(to State) error {
	ok := false
	switch s.state {
	case Idle, Rebalanced:
		ok = to == InPeriod
	case InPeriod:
		ok = to == Rebalanced || to == Complete
	}
	if !ok {
		return fmt.Errorf("illegal transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

// addMonths moves t by n calendar months, clamping the day to the end of
// the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	last := time.Date(y, m+time.Month(n)+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > last {
		d = last
	}
	return time.Date(y, m+time.Month(n), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// ratio is end/start - 1, or 0 when start is 0.
func ratio(end, start float64) float64 {
	if start == 0 {
		return 0
	}
	return end/start - 1
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
