// Package pipeline chains indicators, normalization, momentum, scoring and
// portfolio construction into one ranking pass over a price history.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/algo/momentum"
	"github.com/sawpanic/rotator/internal/domain/indicators"
	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/metrics"
	"github.com/sawpanic/rotator/internal/score/normalize"
	"github.com/sawpanic/rotator/internal/score/portfolio"
	"github.com/sawpanic/rotator/internal/scoring"
)

// Step names, in execution order.
const (
	StepIndicators = "Indicators"
	StepNormalize  = "Normalize"
	StepMomentum   = "Momentum"
	StepScore      = "Score"
	StepSelect     = "Select"
	StepAllocate   = "Allocate"
)

// Config contains the parameters of a ranking pass
type Config struct {
	Indicators       indicators.Params  `json:"indicators"`
	IndicatorWeights map[string]float64 `json:"indicator_weights,omitempty"`
	Lookbacks        []int              `json:"lookbacks"`
	LookbackWeights  map[string]float64 `json:"lookback_weights,omitempty"`
	MomentumWeight   float64            `json:"momentum_weight"`
	MissingValues    normalize.Method   `json:"missing_values"`
	Allocation       portfolio.Method   `json:"allocation"`
	TopN             int                `json:"top_n"`
	TopFraction      float64            `json:"top_fraction"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Indicators:     indicators.DefaultParams(),
		Lookbacks:      []int{20, 60, 120},
		MomentumWeight: 1.0,
		MissingValues:  normalize.FFill,
		Allocation:     portfolio.Equal,
		TopFraction:    0.3,
	}
}

// Result holds every intermediate table of a ranking pass
type Result struct {
	AsOf          time.Time                `json:"as_of"`
	Indicators    frame.Table              `json:"-"`
	Normalized    frame.Table              `json:"-"`
	Ranks         frame.Table              `json:"-"`
	Scores        frame.Series             `json:"-"`
	Selected      frame.Series             `json:"-"`
	Allocations   frame.Series             `json:"-"`
	StepDurations map[string]time.Duration `json:"step_durations"`
}

// Holdings returns the selection with its allocation, ready for export.
func (r *Result) Holdings() []portfolio.Holding {
	return portfolio.Holdings(r.Selected, r.Allocations)
}

// Ranker runs the ranking pipeline
type Ranker struct {
	cfg        Config
	momentum   *momentum.MomentumCore
	normalizer *normalize.Normalizer
	rec        metrics.Recorder
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithRecorder reports step timings to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Ranker) { r.rec = rec }
}

// NewRanker validates cfg and builds a ranker.
func NewRanker(cfg Config, opts ...Option) (*Ranker, error) {
	if err := cfg.Indicators.Validate(); err != nil {
		return nil, err
	}
	mc, err := momentum.NewMomentumCore(cfg.Lookbacks)
	if err != nil {
		return nil, err
	}
	n, err := normalize.NewNormalizer(cfg.MissingValues)
	if err != nil {
		return nil, err
	}
	method, err := portfolio.ParseMethod(string(cfg.Allocation))
	if err != nil {
		return nil, err
	}
	cfg.Allocation = method
	if cfg.TopN < 0 {
		return nil, errs.InvalidArgument("TopN must not be negative, got %d", cfg.TopN)
	}
	if cfg.TopN == 0 && (cfg.TopFraction <= 0 || cfg.TopFraction > 1) {
		return nil, errs.InvalidArgument("TopFraction must be in (0, 1], got %g", cfg.TopFraction)
	}

	r := &Ranker{cfg: cfg, momentum: mc, normalizer: n, rec: metrics.Nop{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the ranker configuration.
func (r *Ranker) Config() Config {
	return r.cfg
}

// WithLookbackWeights returns a copy of the ranker using weights for the
// momentum columns. The receiver is not modified.
func (r *Ranker) WithLookbackWeights(weights map[string]float64) *Ranker {
	cp := *r
	cp.cfg.LookbackWeights = make(map[string]float64, len(weights))
	for k, v := range weights {
		cp.cfg.LookbackWeights[k] = v
	}
	return &cp
}

// TopCount returns TopN when set, otherwise max(floor(n·TopFraction), 1).
func (r *Ranker) TopCount(n int) int {
	if r.cfg.TopN > 0 {
		return r.cfg.TopN
	}
	k := int(math.Floor(float64(n) * r.cfg.TopFraction))
	if k < 1 {
		k = 1
	}
	return k
}

// Allocate ranks history and returns only the allocations.
func (r *Ranker) Allocate(ctx context.Context, history market.PriceMatrix) (frame.Series, error) {
	res, err := r.Rank(ctx, history)
	if err != nil {
		return frame.Series{}, err
	}
	return res.Allocations, nil
}

// Rank runs every step over history and returns the intermediate tables.
func (r *Ranker) Rank(ctx context.Context, history market.PriceMatrix) (*Result, error) {
	if history.Empty() {
		return nil, errs.InvalidArgument("empty price history")
	}
	dates := history.Dates()
	result := &Result{
		AsOf:          dates[len(dates)-1],
		StepDurations: make(map[string]time.Duration),
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context, history market.PriceMatrix, result *Result) error
	}{
		{StepIndicators, r.indicatorStep},
		{StepNormalize, r.normalizeStep},
		{StepMomentum, r.momentumStep},
		{StepScore, r.scoreStep},
		{StepSelect, r.selectStep},
		{StepAllocate, r.allocateStep},
	}

	for _, step := range steps {
		timer := metrics.StartStep(r.rec, step.name)
		start := time.Now()
		err := step.fn(ctx, history, result)
		result.StepDurations[step.name] = time.Since(start)
		timer.Stop(err)
		if err != nil {
			log.Error().
				Str("step", step.name).
				Err(err).
				Msg("Ranking step failed")
			return nil, fmt.Errorf("ranking failed at step %s: %w", step.name, err)
		}
	}

	log.Debug().
		Time("as_of", result.AsOf).
		Int("universe", len(history.Tickers())).
		Int("selected", result.Selected.Len()).
		Msg("Ranking completed")
	return result, nil
}

func (r *Ranker) indicatorStep(ctx context.Context, history market.PriceMatrix, result *Result) error {
	tbl, err := indicators.BuildTable(ctx, history, r.cfg.Indicators)
	if err != nil {
		return err
	}
	result.Indicators = tbl
	return nil
}

func (r *Ranker) normalizeStep(_ context.Context, _ market.PriceMatrix, result *Result) error {
	cleaned, normalized, err := r.normalizer.Apply(result.Indicators)
	if err != nil {
		return err
	}
	result.Indicators = cleaned
	result.Normalized = normalized
	return nil
}

func (r *Ranker) momentumStep(_ context.Context, history market.PriceMatrix, result *Result) error {
	ranks, err := r.momentum.Rank(history)
	if err != nil {
		return err
	}
	result.Ranks = ranks
	return nil
}

func (r *Ranker) scoreStep(_ context.Context, _ market.PriceMatrix, result *Result) error {
	weighted, err := scoring.WeightIndicators(result.Normalized, r.cfg.IndicatorWeights)
	if err != nil {
		return err
	}
	combined, err := scoring.AggregateRanks(weighted, result.Ranks, r.cfg.MomentumWeight, r.cfg.LookbackWeights)
	if err != nil {
		return err
	}
	scaled, err := scoring.Scale(combined)
	if err != nil {
		return err
	}
	result.Scores = scaled
	return nil
}

func (r *Ranker) selectStep(_ context.Context, history market.PriceMatrix, result *Result) error {
	selected, err := portfolio.Select(result.Scores, r.TopCount(len(history.Tickers())))
	if err != nil {
		return err
	}
	result.Selected = selected
	return nil
}

// allocateStep feeds the cleaned volatility of the selection to the
// inverse-volatility method and the scaled scores to every other method.
func (r *Ranker) allocateStep(_ context.Context, _ market.PriceMatrix, result *Result) error {
	input := result.Selected
	if r.cfg.Allocation == portfolio.VolatilityInverse {
		vol, err := result.Indicators.Column(indicators.Volatility)
		if err != nil {
			return err
		}
		if input, err = vol.Reindex(result.Selected.Keys()); err != nil {
			return err
		}
	}
	alloc, err := portfolio.Allocate(input, r.cfg.Allocation)
	if err != nil {
		return err
	}
	result.Allocations = alloc
	return nil
}
