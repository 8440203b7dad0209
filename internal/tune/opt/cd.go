// Package opt searches lookback weights that minimize a backtest objective.
package opt

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/errs"
	progress "github.com/sawpanic/rotator/internal/log"
	"github.com/sawpanic/rotator/internal/metrics"
)

// Objective scores a weight vector. Lower is better.
type Objective func(ctx context.Context, weights map[string]float64) (float64, error)

// OptimizerConfig defines the configuration for coordinate descent optimization
type OptimizerConfig struct {
	MaxEvaluations    int     `json:"max_evaluations" yaml:"MaxEvaluations"`
	Tolerance         float64 `json:"tolerance" yaml:"Tolerance"`
	InitialStepSize   float64 `json:"initial_step_size" yaml:"InitialStepSize"`
	BacktrackingRatio float64 `json:"backtracking_ratio" yaml:"BacktrackingRatio"`
	MinStepSize       float64 `json:"min_step_size" yaml:"MinStepSize"`
	// EarlyStopWindow is the number of sweeps without improvement tolerated.
	EarlyStopWindow int     `json:"early_stop_window" yaml:"EarlyStopWindow"`
	Seed            uint64  `json:"seed" yaml:"Seed"`
	Lower           float64 `json:"lower" yaml:"Lower"`
	Upper           float64 `json:"upper" yaml:"Upper"`
}

// DefaultOptimizerConfig searches [0, 3] per weight.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxEvaluations:    50,
		Tolerance:         1e-4,
		InitialStepSize:   0.5,
		BacktrackingRatio: 0.5,
		MinStepSize:       0.01,
		EarlyStopWindow:   5,
		Seed:              0,
		Lower:             0,
		Upper:             3,
	}
}

// Validate checks bounds and step parameters.
func (c OptimizerConfig) Validate() error {
	switch {
	case c.MaxEvaluations < 1:
		return errs.InvalidArgument("max evaluations must be positive, got %d", c.MaxEvaluations)
	case c.Upper < c.Lower:
		return errs.InvalidArgument("upper bound %g below lower bound %g", c.Upper, c.Lower)
	case c.InitialStepSize <= 0 || c.MinStepSize <= 0:
		return errs.InvalidArgument("step sizes must be positive")
	case c.BacktrackingRatio <= 0 || c.BacktrackingRatio >= 1:
		return errs.InvalidArgument("backtracking ratio must be in (0, 1), got %g", c.BacktrackingRatio)
	case c.EarlyStopWindow < 1:
		return errs.InvalidArgument("early stop window must be positive, got %d", c.EarlyStopWindow)
	}
	return nil
}

// Step is one objective evaluation.
type Step struct {
	Evaluation int                `json:"evaluation"`
	Weights    map[string]float64 `json:"weights"`
	Objective  float64            `json:"objective"`
	StepSize   float64            `json:"step_size"`
	Direction  string             `json:"direction"`
	Improved   bool               `json:"improved"`
}

// Result holds the outcome of an optimization.
type Result struct {
	Best             map[string]float64 `json:"best"`
	BestObjective    float64            `json:"best_objective"`
	Initial          map[string]float64 `json:"initial"`
	InitialObjective float64            `json:"initial_objective"`
	Evaluations      int                `json:"evaluations"`
	Converged        bool               `json:"converged"`
	EarlyStopped     bool               `json:"early_stopped"`
	ElapsedTime      time.Duration      `json:"elapsed_time"`
	History          []Step             `json:"history"`
}

// CoordinateDescent minimizes an objective one weight at a time within
// [Lower, Upper], halving the step when a full sweep finds nothing better.
type CoordinateDescent struct {
	config      OptimizerConfig
	coordinates []string
	objective   Objective
	rec         metrics.Recorder
	out         io.Writer
}

// Option configures a CoordinateDescent.
type Option func(*CoordinateDescent)

// WithRecorder reports every evaluation to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(cd *CoordinateDescent) { cd.rec = rec }
}

// WithProgressOutput draws a progress bar on w.
func WithProgressOutput(w io.Writer) Option {
	return func(cd *CoordinateDescent) { cd.out = w }
}

// NewCoordinateDescent creates an optimizer over coordinates.
func NewCoordinateDescent(config OptimizerConfig, coordinates []string, objective Objective, opts ...Option) (*CoordinateDescent, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(coordinates) == 0 {
		return nil, errs.InvalidArgument("no coordinates to optimize")
	}
	if objective == nil {
		return nil, errs.InvalidArgument("objective is required")
	}
	coords := append([]string(nil), coordinates...)
	sort.Strings(coords)

	cd := &CoordinateDescent{
		config:      config,
		coordinates: coords,
		objective:   objective,
		rec:         metrics.Nop{},
	}
	for _, opt := range opts {
		opt(cd)
	}
	return cd, nil
}

// Optimize starts from initial (missing coordinates start at 1, clamped to
// the bounds) and returns the best weights found.
func (cd *CoordinateDescent) Optimize(ctx context.Context, initial map[string]float64) (Result, error) {
	startTime := time.Now()
	rng := newRandGen(cd.config.Seed)
	bar := progress.NewProgress("optimize", cd.config.MaxEvaluations, cd.out)

	current := make(map[string]float64, len(cd.coordinates))
	for _, c := range cd.coordinates {
		v, ok := initial[c]
		if !ok {
			v = 1
		}
		current[c] = cd.clamp(v)
	}

	initialObj, err := cd.evaluate(ctx, current)
	if err != nil {
		return Result{}, fmt.Errorf("failed to evaluate initial weights: %w", err)
	}
	bar.Increment(fmt.Sprintf("initial %.6f", initialObj))

	result := Result{
		Initial:          copyWeights(current),
		InitialObjective: initialObj,
		Evaluations:      1,
		History: []Step{{
			Evaluation: 1,
			Weights:    copyWeights(current),
			Objective:  initialObj,
			Direction:  "initial",
		}},
	}
	best := initialObj
	stepSize := cd.config.InitialStepSize
	noImprovement := 0

	log.Info().
		Strs("coordinates", cd.coordinates).
		Float64("initial_objective", initialObj).
		Msg("Starting coordinate descent")

search:
	for result.Evaluations < cd.config.MaxEvaluations {
		sweepStart := best
		improved := false

		for _, coord := range cd.coordinates {
			directions := []float64{1, -1}
			if rng.Float64() < 0.5 {
				directions[0], directions[1] = directions[1], directions[0]
			}

			for _, direction := range directions {
				if result.Evaluations >= cd.config.MaxEvaluations {
					break search
				}
				candidate := cd.clamp(current[coord] + direction*stepSize)
				if candidate == current[coord] {
					continue
				}
				trial := copyWeights(current)
				trial[coord] = candidate

				value, err := cd.evaluate(ctx, trial)
				if err != nil {
					if ctx.Err() != nil {
						return Result{}, ctx.Err()
					}
					log.Warn().Err(err).Str("coordinate", coord).Msg("Objective evaluation failed, skipping step")
					continue
				}
				result.Evaluations++

				step := Step{
					Evaluation: result.Evaluations,
					Weights:    trial,
					Objective:  value,
					StepSize:   stepSize,
					Direction:  fmt.Sprintf("%s%+.0f", coord, direction),
					Improved:   value < best,
				}
				result.History = append(result.History, step)
				bar.Increment(fmt.Sprintf("%s %.6f", step.Direction, value))

				if step.Improved {
					best = value
					current = trial
					improved = true
					log.Debug().
						Int("evaluation", result.Evaluations).
						Float64("objective", value).
						Str("direction", step.Direction).
						Msg("Objective improved")
					break
				}
			}
		}

		if improved {
			noImprovement = 0
			if sweepStart-best < cd.config.Tolerance {
				result.Converged = true
				break
			}
			continue
		}

		noImprovement++
		stepSize *= cd.config.BacktrackingRatio
		if stepSize < cd.config.MinStepSize {
			result.Converged = true
			break
		}
		if noImprovement >= cd.config.EarlyStopWindow {
			result.EarlyStopped = true
			break
		}
	}
	bar.Finish()

	result.Best = current
	result.BestObjective = best
	result.ElapsedTime = time.Since(startTime)

	log.Info().
		Int("evaluations", result.Evaluations).
		Float64("best_objective", best).
		Float64("improvement", initialObj-best).
		Bool("converged", result.Converged).
		Bool("early_stopped", result.EarlyStopped).
		Dur("elapsed", result.ElapsedTime).
		Msg("Optimization complete")
	return result, nil
}

func (cd *CoordinateDescent) evaluate(ctx context.Context, w map[string]float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := cd.objective(ctx, copyWeights(w))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("objective returned %v", v)
	}
	cd.rec.RecordEvaluation(v)
	return v, nil
}

func (cd *CoordinateDescent) clamp(v float64) float64 {
	return math.Max(cd.config.Lower, math.Min(cd.config.Upper, v))
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// randGen is a linear congruential generator; the same seed always yields
// the same direction order.
type randGen struct {
	state uint64
}

func newRandGen(seed uint64) *randGen {
	return &randGen{state: seed}
}

// Float64 returns a pseudo-random float64 in [0.0, 1.0)
func (r *randGen) Float64() float64 {
	r.state = r.state*1103515245 + 12345
	return float64(r.state&0x7FFFFFFF) / float64(0x80000000)
}
