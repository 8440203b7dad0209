// Package metrics exposes Prometheus instrumentation for ranking runs,
// rebalancing periods, optimizer evaluations and the price cache.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Recorder is what the pipeline, the simulator and the fetcher report to.
type Recorder interface {
	ObserveStep(step string, d time.Duration, err error)
	RecordRun(kind string, totalReturn float64)
	RecordPeriod(periodReturn float64)
	RecordEvaluation(objective float64)
	RecordCacheHit(layer string)
	RecordCacheMiss(layer string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveStep(string, time.Duration, error) {}
func (Nop) RecordRun(string, float64)                {}
func (Nop) RecordPeriod(float64)                     {}
func (Nop) RecordEvaluation(float64)                 {}
func (Nop) RecordCacheHit(string)                    {}
func (Nop) RecordCacheMiss(string)                   {}

// Registry holds all rotator metrics on its own Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Step duration metrics
	StepDuration *prometheus.HistogramVec
	Steps        *prometheus.CounterVec

	// Backtest metrics
	Runs          *prometheus.CounterVec
	LastReturn    *prometheus.GaugeVec
	PeriodReturns prometheus.Histogram

	// Optimizer metrics
	Evaluations   prometheus.Counter
	BestObjective prometheus.Gauge

	// Price cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	mu   sync.Mutex
	best float64
	seen bool
}

// NewRegistry creates and registers every metric.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rotator_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),
		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_pipeline_steps_total",
				Help: "Total number of pipeline steps executed",
			},
			[]string{"step", "result"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_backtest_runs_total",
				Help: "Total number of completed backtests by kind",
			},
			[]string{"kind"},
		),
		LastReturn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rotator_backtest_total_return",
				Help: "Total return of the most recent backtest by kind",
			},
			[]string{"kind"},
		),
		PeriodReturns: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rotator_period_return",
				Help:    "Return of each simulated rebalancing period",
				Buckets: []float64{-0.5, -0.2, -0.1, -0.05, -0.02, 0, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
		),
		Evaluations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rotator_optimizer_evaluations_total",
				Help: "Total number of objective evaluations",
			},
		),
		BestObjective: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rotator_optimizer_best_objective",
				Help: "Lowest objective value observed",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_cache_hits_total",
				Help: "Price cache hits by layer",
			},
			[]string{"layer"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_cache_misses_total",
				Help: "Price cache misses by layer",
			},
			[]string{"layer"},
		),
	}

	r.reg.MustRegister(
		r.StepDuration,
		r.Steps,
		r.Runs,
		r.LastReturn,
		r.PeriodReturns,
		r.Evaluations,
		r.BestObjective,
		r.CacheHits,
		r.CacheMisses,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveStep records a step duration labelled ok or error.
func (r *Registry) ObserveStep(step string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.StepDuration.WithLabelValues(step, result).Observe(d.Seconds())
	r.Steps.WithLabelValues(step, result).Inc()

	log.Debug().
		Str("step", step).
		Str("result", result).
		Dur("duration", d).
		Msg("Pipeline step completed")
}

func (r *Registry) RecordRun(kind string, totalReturn float64) {
	r.Runs.WithLabelValues(kind).Inc()
	r.LastReturn.WithLabelValues(kind).Set(totalReturn)
}

func (r *Registry) RecordPeriod(periodReturn float64) {
	r.PeriodReturns.Observe(periodReturn)
}

// RecordEvaluation counts an objective call and tracks the minimum.
func (r *Registry) RecordEvaluation(objective float64) {
	r.Evaluations.Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.seen || objective < r.best {
		r.best, r.seen = objective, true
		r.BestObjective.Set(objective)
	}
}

func (r *Registry) RecordCacheHit(layer string) {
	r.CacheHits.WithLabelValues(layer).Inc()
}

func (r *Registry) RecordCacheMiss(layer string) {
	r.CacheMisses.WithLabelValues(layer).Inc()
}

// StepTimer tracks execution time for a pipeline step.
type StepTimer struct {
	rec   Recorder
	step  string
	start time.Time
}

// StartStep begins timing step against rec.
func StartStep(rec Recorder, step string) *StepTimer {
	return &StepTimer{rec: rec, step: step, start: time.Now()}
}

// Stop records the elapsed time with the outcome of err.
func (st *StepTimer) Stop(err error) {
	st.rec.ObserveStep(st.step, time.Since(st.start), err)
}
