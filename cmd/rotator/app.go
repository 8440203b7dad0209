package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/application/pipeline"
	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/config"
	"github.com/sawpanic/rotator/internal/data"
	"github.com/sawpanic/rotator/internal/data/cache"
	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/metrics"
	"github.com/sawpanic/rotator/internal/persistence"
	"github.com/sawpanic/rotator/internal/persistence/postgres"
	"github.com/sawpanic/rotator/internal/persistence/sqlite"
	"github.com/sawpanic/rotator/internal/score/portfolio"
)

// app holds the collaborators built lazily from the configuration.
type app struct {
	cfg      *config.Config
	registry *metrics.Registry
	fetcher  *data.Fetcher
	provider *data.YahooProvider
	redis    *cache.Redis
	store    *persistence.Store
	closers  []io.Closer
}

func (a *app) metrics() *metrics.Registry {
	if a.registry == nil {
		a.registry = metrics.NewRegistry()
	}
	return a.registry
}

// prices builds the cache-first fetcher: memory, disk, then Redis when
// configured.
func (a *app) prices(ctx context.Context, refresh bool) (*data.Fetcher, error) {
	if a.fetcher != nil && !refresh {
		return a.fetcher, nil
	}

	disk, err := cache.NewDisk(a.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	layers := []cache.Cache{cache.NewMemory(256, time.Hour), disk}
	if a.cfg.Redis.Addr != "" && a.redis == nil {
		r, err := cache.DialRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB, a.cfg.Redis.TTL)
		if err != nil {
			log.Warn().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("Redis cache unavailable, continuing without it")
		} else {
			a.redis = r
			a.closers = append(a.closers, r)
		}
	}
	if a.redis != nil {
		layers = append(layers, a.redis)
	}

	a.provider = data.NewYahooProvider(a.cfg.Yahoo())
	a.fetcher = data.NewFetcher(a.provider, cache.NewLayered(a.metrics(), layers...), data.WithRefresh(refresh))
	return a.fetcher, nil
}

// runStore opens the configured database, or returns nil when disabled.
func (a *app) runStore(ctx context.Context) (*persistence.Store, error) {
	if !a.cfg.Database.Enabled {
		return nil, nil
	}
	if a.store != nil {
		return a.store, nil
	}

	var (
		store *persistence.Store
		err   error
	)
	switch a.cfg.Database.Driver {
	case "postgres":
		store, err = postgres.Open(ctx, a.cfg.Database.DSN, 5*time.Second)
	case "sqlite3":
		store, err = sqlite.Open(ctx, a.cfg.Database.DSN, 5*time.Second)
	default:
		err = errs.InvalidArgument("unknown database driver %q", a.cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)
	return store, nil
}

func (a *app) ranker() (*pipeline.Ranker, error) {
	return pipeline.NewRanker(a.cfg.Pipeline(), pipeline.WithRecorder(a.metrics()))
}

// allocator picks the refresh allocator for the configured model.
func (a *app) allocator() (rebalance.Allocator, error) {
	if a.cfg.AllocationModel == config.ModelTrailingReturn {
		alloc, err := rebalance.NewTrailingReturnAllocator(portfolio.Method(a.cfg.AllocationMethod), a.cfg.TopFraction)
		if err != nil {
			return nil, err
		}
		return alloc, nil
	}
	ranker, err := a.ranker()
	if err != nil {
		return nil, err
	}
	return ranker, nil
}

func (a *app) engine(ctx context.Context, observers ...rebalance.Observer) (*rebalance.Engine, error) {
	prices, err := a.prices(ctx, false)
	if err != nil {
		return nil, err
	}
	alloc, err := a.allocator()
	if err != nil {
		return nil, err
	}
	opts := []rebalance.Option{
		rebalance.WithAllocator(alloc),
		rebalance.WithRecorder(a.metrics()),
	}
	for _, o := range observers {
		opts = append(opts, rebalance.WithObserver(o))
	}
	return rebalance.NewEngine(a.cfg.Backtest(), prices, opts...)
}

// finish writes the artifacts of res and stores it when a database is
// configured.
func (a *app) finish(ctx context.Context, res *rebalance.Result, out io.Writer) error {
	w := rebalance.NewWriter(a.cfg.Export.Dir)
	if err := w.WriteAll(res); err != nil {
		return err
	}
	printSummary(out, res, w.OutputDir())

	store, err := a.runStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	run, err := persistence.FromResult(res, paramsOf(a.cfg))
	if err != nil {
		return err
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	log.Info().Str("run_id", run.ID.String()).Msg("Run stored")
	return nil
}

func (a *app) requireTickers() error {
	if len(a.cfg.Tickers) == 0 {
		return errs.InvalidArgument("no Tickers configured")
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}

// runParams is the subset of the configuration stored with a run.
type runParams struct {
	AllocationMethod string             `json:"allocation_method"`
	AllocationModel  string             `json:"allocation_model"`
	Tickers          []string           `json:"tickers"`
	Lookbacks        []int              `json:"lookbacks"`
	LookbackWeights  map[string]float64 `json:"lookback_weights,omitempty"`
	IndicatorWeights map[string]float64 `json:"indicator_weights,omitempty"`
	TopN             int                `json:"top_n"`
	TopFraction      float64            `json:"top_fraction"`
	MissingValues    string             `json:"missing_values"`
}

func paramsOf(cfg *config.Config) runParams {
	return runParams{
		AllocationMethod: cfg.AllocationMethod,
		AllocationModel:  cfg.AllocationModel,
		Tickers:          cfg.Tickers,
		Lookbacks:        cfg.MomentumLookbacks,
		LookbackWeights:  cfg.LookbackWeights,
		IndicatorWeights: cfg.IndicatorWeights,
		TopN:             cfg.TopN,
		TopFraction:      cfg.TopFraction,
		MissingValues:    cfg.MissingValueMethod,
	}
}
