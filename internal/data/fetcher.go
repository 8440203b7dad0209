package data

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/rotator/internal/data/cache"
	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/market"
)

// errNotCached reports a cache miss in offline mode.
var errNotCached = errs.InvalidArgument("not cached and no provider configured")

// Fetcher serves price matrices cache-first. Retrieval is all-or-nothing:
// one failed ticker fails the whole request.
type Fetcher struct {
	provider    Provider
	cache       cache.Cache
	concurrency int
	refresh     bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithConcurrency bounds parallel downloads.
func WithConcurrency(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithRefresh bypasses cache reads; downloads are still written back.
func WithRefresh(refresh bool) FetcherOption {
	return func(f *Fetcher) { f.refresh = refresh }
}

// NewFetcher builds a fetcher. provider may be nil for offline use; c may
// be nil to disable caching.
func NewFetcher(provider Provider, c cache.Cache, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{provider: provider, cache: c, concurrency: 4}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetPrices returns the outer-joined closes of tickers restricted to r.
// Every failing ticker is reported in one *errs.DataUnavailableError.
func (f *Fetcher) GetPrices(ctx context.Context, tickers []string, r market.DateRange) (market.PriceMatrix, error) {
	tickers = dedupe(tickers)
	if len(tickers) == 0 {
		return market.PriceMatrix{}, errs.InvalidArgument("no tickers requested")
	}

	log.Info().Strs("tickers", tickers).Str("range", r.String()).Msg("Fetching market data")

	series := make([]market.PriceSeries, len(tickers))
	var mu sync.Mutex
	failures := make(map[string]error)

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			s, err := f.Series(ctx, ticker)
			if err != nil {
				mu.Lock()
				failures[ticker] = err
				mu.Unlock()
				return nil
			}
			series[i] = s
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return market.PriceMatrix{}, err
	}
	if err := errs.NewDataUnavailable(failures); err != nil {
		log.Error().Err(err).Msg("Market data retrieval failed")
		return market.PriceMatrix{}, err
	}

	m, err := market.Join(series...)
	if err != nil {
		return market.PriceMatrix{}, err
	}
	return m.Slice(r), nil
}

// Series returns the full cached or downloaded history of ticker.
func (f *Fetcher) Series(ctx context.Context, ticker string) (market.PriceSeries, error) {
	if f.cache != nil && !f.refresh {
		s, ok, err := f.cache.Load(ctx, ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Cache read failed, downloading")
		} else if ok {
			log.Debug().Str("ticker", ticker).Msg("Loaded from cache")
			return s, nil
		}
	}
	if f.provider == nil {
		return market.PriceSeries{}, errNotCached
	}

	log.Debug().Str("ticker", ticker).Msg("Downloading history")
	s, err := f.provider.FetchDaily(ctx, ticker, market.DateRange{})
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("Download failed")
		return market.PriceSeries{}, err
	}
	if s.Len() == 0 {
		return market.PriceSeries{}, ErrEmptyData
	}
	s.Ticker = ticker
	if f.cache != nil {
		if err := f.cache.Store(ctx, s); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Cache write failed")
		}
	}
	return s, nil
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
