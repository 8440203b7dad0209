package cache

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/metrics"
)

// Layered reads through its layers in order and back-fills the faster
// layers on a hit. Layer errors are logged and treated as misses.
type Layered struct {
	layers []Cache
	rec    metrics.Recorder
}

// NewLayered stacks layers, fastest first. rec may be nil.
func NewLayered(rec metrics.Recorder, layers ...Cache) *Layered {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Layered{layers: layers, rec: rec}
}

func (l *Layered) Name() string { return "layered" }

func (l *Layered) Load(ctx context.Context, ticker string) (market.PriceSeries, bool, error) {
	for i, layer := range l.layers {
		s, ok, err := layer.Load(ctx, ticker)
		if err != nil {
			if ctx.Err() != nil {
				return market.PriceSeries{}, false, ctx.Err()
			}
			log.Warn().Err(err).Str("layer", layer.Name()).Str("ticker", ticker).Msg("Cache read failed")
			ok = false
		}
		if !ok {
			l.rec.RecordCacheMiss(layer.Name())
			continue
		}
		l.rec.RecordCacheHit(layer.Name())
		for _, faster := range l.layers[:i] {
			if err := faster.Store(ctx, s); err != nil {
				log.Warn().Err(err).Str("layer", faster.Name()).Str("ticker", ticker).Msg("Cache back-fill failed")
			}
		}
		return s, true, nil
	}
	return market.PriceSeries{}, false, nil
}

// Store writes to every layer and returns the first error.
func (l *Layered) Store(ctx context.Context, series market.PriceSeries) error {
	var first error
	for _, layer := range l.layers {
		if err := layer.Store(ctx, series); err != nil {
			log.Warn().Err(err).Str("layer", layer.Name()).Str("ticker", series.Ticker).Msg("Cache write failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
