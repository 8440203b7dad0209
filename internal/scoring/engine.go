// Package scoring combines normalized indicators and momentum ranks into a
// single composite score per instrument.
package scoring

import (
	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

type aggregate int

const (
	aggSum aggregate = iota
	aggMean
)

// WeightIndicators returns, per instrument, the sum of weight × value over
// the weighted columns. Nil or empty weights give every column weight 1.
// Missing cells are skipped; a row with no present weighted cell is absent.
func WeightIndicators(normalized frame.Table, weights map[string]float64) (frame.Series, error) {
	return weigh(normalized, weights, aggSum, "indicator")
}

// WeightMomentum is WeightIndicators with the arithmetic mean in place of
// the sum, since ranks are ordinal.
func WeightMomentum(ranks frame.Table, weights map[string]float64) (frame.Series, error) {
	return weigh(ranks, weights, aggMean, "momentum column")
}

// Aggregate returns indicator − momentumWeight × momentumRank. The result
// is indexed exactly by indicator; an instrument missing from momentum
// gets an absent score.
func Aggregate(indicator, momentum frame.Series, momentumWeight float64) (frame.Series, error) {
	aligned, err := momentum.Reindex(indicator.Keys())
	if err != nil {
		return frame.Series{}, err
	}
	vals := make([]frame.Value, indicator.Len())
	for i, mom := range aligned.Values() {
		ind, iok := indicator.At(i).Value.Get()
		m, mok := mom.Get()
		if iok && mok {
			vals[i] = frame.Some(ind - momentumWeight*m)
		}
	}
	return frame.NewSeries(indicator.Keys(), vals)
}

// AggregateRanks folds a per-window rank table through WeightMomentum
// before aggregating.
func AggregateRanks(indicator frame.Series, ranks frame.Table, momentumWeight float64, lookbackWeights map[string]float64) (frame.Series, error) {
	momentum, err := WeightMomentum(ranks, lookbackWeights)
	if err != nil {
		return frame.Series{}, err
	}
	return Aggregate(indicator, momentum, momentumWeight)
}

// Scale rescales present scores linearly to [0, 100]. A constant series
// maps every instrument to 50.
func Scale(scores frame.Series) (frame.Series, error) {
	present := scores.Present()
	if present.Len() == 0 {
		return scores, nil
	}
	lo, _ := present.At(0).Value.Get()
	hi := lo
	for _, v := range present.Values() {
		f, _ := v.Get()
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if hi == lo {
		return frame.Constant(scores.Keys(), frame.Some(50))
	}
	vals := scores.Values()
	for i, v := range vals {
		if f, ok := v.Get(); ok {
			vals[i] = frame.Some((f - lo) / (hi - lo) * 100)
		}
	}
	return frame.NewSeries(scores.Keys(), vals)
}

func weigh(t frame.Table, weights map[string]float64, agg aggregate, kind string) (frame.Series, error) {
	for key := range weights {
		if !t.HasColumn(key) {
			return frame.Series{}, errs.KeyNotFound(kind, key)
		}
	}

	cols := t.Columns()
	w := make([]float64, len(cols))
	use := make([]bool, len(cols))
	for j, c := range cols {
		if len(weights) == 0 {
			w[j], use[j] = 1, true
			continue
		}
		w[j], use[j] = weights[c]
	}

	vals := make([]frame.Value, t.Len())
	for i := range vals {
		sum, n := 0.0, 0
		for j, v := range t.Row(i) {
			if !use[j] {
				continue
			}
			if f, ok := v.Get(); ok {
				sum += w[j] * f
				n++
			}
		}
		if n == 0 {
			continue
		}
		if agg == aggMean {
			sum /= float64(n)
		}
		vals[i] = frame.Some(sum)
	}
	return frame.NewSeries(t.Rows(), vals)
}
