package portfolio

import (
	"sort"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

// Select returns the topN highest present scores in descending order.
// Ties keep the input order.
func Select(scores frame.Series, topN int) (frame.Series, error) {
	if topN <= 0 {
		return frame.Series{}, errs.InvalidArgument("topN must be positive, got %d", topN)
	}
	if scores.Len() == 0 {
		return frame.Series{}, errs.InvalidArgument("no scores provided")
	}

	entries := scores.Present().Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		a, _ := entries[i].Value.Get()
		b, _ := entries[j].Value.Get()
		return a > b
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return frame.FromEntries(entries)
}

// Allocate turns selected values into weights summing to 1.
//
// Equal assigns 1/N. ScoreProportional falls back to equal weights when the
// present values sum to exactly zero; otherwise it divides each value by the
// total, counting negative or missing values as 0. VolatilityInverse weights
// by 1/value over the positive values only; when none is positive it falls
// back to equal weights.
func Allocate(selected frame.Series, method Method) (frame.Series, error) {
	if selected.Len() == 0 {
		return frame.Series{}, errs.InvalidArgument("no tickers selected")
	}
	m, err := ParseMethod(string(method))
	if err != nil {
		return frame.Series{}, err
	}

	if m == ScoreProportional && signedSum(selected) == 0 {
		return frame.Constant(selected.Keys(), frame.Some(1/float64(selected.Len())))
	}

	raw := make([]float64, selected.Len())
	for i, v := range selected.Values() {
		f, ok := v.Get()
		if !ok {
			continue
		}
		switch m {
		case ScoreProportional:
			if f > 0 {
				raw[i] = f
			}
		case VolatilityInverse:
			if f > 0 {
				raw[i] = 1 / f
			}
		}
	}

	total := 0.0
	for _, r := range raw {
		total += r
	}
	if m == Equal || total == 0 {
		return frame.Constant(selected.Keys(), frame.Some(1/float64(selected.Len())))
	}

	weights := make([]frame.Value, len(raw))
	for i, r := range raw {
		weights[i] = frame.Some(r / total)
	}
	return frame.NewSeries(selected.Keys(), weights)
}

func signedSum(s frame.Series) float64 {
	sum := 0.0
	for _, v := range s.Values() {
		if f, ok := v.Get(); ok {
			sum += f
		}
	}
	return sum
}
