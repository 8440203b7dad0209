package momentum

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sawpanic/rotator/internal/errs"
)

// ValidateLookbacks accepts a single window or a collection of windows as
// ints, integral floats or numeric strings, and returns them deduplicated
// in ascending order. Any non-positive or non-integer value fails.
func ValidateLookbacks(raw any) ([]int, error) {
	var items []any
	switch v := raw.(type) {
	case int, int32, int64, float64, string:
		items = []any{v}
	case []int:
		for _, x := range v {
			items = append(items, x)
		}
	case []int64:
		for _, x := range v {
			items = append(items, x)
		}
	case []float64:
		for _, x := range v {
			items = append(items, x)
		}
	case []string:
		for _, x := range v {
			items = append(items, x)
		}
	case []any:
		items = v
	default:
		return nil, errs.InvalidArgument("lookbacks must be an int or a list of ints, got %T", raw)
	}
	if len(items) == 0 {
		return nil, errs.InvalidArgument("at least one lookback is required")
	}

	seen := make(map[int]struct{}, len(items))
	out := make([]int, 0, len(items))
	for _, item := range items {
		w, err := toWindow(item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Ints(out)
	return out, nil
}

func toWindow(item any) (int, error) {
	var w int
	switch v := item.(type) {
	case int:
		w = v
	case int32:
		w = int(v)
	case int64:
		w = int(v)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, errs.InvalidArgument("invalid lookback: %v", v)
		}
		w = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errs.InvalidArgument("invalid lookback: %q", v)
		}
		w = n
	default:
		return 0, errs.InvalidArgument("invalid lookback: %v", item)
	}
	if w <= 0 {
		return 0, errs.InvalidArgument("lookback periods must be positive, got %d", w)
	}
	return w, nil
}
