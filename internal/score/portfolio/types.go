package portfolio

import (
	"strings"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

// Method selects how selected instruments are weighted
type Method string

const (
	Equal             Method = "equal"
	ScoreProportional Method = "score-proportional"
	VolatilityInverse Method = "volatility-inverse"
)

// ParseMethod accepts the canonical names plus the short aliases
// "score" and "volatility".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equal":
		return Equal, nil
	case "score-proportional", "score":
		return ScoreProportional, nil
	case "volatility-inverse", "volatility":
		return VolatilityInverse, nil
	}
	return "", errs.InvalidArgument("unknown allocation method %q", s)
}

// Holding is one exported line of a portfolio
type Holding struct {
	Ticker     string  `json:"Ticker"`
	Score      float64 `json:"Score"`
	Allocation float64 `json:"Allocation"`
}

// Holdings pairs the selected scores with their allocations in selection
// order. Instruments without an allocation get 0.
func Holdings(selected, allocations frame.Series) []Holding {
	out := make([]Holding, 0, selected.Len())
	for _, e := range selected.Entries() {
		a, _ := allocations.Get(e.Key)
		out = append(out, Holding{
			Ticker:     e.Key,
			Score:      e.Value.Or(0),
			Allocation: a.Or(0),
		})
	}
	return out
}
