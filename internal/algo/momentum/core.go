package momentum

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
)

// ColumnPrefix names momentum columns as Lookback_<window>.
const ColumnPrefix = "Lookback_"

// ColumnName returns the momentum column for a lookback window.
func ColumnName(window int) string {
	return fmt.Sprintf("%s%d", ColumnPrefix, window)
}

// MomentumCore computes risk-adjusted momentum and cross-sectional ranks
// over a validated set of lookback windows.
type MomentumCore struct {
	windows []int
}

// NewMomentumCore validates lookbacks (see ValidateLookbacks).
func NewMomentumCore(lookbacks any) (*MomentumCore, error) {
	windows, err := ValidateLookbacks(lookbacks)
	if err != nil {
		return nil, err
	}
	return &MomentumCore{windows: windows}, nil
}

// Windows returns the sorted lookback windows.
func (mc *MomentumCore) Windows() []int {
	out := make([]int, len(mc.windows))
	copy(out, mc.windows)
	return out
}

// Columns returns the column name of every window in ascending order.
func (mc *MomentumCore) Columns() []string {
	cols := make([]string, len(mc.windows))
	for i, w := range mc.windows {
		cols[i] = ColumnName(w)
	}
	return cols
}

// CumulativeReturns computes, for each window w, the percentage change over
// the trailing w periods at the latest date divided by the sample standard
// deviation of daily percentage change over the same w periods, times 100.
// Zero volatility, short history and missing prices yield absent cells.
func (mc *MomentumCore) CumulativeReturns(prices market.PriceMatrix) (frame.Table, error) {
	tickers := prices.Tickers()
	cols := mc.Columns()
	cells := make([][]frame.Value, len(tickers))
	for i, t := range tickers {
		col, _ := prices.Column(t)
		cells[i] = make([]frame.Value, len(mc.windows))
		for j, w := range mc.windows {
			cells[i][j] = riskAdjusted(col, w)
		}
	}
	return frame.NewTable(tickers, cols, cells)
}

// Rank runs CumulativeReturns and ranks each window column.
func (mc *MomentumCore) Rank(prices market.PriceMatrix) (frame.Table, error) {
	returns, err := mc.CumulativeReturns(prices)
	if err != nil {
		return frame.Table{}, err
	}
	return RankTable(returns)
}

// RankTable assigns each column independently the ranks 1..N by descending
// value, 1 being strongest. Absent values sort last and still get a rank.
// Ties keep row order. The result keeps the input row order.
func RankTable(returns frame.Table) (frame.Table, error) {
	rows := returns.Rows()
	cols := returns.Columns()
	cells := make([][]frame.Value, len(rows))
	for i := range cells {
		cells[i] = make([]frame.Value, len(cols))
	}
	for j, c := range cols {
		col, err := returns.Column(c)
		if err != nil {
			return frame.Table{}, err
		}
		for i, r := range Rank(col.Values()) {
			cells[i][j] = frame.Some(float64(r))
		}
	}
	return frame.NewTable(rows, cols, cells)
}

// Rank returns the descending rank of each value, aligned with vals.
func Rank(vals []frame.Value) []int {
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, aok := vals[order[a]].Get()
		vb, bok := vals[order[b]].Get()
		if aok != bok {
			return aok
		}
		return aok && va > vb
	})
	ranks := make([]int, len(vals))
	for pos, idx := range order {
		ranks[idx] = pos + 1
	}
	return ranks
}

func riskAdjusted(col []frame.Value, window int) frame.Value {
	last := len(col) - 1
	if window < 2 || last-window < 0 {
		return frame.None()
	}
	end, ok := col[last].Get()
	if !ok {
		return frame.None()
	}
	start, ok := col[last-window].Get()
	if !ok || start == 0 {
		return frame.None()
	}

	// daily returns over the trailing window
	rets := make([]float64, 0, window)
	for i := last - window + 1; i <= last; i++ {
		cur, cok := col[i].Get()
		prev, pok := col[i-1].Get()
		if !cok || !pok || prev == 0 {
			return frame.None()
		}
		rets = append(rets, cur/prev-1)
	}
	vol := sampleStd(rets)
	if vol == 0 {
		return frame.None()
	}
	return frame.Some((end/start - 1) / vol * 100)
}

func sampleStd(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		m += x
	}
	m /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
