package market

import (
	"sort"
	"time"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

// PriceMatrix aligns several price series on the union of their dates.
// A ticker without an observation on a date holds an absent cell.
type PriceMatrix struct {
	dates   []time.Time
	tickers []string
	cols    map[string][]frame.Value
}

// Join outer-joins the series onto a shared ascending date axis.
func Join(series ...PriceSeries) (PriceMatrix, error) {
	if len(series) == 0 {
		return PriceMatrix{}, errs.InvalidArgument("no price series to join")
	}

	seen := make(map[time.Time]struct{})
	tickers := make([]string, 0, len(series))
	byTicker := make(map[string]PriceSeries, len(series))
	for _, s := range series {
		if _, dup := byTicker[s.Ticker]; dup {
			return PriceMatrix{}, errs.InvalidArgument("duplicate ticker %q", s.Ticker)
		}
		byTicker[s.Ticker] = s
		tickers = append(tickers, s.Ticker)
		for _, p := range s.Points {
			seen[p.Date] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	pos := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		pos[d] = i
	}

	cols := make(map[string][]frame.Value, len(tickers))
	for _, t := range tickers {
		col := make([]frame.Value, len(dates))
		for _, p := range byTicker[t].Points {
			col[pos[p.Date]] = frame.Some(p.Price)
		}
		cols[t] = col
	}
	return PriceMatrix{dates: dates, tickers: tickers, cols: cols}, nil
}

// Dates returns the shared date axis.
func (m PriceMatrix) Dates() []time.Time {
	out := make([]time.Time, len(m.dates))
	copy(out, m.dates)
	return out
}

// Tickers returns the instrument universe in join order.
func (m PriceMatrix) Tickers() []string {
	out := make([]string, len(m.tickers))
	copy(out, m.tickers)
	return out
}

// Len returns the number of dates.
func (m PriceMatrix) Len() int { return len(m.dates) }

// Empty reports whether the matrix has no dates.
func (m PriceMatrix) Empty() bool { return len(m.dates) == 0 }

// Has reports whether ticker is a column of the matrix.
func (m PriceMatrix) Has(ticker string) bool {
	_, ok := m.cols[ticker]
	return ok
}

// Column returns the aligned cells of ticker.
func (m PriceMatrix) Column(ticker string) ([]frame.Value, bool) {
	col, ok := m.cols[ticker]
	if !ok {
		return nil, false
	}
	out := make([]frame.Value, len(col))
	copy(out, col)
	return out, true
}

// Series returns the present observations of ticker as a PriceSeries.
func (m PriceMatrix) Series(ticker string) PriceSeries {
	out := PriceSeries{Ticker: ticker}
	for i, v := range m.cols[ticker] {
		if p, ok := v.Get(); ok {
			out.Points = append(out.Points, Point{Date: m.dates[i], Price: p})
		}
	}
	return out
}

// Slice keeps the rows whose date falls inside r.
func (m PriceMatrix) Slice(r DateRange) PriceMatrix {
	return m.filter(r.Contains)
}

// Before keeps the rows strictly before cutoff.
func (m PriceMatrix) Before(cutoff time.Time) PriceMatrix {
	return m.filter(func(t time.Time) bool { return t.Before(cutoff) })
}

// Select restricts the matrix to tickers, in the given order.
func (m PriceMatrix) Select(tickers []string) (PriceMatrix, error) {
	out := PriceMatrix{dates: m.Dates(), cols: make(map[string][]frame.Value, len(tickers))}
	for _, t := range tickers {
		col, ok := m.cols[t]
		if !ok {
			return PriceMatrix{}, errs.KeyNotFound("ticker", t)
		}
		if _, dup := out.cols[t]; dup {
			continue
		}
		out.tickers = append(out.tickers, t)
		out.cols[t] = col
	}
	return out, nil
}

func (m PriceMatrix) filter(keep func(time.Time) bool) PriceMatrix {
	out := PriceMatrix{tickers: m.Tickers(), cols: make(map[string][]frame.Value, len(m.tickers))}
	var rows []int
	for i, d := range m.dates {
		if keep(d) {
			rows = append(rows, i)
			out.dates = append(out.dates, d)
		}
	}
	for _, t := range m.tickers {
		src := m.cols[t]
		col := make([]frame.Value, len(rows))
		for k, i := range rows {
			col[k] = src[i]
		}
		out.cols[t] = col
	}
	return out
}
