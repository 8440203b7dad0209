// Package market holds daily price series and the outer-joined price matrix
// consumed by the ranking pipeline and the rebalancing simulator.
package market

import (
	"fmt"
	"time"

	"github.com/sawpanic/rotator/internal/errs"
)

// DateLayout is the calendar date format used in config, caches and reports.
const DateLayout = "2006-01-02"

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, errs.InvalidArgument("bad date %q: %v", s, err)
	}
	return t, nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// DateRange is an inclusive calendar range. A zero bound is unbounded.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

func (r DateRange) String() string {
	start, end := "-inf", "+inf"
	if !r.Start.IsZero() {
		start = r.Start.Format(DateLayout)
	}
	if !r.End.IsZero() {
		end = r.End.Format(DateLayout)
	}
	return fmt.Sprintf("[%s, %s]", start, end)
}

// Point is one daily observation.
type Point struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is an ordered daily series for one instrument with strictly
// increasing dates.
type PriceSeries struct {
	Ticker string  `json:"ticker"`
	Points []Point `json:"points"`
}

// NewPriceSeries validates ordering and returns the series.
func NewPriceSeries(ticker string, points []Point) (PriceSeries, error) {
	for i := 1; i < len(points); i++ {
		if !points[i].Date.After(points[i-1].Date) {
			return PriceSeries{}, errs.InvalidArgument("%s: dates not strictly increasing at %s",
				ticker, points[i].Date.Format(DateLayout))
		}
	}
	ps := PriceSeries{Ticker: ticker, Points: make([]Point, len(points))}
	copy(ps.Points, points)
	return ps, nil
}

// Len returns the number of observations.
func (s PriceSeries) Len() int { return len(s.Points) }

// Prices returns the price column.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Slice returns the observations inside r.
func (s PriceSeries) Slice(r DateRange) PriceSeries {
	out := PriceSeries{Ticker: s.Ticker}
	for _, p := range s.Points {
		if r.Contains(p.Date) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// Last returns the final observation.
func (s PriceSeries) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}
