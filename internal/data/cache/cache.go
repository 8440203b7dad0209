// Package cache stores full daily price histories per instrument.
package cache

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sawpanic/rotator/internal/market"
)

// Cache loads and stores price series by ticker. A miss is (zero, false, nil).
type Cache interface {
	Name() string
	Load(ctx context.Context, ticker string) (market.PriceSeries, bool, error)
	Store(ctx context.Context, series market.PriceSeries) error
}

var header = []string{"date", "close"}

// WriteCSV encodes series as date,close rows.
func WriteCSV(w io.Writer, series market.PriceSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range series.Points {
		rec := []string{p.Date.Format(market.DateLayout), strconv.FormatFloat(p.Price, 'g', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes date,close rows into a series for ticker.
func ReadCSV(r io.Reader, ticker string) (market.PriceSeries, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return market.PriceSeries{}, fmt.Errorf("read %s csv: %w", ticker, err)
	}
	if len(rows) == 0 {
		return market.PriceSeries{}, fmt.Errorf("%s csv: missing header", ticker)
	}
	if len(rows[0]) < 2 || !strings.EqualFold(rows[0][0], header[0]) {
		return market.PriceSeries{}, fmt.Errorf("%s csv: unexpected header %v", ticker, rows[0])
	}

	points := make([]market.Point, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return market.PriceSeries{}, fmt.Errorf("%s csv line %d: expected 2 fields", ticker, i+2)
		}
		d, err := market.ParseDate(row[0])
		if err != nil {
			return market.PriceSeries{}, fmt.Errorf("%s csv line %d: %w", ticker, i+2, err)
		}
		p, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return market.PriceSeries{}, fmt.Errorf("%s csv line %d: %w", ticker, i+2, err)
		}
		points = append(points, market.Point{Date: d, Price: p})
	}
	return market.NewPriceSeries(ticker, points)
}
