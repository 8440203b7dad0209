package indicators

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
	"github.com/sawpanic/rotator/internal/market"
)

// Indicator column names.
const (
	SMA        = "SMA"
	EMA        = "EMA"
	RSI        = "RSI"
	Volatility = "Volatility"
	MACD       = "MACD"
	BB         = "BB"
	ADI        = "ADI"
)

// Columns is the column order of every indicator table.
var Columns = []string{SMA, EMA, RSI, Volatility, MACD, BB, ADI}

// Params holds the window settings for each indicator.
type Params struct {
	SMAWindow        int     `yaml:"SMAWindow" json:"SMAWindow" envconfig:"SMA_WINDOW"`
	EMAWindow        int     `yaml:"EMAWindow" json:"EMAWindow" envconfig:"EMA_WINDOW"`
	RSIWindow        int     `yaml:"RSIWindow" json:"RSIWindow" envconfig:"RSI_WINDOW"`
	VolatilityWindow int     `yaml:"VolatilityWindow" json:"VolatilityWindow" envconfig:"VOLATILITY_WINDOW"`
	MACDShort        int     `yaml:"MACDShort" json:"MACDShort" envconfig:"MACD_SHORT"`
	MACDLong         int     `yaml:"MACDLong" json:"MACDLong" envconfig:"MACD_LONG"`
	MACDSignal       int     `yaml:"MACDSignal" json:"MACDSignal" envconfig:"MACD_SIGNAL"`
	BBWindow         int     `yaml:"BBWindow" json:"BBWindow" envconfig:"BB_WINDOW"`
	BBStd            float64 `yaml:"BBStd" json:"BBStd" envconfig:"BB_STD"`
	ADIWindow        int     `yaml:"ADIWindow" json:"ADIWindow" envconfig:"ADI_WINDOW"`
}

// DefaultParams returns the standard indicator windows.
func DefaultParams() Params {
	return Params{
		SMAWindow:        20,
		EMAWindow:        20,
		RSIWindow:        14,
		VolatilityWindow: 20,
		MACDShort:        12,
		MACDLong:         26,
		MACDSignal:       9,
		BBWindow:         20,
		BBStd:            2,
		ADIWindow:        14,
	}
}

// Validate rejects non-positive windows.
func (p Params) Validate() error {
	windows := map[string]int{
		"SMAWindow":        p.SMAWindow,
		"EMAWindow":        p.EMAWindow,
		"RSIWindow":        p.RSIWindow,
		"VolatilityWindow": p.VolatilityWindow,
		"MACDShort":        p.MACDShort,
		"MACDLong":         p.MACDLong,
		"MACDSignal":       p.MACDSignal,
		"BBWindow":         p.BBWindow,
		"ADIWindow":        p.ADIWindow,
	}
	for name, w := range windows {
		if w <= 0 {
			return errs.InvalidArgument("%s must be positive, got %d", name, w)
		}
	}
	if p.BBStd <= 0 {
		return errs.InvalidArgument("BBStd must be positive, got %g", p.BBStd)
	}
	return nil
}

// Snapshot computes every indicator over prices and keeps the value at the
// latest observation.
func Snapshot(prices []float64, p Params) map[string]frame.Value {
	return map[string]frame.Value{
		SMA:        Last(CalculateSMA(prices, p.SMAWindow)),
		EMA:        Last(CalculateEMA(prices, p.EMAWindow)),
		RSI:        Last(CalculateRSI(prices, p.RSIWindow)),
		Volatility: Last(CalculateVolatility(prices, p.VolatilityWindow)),
		MACD:       Last(CalculateMACDHistogram(prices, p.MACDShort, p.MACDLong, p.MACDSignal)),
		BB:         Last(CalculateBollingerPercentB(prices, p.BBWindow, p.BBStd)),
		ADI:        Last(CalculateADI(prices, p.ADIWindow)),
	}
}

// BuildTable computes one indicator row per instrument of history at its
// latest observation. Instruments without any price are left out. Rows
// keep the matrix ticker order; the per-instrument work runs in parallel.
func BuildTable(ctx context.Context, history market.PriceMatrix, p Params) (frame.Table, error) {
	if err := p.Validate(); err != nil {
		return frame.Table{}, err
	}

	tickers := history.Tickers()
	rows := make([]*frame.Row, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ticker := range tickers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			prices := history.Series(ticker).Prices()
			if len(prices) == 0 {
				return nil
			}
			rows[i] = &frame.Row{Key: ticker, Cells: Snapshot(prices, p)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return frame.Table{}, err
	}

	kept := make([]frame.Row, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			kept = append(kept, *r)
		}
	}
	return frame.TableFromRows(Columns, kept)
}
