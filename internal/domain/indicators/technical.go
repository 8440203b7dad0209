package indicators

import (
	"math"

	"github.com/sawpanic/rotator/internal/frame"
)

// Every Calculate* function returns a slice aligned with prices. Positions
// without enough history are absent. A non-positive window yields an
// all-absent result.

// CalculateMovingAverage returns the simple rolling mean, or the
// exponential moving average when exponential is set.
func CalculateMovingAverage(prices []float64, window int, exponential bool) []frame.Value {
	if exponential {
		return CalculateEMA(prices, window)
	}
	return CalculateSMA(prices, window)
}

// CalculateSMA returns the rolling mean over window observations.
func CalculateSMA(prices []float64, window int) []frame.Value {
	out := make([]frame.Value, len(prices))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(prices); i++ {
		out[i] = frame.Some(mean(prices[i-window+1 : i+1]))
	}
	return out
}

// CalculateEMA returns the exponential moving average with smoothing factor
// 2/(span+1). Each point folds into the prior average without re-weighting
// the sample, so the series is defined from the first observation.
func CalculateEMA(prices []float64, span int) []frame.Value {
	out := make([]frame.Value, len(prices))
	if span <= 0 {
		return out
	}
	for i, e := range ema(prices, span) {
		out[i] = frame.Some(e)
	}
	return out
}

// CalculateRSI returns the Relative Strength Index using rolling means of
// gains and losses. A window with no losses saturates at 100; a window
// with neither gains nor losses is absent.
func CalculateRSI(prices []float64, window int) []frame.Value {
	out := make([]frame.Value, len(prices))
	if window <= 0 {
		return out
	}

	// Separate gains and losses
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	for i := window; i < len(prices); i++ {
		avgGain := mean(gains[i-window+1 : i+1])
		avgLoss := mean(losses[i-window+1 : i+1])
		switch {
		case avgLoss == 0 && avgGain == 0:
			continue
		case avgLoss == 0:
			out[i] = frame.Some(100)
		default:
			rs := avgGain / avgLoss
			out[i] = frame.Some(100 - 100/(1+rs))
		}
	}
	return out
}

// CalculateVolatility returns the rolling sample standard deviation of
// period-over-period percentage change.
func CalculateVolatility(prices []float64, window int) []frame.Value {
	out := make([]frame.Value, len(prices))
	if window < 2 {
		return out
	}
	returns := pctChange(prices)
	for i := window; i < len(prices); i++ {
		out[i] = sampleStd(returns[i-window+1 : i+1])
	}
	return out
}

// CalculateMACDHistogram returns the MACD line minus its signal line.
func CalculateMACDHistogram(prices []float64, short, long, signal int) []frame.Value {
	out := make([]frame.Value, len(prices))
	if short <= 0 || long <= 0 || signal <= 0 || len(prices) == 0 {
		return out
	}
	emaShort := ema(prices, short)
	emaLong := ema(prices, long)
	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = emaShort[i] - emaLong[i]
	}
	sig := ema(line, signal)
	for i := range line {
		out[i] = frame.Some(line[i] - sig[i])
	}
	return out
}

// CalculateBollingerPercentB returns (price - lower) / (upper - lower) with
// bands at SMA ± numStd sample deviations. Collapsed bands are absent.
func CalculateBollingerPercentB(prices []float64, window int, numStd float64) []frame.Value {
	out := make([]frame.Value, len(prices))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(prices); i++ {
		w := prices[i-window+1 : i+1]
		sd, ok := sampleStd(w).Get()
		if !ok {
			continue
		}
		m := mean(w)
		upper := m + numStd*sd
		lower := m - numStd*sd
		if upper == lower {
			continue
		}
		out[i] = frame.Some((prices[i] - lower) / (upper - lower))
	}
	return out
}

// CalculateADI returns the trailing count of up days minus down days.
// The first observation counts as neither.
func CalculateADI(prices []float64, window int) []frame.Value {
	out := make([]frame.Value, len(prices))
	if window <= 0 {
		return out
	}
	moves := make([]int, len(prices))
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			moves[i] = 1
		case prices[i] < prices[i-1]:
			moves[i] = -1
		}
	}
	for i := window - 1; i < len(prices); i++ {
		net := 0
		for _, m := range moves[i-window+1 : i+1] {
			net += m
		}
		out[i] = frame.Some(float64(net))
	}
	return out
}

func ema(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// pctChange returns NaN at index 0 and wherever the prior price is zero.
func pctChange(prices []float64) []float64 {
	out := make([]float64, len(prices))
	if len(out) > 0 {
		out[0] = math.NaN()
	}
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = prices[i]/prices[i-1] - 1
	}
	return out
}

// sampleStd uses the N-1 denominator and is absent for fewer than two
// points or any NaN input.
func sampleStd(xs []float64) frame.Value {
	if len(xs) < 2 {
		return frame.None()
	}
	for _, x := range xs {
		if math.IsNaN(x) {
			return frame.None()
		}
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return frame.Some(math.Sqrt(ss / float64(len(xs)-1)))
}

// Last returns the final element of an indicator series, absent when empty.
func Last(vals []frame.Value) frame.Value {
	if len(vals) == 0 {
		return frame.None()
	}
	return vals[len(vals)-1]
}
