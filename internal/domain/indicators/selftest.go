package indicators

import (
	"fmt"
	"math"

	"github.com/sawpanic/rotator/internal/frame"
)

const selfTestTolerance = 1e-9

// SelfTest checks every indicator against hand-computed values on the
// series 1..10 and returns the first mismatch.
func SelfTest() error {
	sample := make([]float64, 10)
	for i := range sample {
		sample[i] = float64(i + 1)
	}

	checks := []struct {
		name string
		got  []frame.Value
		want []frame.Value
	}{
		{
			name: "SMA(3)",
			got:  CalculateMovingAverage(sample, 3, false),
			want: withLeadingNone(2, 2, 3, 4, 5, 6, 7, 8, 9),
		},
		{
			// alpha = 0.5: e[i] = i + 2^-i for the 1-based sample
			name: "EMA(3)",
			got:  CalculateMovingAverage(sample, 3, true),
			want: frame.Values(1, 1.5, 2.25, 3.125, 4.0625, 5.03125, 6.015625, 7.0078125, 8.00390625, 9.001953125),
		},
		{
			// fewer than 14 changes
			name: "RSI(14)",
			got:  CalculateRSI(sample, 14),
			want: withLeadingNone(10),
		},
		{
			// sample stdev of the last three percentage changes
			name: "Volatility(3)",
			got:  CalculateVolatility(sample, 3),
			want: withLeadingNone(3,
				0.3469443332443555, 0.1272937693043289, 0.06735753140545635,
				0.041943524640393054, 0.028703398920674802, 0.020904074906453848,
				0.01591429816867191),
		},
		{
			name: "MACD(12,26,9)",
			got:  CalculateMACDHistogram(sample, 12, 26, 9),
			want: frame.Values(0, 0.06381766381766382, 0.16414412220680027,
				0.2817201893526274, 0.4033023480640005, 0.5201027020622102,
				0.6265976266811811, 0.7196225251526692, 0.7976879879989613,
				0.8604667535680054),
		},
		{
			// bands at (x-1) ± 2 give %B = 3/4 on a unit-step line
			name: "BB(3,2)",
			got:  CalculateBollingerPercentB(sample, 3, 2),
			want: withLeadingNone(2, 0.75, 0.75, 0.75, 0.75, 0.75, 0.75, 0.75, 0.75),
		},
		{
			name: "ADI(3)",
			got:  CalculateADI(sample, 3),
			want: withLeadingNone(2, 2, 3, 3, 3, 3, 3, 3, 3),
		},
	}

	for _, c := range checks {
		if err := compare(c.got, c.want); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

func withLeadingNone(n int, vals ...float64) []frame.Value {
	return append(make([]frame.Value, n), frame.Values(vals...)...)
}

func compare(got, want []frame.Value) error {
	if len(got) != len(want) {
		return fmt.Errorf("length %d, want %d", len(got), len(want))
	}
	for i := range got {
		g, gok := got[i].Get()
		w, wok := want[i].Get()
		if gok != wok {
			return fmt.Errorf("index %d: got %s, want %s", i, got[i], want[i])
		}
		if gok && math.Abs(g-w) > selfTestTolerance {
			return fmt.Errorf("index %d: got %g, want %g", i, g, w)
		}
	}
	return nil
}
