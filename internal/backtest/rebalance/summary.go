package rebalance

// Summary condenses a Result for reports and the CLI.
type Summary struct {
	TotalReturn float64 `json:"total_return"`
	Periods     int     `json:"periods"`
	BestPeriod  float64 `json:"best_period"`
	WorstPeriod float64 `json:"worst_period"`
	// MaxDrawdown is measured on period-end equity, as a positive fraction.
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	Skipped     int     `json:"skipped_positions"`
}

// Summarize computes period statistics of r.
func Summarize(r *Result) Summary {
	s := Summary{TotalReturn: r.TotalReturn, Periods: len(r.Periods)}
	if len(r.Periods) == 0 {
		return s
	}

	peak := r.InitialCash
	wins := 0
	for i, p := range r.Periods {
		if i == 0 || p.Return > s.BestPeriod {
			s.BestPeriod = p.Return
		}
		if i == 0 || p.Return < s.WorstPeriod {
			s.WorstPeriod = p.Return
		}
		if p.Return > 0 {
			wins++
		}
		if p.EndCash > peak {
			peak = p.EndCash
		}
		if peak > 0 {
			if dd := (peak - p.EndCash) / peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
		for _, h := range p.Holdings {
			if h.Skipped {
				s.Skipped++
			}
		}
	}
	s.WinRate = float64(wins) / float64(len(r.Periods))
	return s
}

// Equity returns the period-end cash curve prefixed with the initial cash.
func (r *Result) Equity() []float64 {
	out := make([]float64, 0, len(r.Periods)+1)
	out = append(out, r.InitialCash)
	for _, p := range r.Periods {
		out = append(out, p.EndCash)
	}
	return out
}
