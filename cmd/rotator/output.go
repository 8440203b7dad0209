package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/score/portfolio"
	"github.com/sawpanic/rotator/internal/tune/opt"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okLabel     = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel   = color.New(color.FgRed, color.Bold).SprintFunc()
	dimLabel    = color.New(color.Faint).SprintFunc()
)

// signed colors a return green when positive and red when negative.
func signed(v float64) string {
	s := fmt.Sprintf("%+.2f%%", v*100)
	switch {
	case v > 0:
		return color.GreenString(s)
	case v < 0:
		return color.RedString(s)
	}
	return s
}

func printHoldings(w io.Writer, asOf time.Time, holdings []portfolio.Holding) {
	headerColor.Fprintf(w, "Portfolio as of %s\n", asOf.Format(market.DateLayout))
	fmt.Fprintf(w, "%-4s %-10s %10s %11s\n", "#", "Ticker", "Score", "Allocation")
	for i, h := range holdings {
		fmt.Fprintf(w, "%-4d %-10s %10.2f %10.2f%%\n", i+1, h.Ticker, h.Score, h.Allocation*100)
	}
}

func printSummary(w io.Writer, res *rebalance.Result, dir string) {
	s := rebalance.Summarize(res)
	headerColor.Fprintf(w, "%s backtest %s .. %s\n", res.Kind,
		res.Start.Format(market.DateLayout), res.End.Format(market.DateLayout))
	fmt.Fprintf(w, "  Run:           %s\n", dimLabel(res.RunID.String()))
	fmt.Fprintf(w, "  Total return:  %s\n", signed(s.TotalReturn))
	fmt.Fprintf(w, "  Final cash:    %.2f (from %.2f)\n", res.FinalCash, res.InitialCash)
	fmt.Fprintf(w, "  Periods:       %d\n", s.Periods)
	if s.Periods > 1 {
		fmt.Fprintf(w, "  Best / worst:  %s / %s\n", signed(s.BestPeriod), signed(s.WorstPeriod))
		fmt.Fprintf(w, "  Win rate:      %.0f%%\n", s.WinRate*100)
	}
	fmt.Fprintf(w, "  Max drawdown:  %s\n", signed(-s.MaxDrawdown))
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:       %d position(s) without prices\n", s.Skipped)
	}
	fmt.Fprintf(w, "  Artifacts:     %s\n", dir)
}

func printOptimization(w io.Writer, r opt.Result) {
	s := opt.Summarize(r)
	headerColor.Fprintln(w, "Lookback weight optimization")
	fmt.Fprintf(w, "  Evaluations:   %d in %s\n", s.Evaluations, s.ElapsedTime.Round(time.Millisecond))
	fmt.Fprintf(w, "  Return:        %s -> %s\n", signed(-s.InitialObjective), signed(-s.FinalObjective))
	for _, coord := range sortedCoords(r.Best) {
		fmt.Fprintf(w, "  %-14s %.3f -> %.3f\n", coord+":", r.Initial[coord], r.Best[coord])
	}
	switch {
	case s.Converged:
		fmt.Fprintf(w, "  Stopped:       %s\n", okLabel("converged"))
	case s.EarlyStopped:
		fmt.Fprintf(w, "  Stopped:       %s\n", okLabel("no further improvement"))
	default:
		fmt.Fprintf(w, "  Stopped:       %s\n", failLabel("evaluation budget exhausted"))
	}
}

func printCoverage(w io.Writer, m market.PriceMatrix) {
	headerColor.Fprintf(w, "Cached %d instrument(s)\n", len(m.Tickers()))
	for _, t := range m.Tickers() {
		s := m.Series(t)
		if s.Len() == 0 {
			fmt.Fprintf(w, "  %-10s %s\n", t, failLabel("no prices"))
			continue
		}
		last, _ := s.Last()
		fmt.Fprintf(w, "  %-10s %6d rows  %s .. %s\n", t, s.Len(),
			s.Points[0].Date.Format(market.DateLayout), last.Date.Format(market.DateLayout))
	}
}

func sortedCoords(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
