package rebalance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	charts "github.com/vicanso/go-charts/v2"

	"github.com/sawpanic/rotator/internal/market"
)

// Writer handles writing backtest artifacts to disk
type Writer struct {
	outputDir string
	dateDir   string
}

// NewWriter creates a writer under outputDir/<today>.
func NewWriter(outputDir string) *Writer {
	dateDir := time.Now().Format(market.DateLayout)
	return &Writer{
		outputDir: filepath.Join(outputDir, dateDir),
		dateDir:   dateDir,
	}
}

// OutputDir returns the full output directory path
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// WriteAll writes results.jsonl, report.md and equity.png.
func (w *Writer) WriteAll(r *Result) error {
	if err := w.WriteResults(r); err != nil {
		return err
	}
	if err := w.WriteReport(r); err != nil {
		return err
	}
	return w.WriteEquityChart(r)
}

// WriteResults writes one JSON line per period followed by the summary line.
func (w *Writer) WriteResults(r *Result) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filepath.Join(w.outputDir, "results.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, p := range r.Periods {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to write period %d: %w", p.Index, err)
		}
	}

	summary := struct {
		RunID     string    `json:"run_id"`
		Kind      string    `json:"kind"`
		StartedAt time.Time `json:"started_at"`
		Summary
	}{r.RunID.String(), r.Kind, r.StartedAt, Summarize(r)}
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// WriteReport writes a markdown report.
func (w *Writer) WriteReport(r *Result) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.outputDir, "report.md"), []byte(markdownReport(r)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteEquityChart renders the period-end equity curve as a PNG.
func (w *Writer) WriteEquityChart(r *Result) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	labels := []string{r.Start.Format(market.DateLayout)}
	for _, p := range r.Periods {
		labels = append(labels, p.End.Format(market.DateLayout))
	}
	painter, err := charts.LineRender([][]float64{r.Equity()},
		charts.TitleTextOptionFunc(fmt.Sprintf("%s equity", r.Kind)),
		charts.XAxisDataOptionFunc(labels),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(500),
	)
	if err != nil {
		return fmt.Errorf("failed to render equity chart: %w", err)
	}
	img, err := painter.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode equity chart: %w", err)
	}
	return os.WriteFile(filepath.Join(w.outputDir, "equity.png"), img, 0644)
}

func money(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}

func pct(f float64) string {
	return decimal.NewFromFloat(f).Shift(2).StringFixed(2) + "%"
}

func markdownReport(r *Result) string {
	var b strings.Builder
	s := Summarize(r)

	fmt.Fprintf(&b, "# Backtest Report (%s)\n\n", r.Kind)
	fmt.Fprintf(&b, "**Run**: %s\n", r.RunID)
	fmt.Fprintf(&b, "**Started**: %s\n", r.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "**Horizon**: %s to %s\n", r.Start.Format(market.DateLayout), r.End.Format(market.DateLayout))
	if r.RebalanceMonths > 0 {
		fmt.Fprintf(&b, "**Rebalance**: every %d month(s)\n\n", r.RebalanceMonths)
	} else {
		b.WriteString("**Rebalance**: none\n\n")
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Initial Cash**: %s\n", money(r.InitialCash))
	fmt.Fprintf(&b, "- **Final Cash**: %s\n", money(r.FinalCash))
	fmt.Fprintf(&b, "- **Total Return**: %s\n", pct(s.TotalReturn))
	fmt.Fprintf(&b, "- **Periods**: %d (win rate %s)\n", s.Periods, pct(s.WinRate))
	fmt.Fprintf(&b, "- **Best / Worst Period**: %s / %s\n", pct(s.BestPeriod), pct(s.WorstPeriod))
	fmt.Fprintf(&b, "- **Max Drawdown**: %s\n\n", pct(s.MaxDrawdown))

	b.WriteString("## Periods\n\n")
	b.WriteString("| # | Start | End | Start Cash | End Cash | Return | Holdings |\n")
	b.WriteString("|---|-------|-----|-----------:|---------:|-------:|----------|\n")
	for _, p := range r.Periods {
		var names []string
		for _, h := range p.Holdings {
			name := fmt.Sprintf("%s %s", h.Ticker, pct(h.Weight))
			if h.Skipped {
				name += " (skipped)"
			}
			names = append(names, name)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s |\n",
			p.Index+1,
			p.Start.Format(market.DateLayout),
			p.End.Format(market.DateLayout),
			money(p.StartCash),
			money(p.EndCash),
			pct(p.Return),
			strings.Join(names, ", "))
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "\n%d position(s) had no prices in their period and were skipped.\n", s.Skipped)
	}
	return b.String()
}
