package opt

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"
)

// Summary provides a high-level summary of optimization results
type Summary struct {
	Evaluations        int                `json:"evaluations"`
	ElapsedTime        time.Duration      `json:"elapsed_time"`
	Converged          bool               `json:"converged"`
	EarlyStopped       bool               `json:"early_stopped"`
	InitialObjective   float64            `json:"initial_objective"`
	FinalObjective     float64            `json:"final_objective"`
	Improvement        float64            `json:"improvement"`
	WeightChanges      map[string]float64 `json:"weight_changes"`
	LargestChange      float64            `json:"largest_change"`
	LargestChangeCoord string             `json:"largest_change_coord"`
}

// Summarize compares the best weights with the starting point.
func Summarize(r Result) Summary {
	s := Summary{
		Evaluations:      r.Evaluations,
		ElapsedTime:      r.ElapsedTime,
		Converged:        r.Converged,
		EarlyStopped:     r.EarlyStopped,
		InitialObjective: r.InitialObjective,
		FinalObjective:   r.BestObjective,
		Improvement:      r.InitialObjective - r.BestObjective,
		WeightChanges:    make(map[string]float64, len(r.Best)),
	}
	for _, coord := range sortedKeys(r.Best) {
		change := r.Best[coord] - r.Initial[coord]
		s.WeightChanges[coord] = change
		if math.Abs(change) > s.LargestChange {
			s.LargestChange = math.Abs(change)
			s.LargestChangeCoord = coord
		}
	}
	return s
}

// WriteReport writes a markdown report of r to path.
func WriteReport(path string, r Result) error {
	if err := os.WriteFile(path, []byte(buildReport(r)), 0644); err != nil {
		return fmt.Errorf("failed to write optimization report: %w", err)
	}
	return nil
}

func buildReport(r Result) string {
	s := Summarize(r)
	var b strings.Builder

	b.WriteString("# Lookback Weight Optimization Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Evaluations**: %d in %.1fs\n", s.Evaluations, s.ElapsedTime.Seconds())
	fmt.Fprintf(&b, "- **Initial return**: %.4f\n", -s.InitialObjective)
	fmt.Fprintf(&b, "- **Best return**: %.4f (%+.4f)\n", -s.FinalObjective, s.Improvement)
	switch {
	case s.Converged:
		b.WriteString("- **Stopped**: converged\n\n")
	case s.EarlyStopped:
		b.WriteString("- **Stopped**: no improvement\n\n")
	default:
		b.WriteString("- **Stopped**: evaluation budget exhausted\n\n")
	}

	b.WriteString("## Weights\n\n")
	b.WriteString("| Lookback | Initial | Best | Change |\n")
	b.WriteString("|----------|--------:|-----:|-------:|\n")
	for _, coord := range sortedKeys(r.Best) {
		fmt.Fprintf(&b, "| %s | %.3f | %.3f | %+.3f |\n",
			coord, r.Initial[coord], r.Best[coord], s.WeightChanges[coord])
	}

	if len(r.History) > 0 {
		b.WriteString("\n## Improvements\n\n")
		b.WriteString("| Eval | Direction | Step | Objective |\n")
		b.WriteString("|-----:|-----------|-----:|----------:|\n")
		for _, st := range r.History {
			if st.Improved {
				fmt.Fprintf(&b, "| %d | %s | %.3f | %.6f |\n", st.Evaluation, st.Direction, st.StepSize, st.Objective)
			}
		}
	}
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
