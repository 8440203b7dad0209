// Package normalize cleans missing indicator cells and standardizes each
// indicator column across instruments.
package normalize

import (
	"math"
	"strings"

	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/frame"
)

// Method selects how missing cells are handled.
type Method string

const (
	// Drop removes every row with any missing cell.
	Drop Method = "drop"
	// FFill forward fills each column down the rows, then back fills.
	FFill Method = "ffill"
	// Zero replaces missing cells with 0.
	Zero Method = "zero"
)

// ParseMethod accepts the short names and their long aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop", "drop-rows-with-any-missing":
		return Drop, nil
	case "ffill", "forward-then-backward-fill":
		return FFill, nil
	case "zero", "fill-with-zero":
		return Zero, nil
	}
	return "", errs.InvalidArgument("unknown missing value method %q", s)
}

// Normalizer runs missing-value handling followed by z-scoring.
type Normalizer struct {
	method Method
}

// NewNormalizer creates a normalizer using method for missing cells.
func NewNormalizer(method Method) (*Normalizer, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	return &Normalizer{method: method}, nil
}

// Apply returns the cleaned table and its z-scored counterpart.
func (n *Normalizer) Apply(t frame.Table) (cleaned, normalized frame.Table, err error) {
	cleaned, err = HandleMissing(t, n.method)
	if err != nil {
		return frame.Table{}, frame.Table{}, err
	}
	normalized, err = ZScore(cleaned)
	if err != nil {
		return frame.Table{}, frame.Table{}, err
	}
	return cleaned, normalized, nil
}

// HandleMissing returns a new table with missing cells handled per method.
// With FFill, a column with no present cell at all stays missing.
func HandleMissing(t frame.Table, method Method) (frame.Table, error) {
	m, err := ParseMethod(string(method))
	if err != nil {
		return frame.Table{}, err
	}

	rows := t.Rows()
	cols := t.Columns()
	grid := t.Grid()

	switch m {
	case Drop:
		var keptRows []string
		var keptCells [][]frame.Value
		for i, row := range grid {
			if complete(row) {
				keptRows = append(keptRows, rows[i])
				keptCells = append(keptCells, row)
			}
		}
		return frame.NewTable(keptRows, cols, keptCells)

	case FFill:
		for j := range cols {
			var last frame.Value
			for i := range grid {
				if grid[i][j].Valid() {
					last = grid[i][j]
				} else {
					grid[i][j] = last
				}
			}
			var next frame.Value
			for i := len(grid) - 1; i >= 0; i-- {
				if grid[i][j].Valid() {
					next = grid[i][j]
				} else {
					grid[i][j] = next
				}
			}
		}

	case Zero:
		for i := range grid {
			for j := range grid[i] {
				if !grid[i][j].Valid() {
					grid[i][j] = frame.Some(0)
				}
			}
		}
	}
	return frame.NewTable(rows, cols, grid)
}

// ZScore standardizes each column with the cross-sectional mean and the
// population standard deviation. A column with zero deviation becomes all
// zeros, and any cell still missing is scored 0.
func ZScore(t frame.Table) (frame.Table, error) {
	grid := t.Grid()
	cols := t.Columns()

	for j := range cols {
		sum, n := 0.0, 0
		for i := range grid {
			if v, ok := grid[i][j].Get(); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			for i := range grid {
				grid[i][j] = frame.Some(0)
			}
			continue
		}
		mean := sum / float64(n)
		ss := 0.0
		for i := range grid {
			if v, ok := grid[i][j].Get(); ok {
				ss += (v - mean) * (v - mean)
			}
		}
		std := math.Sqrt(ss / float64(n))

		for i := range grid {
			v, ok := grid[i][j].Get()
			if !ok || std == 0 {
				grid[i][j] = frame.Some(0)
				continue
			}
			grid[i][j] = frame.Some((v - mean) / std)
		}
	}
	return frame.NewTable(t.Rows(), cols, grid)
}

func complete(row []frame.Value) bool {
	for _, v := range row {
		if !v.Valid() {
			return false
		}
	}
	return true
}
