package frame

import (
	"github.com/sawpanic/rotator/internal/errs"
)

// Table is a 2-D cross-section indexed by row key (instrument) with a fixed
// ordered column set. Every row carries a cell for every column; the
// invariant is checked at construction.
type Table struct {
	rows   []string
	cols   []string
	cells  [][]Value
	rowIdx map[string]int
	colIdx map[string]int
}

// Row is one keyed row used to assemble a Table.
type Row struct {
	Key   string
	Cells map[string]Value
}

// NewTable builds a table from row keys, column names and a row-major cell
// grid. Keys and columns must be unique and every row must have exactly
// len(cols) cells.
func NewTable(rows, cols []string, cells [][]Value) (Table, error) {
	if len(cells) != len(rows) {
		return Table{}, errs.InvalidArgument("table has %d row keys but %d rows", len(rows), len(cells))
	}
	t := Table{
		rows:   make([]string, len(rows)),
		cols:   make([]string, len(cols)),
		cells:  make([][]Value, len(rows)),
		rowIdx: make(map[string]int, len(rows)),
		colIdx: make(map[string]int, len(cols)),
	}
	copy(t.rows, rows)
	copy(t.cols, cols)
	for j, c := range cols {
		if _, dup := t.colIdx[c]; dup {
			return Table{}, errs.InvalidArgument("duplicate column %q", c)
		}
		t.colIdx[c] = j
	}
	for i, r := range rows {
		if _, dup := t.rowIdx[r]; dup {
			return Table{}, errs.InvalidArgument("duplicate row %q", r)
		}
		if len(cells[i]) != len(cols) {
			return Table{}, errs.InvalidArgument("row %q has %d cells, want %d", r, len(cells[i]), len(cols))
		}
		t.rowIdx[r] = i
		t.cells[i] = make([]Value, len(cols))
		copy(t.cells[i], cells[i])
	}
	return t, nil
}

// TableFromRows builds a table whose rows must each carry every column.
func TableFromRows(cols []string, rows []Row) (Table, error) {
	keys := make([]string, len(rows))
	cells := make([][]Value, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
		cells[i] = make([]Value, len(cols))
		if len(r.Cells) != len(cols) {
			return Table{}, errs.InvalidArgument("row %q has %d cells, want %d", r.Key, len(r.Cells), len(cols))
		}
		for j, c := range cols {
			v, ok := r.Cells[c]
			if !ok {
				return Table{}, errs.InvalidArgument("row %q is missing column %q", r.Key, c)
			}
			cells[i][j] = v
		}
	}
	return NewTable(keys, cols, cells)
}

// TableFromColumns builds a table from named series sharing one index.
// Each series is reindexed onto rows, so missing entries become None.
func TableFromColumns(rows []string, cols []string, series map[string]Series) (Table, error) {
	cells := make([][]Value, len(rows))
	for i := range cells {
		cells[i] = make([]Value, len(cols))
	}
	for j, c := range cols {
		s, ok := series[c]
		if !ok {
			return Table{}, errs.InvalidArgument("no series for column %q", c)
		}
		for i, r := range rows {
			cells[i][j], _ = s.Get(r)
		}
	}
	return NewTable(rows, cols, cells)
}

// Rows returns the row keys in order.
func (t Table) Rows() []string {
	out := make([]string, len(t.rows))
	copy(out, t.rows)
	return out
}

// Columns returns the column names in order.
func (t Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.rows) }

// HasColumn reports whether col is part of the column set.
func (t Table) HasColumn(col string) bool {
	_, ok := t.colIdx[col]
	return ok
}

// Cell returns the value at positional coordinates.
func (t Table) Cell(i, j int) Value {
	return t.cells[i][j]
}

// Get returns the cell for a row key and column name.
func (t Table) Get(row, col string) (Value, bool) {
	i, ok := t.rowIdx[row]
	if !ok {
		return None(), false
	}
	j, ok := t.colIdx[col]
	if !ok {
		return None(), false
	}
	return t.cells[i][j], true
}

// Row returns a copy of the cells of row i in column order.
func (t Table) Row(i int) []Value {
	out := make([]Value, len(t.cols))
	copy(out, t.cells[i])
	return out
}

// Column returns the named column as a series over the row keys.
func (t Table) Column(col string) (Series, error) {
	j, ok := t.colIdx[col]
	if !ok {
		return Series{}, errs.KeyNotFound("column", col)
	}
	vals := make([]Value, len(t.rows))
	for i := range t.rows {
		vals[i] = t.cells[i][j]
	}
	return NewSeries(t.rows, vals)
}

// AnyMissing reports whether any cell is absent.
func (t Table) AnyMissing() bool {
	for _, row := range t.cells {
		for _, v := range row {
			if !v.Valid() {
				return true
			}
		}
	}
	return false
}

// Grid returns a deep copy of the cell grid.
func (t Table) Grid() [][]Value {
	out := make([][]Value, len(t.cells))
	for i, row := range t.cells {
		out[i] = make([]Value, len(row))
		copy(out[i], row)
	}
	return out
}
