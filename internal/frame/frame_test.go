package frame

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/errs"
)

func TestSomeRejectsNonFinite(t *testing.T) {
	assert.False(t, Some(math.NaN()).Valid())
	assert.False(t, Some(math.Inf(1)).Valid())
	assert.True(t, Some(0).Valid())
	assert.Equal(t, 7.0, None().Or(7))
	assert.Equal(t, "NA", None().String())
}

func TestValueJSON(t *testing.T) {
	data, err := json.Marshal([]Value{Some(1.5), None()})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null]`, string(data))

	var back []Value
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Value{Some(1.5), None()}, back)
}

func TestNewSeriesRejectsDuplicates(t *testing.T) {
	_, err := NewSeries([]string{"A", "A"}, Values(1, 2))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = NewSeries([]string{"A"}, Values(1, 2))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestSeriesReindexIntroducesNone(t *testing.T) {
	s, err := NewSeries([]string{"A", "B"}, Values(1, 2))
	require.NoError(t, err)

	r, err := s.Reindex([]string{"B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, r.Keys())
	assert.Equal(t, []Value{Some(2), None()}, r.Values())
	assert.Equal(t, 2.0, r.Sum())
	assert.Equal(t, 1, r.Present().Len())
}

func TestTableFromRowsEnforcesColumns(t *testing.T) {
	cols := []string{"SMA", "RSI"}
	_, err := TableFromRows(cols, []Row{
		{Key: "A", Cells: map[string]Value{"SMA": Some(1), "RSI": Some(2)}},
		{Key: "B", Cells: map[string]Value{"SMA": Some(1), "EMA": Some(2)}},
	})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	tbl, err := TableFromRows(cols, []Row{
		{Key: "A", Cells: map[string]Value{"SMA": Some(1), "RSI": None()}},
		{Key: "B", Cells: map[string]Value{"SMA": Some(3), "RSI": Some(4)}},
	})
	require.NoError(t, err)
	assert.True(t, tbl.AnyMissing())

	col, err := tbl.Column("SMA")
	require.NoError(t, err)
	assert.Equal(t, []Value{Some(1), Some(3)}, col.Values())

	_, err = tbl.Column("EMA")
	assert.True(t, errors.Is(err, errs.ErrKeyNotFound))
}

func TestNewTableRejectsRaggedRows(t *testing.T) {
	_, err := NewTable([]string{"A"}, []string{"X", "Y"}, [][]Value{Values(1)})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = NewTable([]string{"A", "A"}, []string{"X"}, [][]Value{Values(1), Values(2)})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestTableAccessorsReturnCopies(t *testing.T) {
	tbl, err := NewTable([]string{"A"}, []string{"X"}, [][]Value{Values(1)})
	require.NoError(t, err)

	grid := tbl.Grid()
	grid[0][0] = Some(99)
	v, _ := tbl.Get("A", "X")
	assert.Equal(t, Some(1), v)
}
