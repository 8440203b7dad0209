package portfolio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Portfolio"

var header = []string{"Ticker", "Score", "Allocation"}

// Exporter writes portfolio holdings under a directory.
type Exporter struct {
	dir string
}

// NewExporter creates an exporter rooted at dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// ExportPaths lists the files written by Export.
type ExportPaths struct {
	CSV  string `json:"csv"`
	JSON string `json:"json"`
	XLSX string `json:"xlsx"`
}

// Export writes <base>.csv, <base>.json and <base>.xlsx.
func (e *Exporter) Export(base string, holdings []Holding) (ExportPaths, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return ExportPaths{}, fmt.Errorf("failed to create export directory: %w", err)
	}
	paths := ExportPaths{
		CSV:  filepath.Join(e.dir, base+".csv"),
		JSON: filepath.Join(e.dir, base+".json"),
		XLSX: filepath.Join(e.dir, base+".xlsx"),
	}
	if err := WriteCSV(paths.CSV, holdings); err != nil {
		return ExportPaths{}, err
	}
	if err := WriteJSON(paths.JSON, holdings); err != nil {
		return ExportPaths{}, err
	}
	if err := WriteXLSX(paths.XLSX, holdings); err != nil {
		return ExportPaths{}, err
	}

	log.Info().
		Str("csv", paths.CSV).
		Str("json", paths.JSON).
		Str("xlsx", paths.XLSX).
		Int("holdings", len(holdings)).
		Msg("Portfolio exported")
	return paths, nil
}

// WriteCSV writes a header row followed by one row per holding.
func WriteCSV(path string, holdings []Holding) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, h := range holdings {
		if err := w.Write(record(h)); err != nil {
			return fmt.Errorf("failed to write %s: %w", h.Ticker, err)
		}
	}
	w.Flush()
	return w.Error()
}

// ReadCSV parses a file written by WriteCSV.
func ReadCSV(path string) ([]Holding, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseRows(rows)
}

// WriteJSON writes the holdings as an array of records.
func WriteJSON(path string, holdings []Holding) error {
	if holdings == nil {
		holdings = []Holding{}
	}
	data, err := json.MarshalIndent(holdings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteXLSX writes the holdings to the Portfolio sheet of a new workbook.
func WriteXLSX(path string, holdings []Holding) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	for col, h := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}
	for i, h := range holdings {
		row := i + 2
		values := []any{h.Ticker, h.Score, h.Allocation}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// ReadXLSX parses the Portfolio sheet written by WriteXLSX.
func ReadXLSX(path string) ([]Holding, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", SheetName, err)
	}
	return parseRows(rows)
}

func record(h Holding) []string {
	return []string{
		h.Ticker,
		strconv.FormatFloat(h.Score, 'g', -1, 64),
		strconv.FormatFloat(h.Allocation, 'g', -1, 64),
	}
}

func parseRows(rows [][]string) ([]Holding, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	out := make([]Holding, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if len(r) < 3 {
			return nil, fmt.Errorf("short row %v", r)
		}
		score, err := strconv.ParseFloat(r[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad score %q: %w", r[1], err)
		}
		alloc, err := strconv.ParseFloat(r[2], 64)
		if err != nil {
			return nil, fmt.Errorf("bad allocation %q: %w", r[2], err)
		}
		out = append(out, Holding{Ticker: r[0], Score: score, Allocation: alloc})
	}
	return out, nil
}
