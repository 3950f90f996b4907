package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultReader reads xlsx and csv files into a Table
type DefaultReader struct{}

// NewReader creates a new tabular file reader
func NewReader() Reader {
	return &DefaultReader{}
}

// Read parses the file at path based on its extension
func (r *DefaultReader) Read(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readExcel(path)
	case ".csv":
		return readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

func readExcel(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}

	// The first sheet carries the dataset; further sheets are ignored
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return tableFromCells(path, cells)
}

func readCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	cells, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv file: %w", err)
	}

	return tableFromCells(path, cells)
}

func tableFromCells(path string, cells [][]string) (*Table, error) {
	if len(cells) == 0 {
		return &Table{Path: path}, nil
	}

	columns := make([]string, 0, len(cells[0]))
	for _, name := range cells[0] {
		columns = append(columns, strings.TrimSpace(name))
	}

	rows := make([]Row, 0, len(cells)-1)
	for _, line := range cells[1:] {
		row := make(Row, len(columns))
		for i, name := range columns {
			if name == "" {
				continue
			}
			if i < len(line) {
				row[name] = line[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{
		Path:    path,
		Columns: columns,
		Rows:    rows,
	}, nil
}
