// Package dataset loads the Train and Test cohorts, validates that they
// agree with each other and standardizes each cohort independently.
package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

// Table is a raw tabular file: a header row and string cells.
type Table struct {
	Path   string
	Header []string
	Rows   [][]string
}

// ReadTable reads a CSV file, or the first sheet of an XLSX workbook when
// the extension is .xlsx.
func ReadTable(path string) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		defer f.Close()
		records, err = ReadCSV(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(records) < 2 {
		return nil, errors.Newf("%s must have a header row and at least one data row", path)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Path: path, Header: header, Rows: records[1:]}, nil
}

// ReadCSV reads every record of a comma-separated stream.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parsing CSV")
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheets[0])
	}
	return rows, nil
}

// cell returns row[j], or "" for a short row.
func cell(row []string, j int) string {
	if j < len(row) {
		return strings.TrimSpace(row[j])
	}
	return ""
}

// parseCell parses a numeric cell. Empty and NA cells become NaN.
func parseCell(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NumericColumns returns the indices of columns whose cells all parse as
// numbers (missing cells allowed) and that hold at least one value.
func (t *Table) NumericColumns() []int {
	var cols []int
	for j := range t.Header {
		numeric, seen := true, false
		for _, row := range t.Rows {
			v, ok := parseCell(cell(row, j))
			if !ok {
				numeric = false
				break
			}
			if !math.IsNaN(v) {
				seen = true
			}
		}
		if numeric && seen {
			cols = append(cols, j)
		}
	}
	return cols
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for j, h := range t.Header {
		if h == name {
			return j
		}
	}
	return -1
}
