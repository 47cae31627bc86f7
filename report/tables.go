package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/selection"
)

// FeatureValue pairs a feature with a per-feature score.
type FeatureValue struct {
	Feature string
	Value   float64
}

// RankValues pairs features with values and sorts by value descending.
// Equal values keep the order of features.
func RankValues(features []string, values []float64) ([]FeatureValue, error) {
	if len(features) != len(values) {
		return nil, errors.NewDimensionError("report.RankValues", len(features), len(values), 1)
	}
	out := make([]FeatureValue, len(features))
	for i := range features {
		out[i] = FeatureValue{Feature: features[i], Value: values[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatList renders names as ['a', 'b'].
func formatList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func writeCSV(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Base(path))
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "closing %s", filepath.Base(path))
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "writing %s", filepath.Base(path))
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "writing %s", filepath.Base(path))
	}
	return nil
}

func writeValuesCSV(path, valueColumn string, values []FeatureValue) error {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{v.Feature, formatFloat(v.Value)}
	}
	return writeCSV(path, []string{"Feature", valueColumn}, rows)
}

func writeNpy(path string, m *mat.Dense) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Base(path))
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "closing %s", filepath.Base(path))
		}
	}()
	if err := npyio.Write(f, m); err != nil {
		return errors.Wrapf(err, "writing %s", filepath.Base(path))
	}
	return nil
}

// ReadNpy loads a matrix written by the report writer.
func ReadNpy(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", filepath.Base(path))
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s header", filepath.Base(path))
	}
	m := &mat.Dense{}
	if err := r.Read(m); err != nil {
		return nil, errors.Wrapf(err, "reading %s", filepath.Base(path))
	}
	return m, nil
}

// ResultsHeader is the column order of the per-round results table.
var ResultsHeader = []string{"Num_Features", "AUC", "Recall", "CV_AUC", "Features", "Best_Params", "Accuracy", "Log_Loss"}

func resultRows(rounds []selection.Round) [][]string {
	rows := make([][]string, len(rounds))
	for i, r := range rounds {
		rows[i] = []string{
			strconv.Itoa(r.K),
			formatFloat(r.AUC),
			formatFloat(r.Recall),
			formatFloat(r.CVAUC),
			formatList(r.Features),
			r.Params.String(),
			formatFloat(r.Accuracy),
			formatFloat(r.LogLoss),
		}
	}
	return rows
}

const resultsSheet = "Results"

// writeResultsXLSX writes the results table with numeric cells kept numeric.
func writeResultsXLSX(path string, rounds []selection.Round) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return errors.Wrap(err, "naming results sheet")
	}
	header := make([]interface{}, len(ResultsHeader))
	for i, h := range ResultsHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing results header")
	}
	for i, r := range rounds {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.K, r.AUC, r.Recall, r.CVAUC, formatList(r.Features), r.Params.String(), r.Accuracy, r.LogLoss}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return errors.Wrapf(err, "writing results row %d", i+1)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "saving %s", filepath.Base(path))
	}
	return nil
}
