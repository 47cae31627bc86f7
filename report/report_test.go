package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/dataset"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/selection"
	"github.com/YuminosukeSato/mindepth/sklearn/ensemble"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

func synthetic(t *testing.T, nTrain, nTest, p int) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(17, 0))
	features := make([]string, p)
	for j := range features {
		features[j] = fmt.Sprintf("f%d", j)
	}
	cohort := func(name string, n int) *dataset.Cohort {
		X := mat.NewDense(n, p, nil)
		y := make([]float64, n)
		for i := 0; i < n; i++ {
			for j := 0; j < p; j++ {
				X.Set(i, j, rng.NormFloat64())
			}
			if X.At(i, 0)+X.At(i, 1)+0.3*rng.NormFloat64() > 0 {
				y[i] = 1
			}
		}
		return &dataset.Cohort{Name: name, X: X, RawY: y}
	}
	ds := &dataset.Dataset{
		Features: features,
		Label:    dataset.DefaultLabel,
		Train:    cohort(dataset.TrainCohort, nTrain),
		Test:     cohort(dataset.TestCohort, nTest),
	}
	require.NoError(t, ds.Validate())
	return ds
}

func smallOptions() selection.Options {
	opts := selection.DefaultOptions()
	opts.NIter = 2
	opts.CV = 3
	opts.DepthTrees = 30
	opts.RunID = "report-test"
	opts.SearchSpace = model_selection.SearchSpace{Params: []model_selection.Param{
		{Name: "n_estimators", Dist: model_selection.RandInt{Low: 8, High: 12}},
		{Name: "max_depth", Dist: model_selection.Choice{Values: []interface{}{nil, 4}}},
	}}
	return opts
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriter_Run(t *testing.T) {
	ds := synthetic(t, 120, 40, 6)
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter(dir)
	require.NoError(t, err)
	var console bytes.Buffer

	sel, err := selection.NewSelector(smallOptions(), selection.Observers{w, NewConsole(&console, true)})
	require.NoError(t, err)
	h, err := sel.RunFrom(context.Background(), ds, ds.Features)
	require.NoError(t, err)
	require.Len(t, h.Rounds, 2)

	for _, k := range []int{6, 5} {
		imp := readCSV(t, filepath.Join(dir, ImportanceFile(k)))
		assert.Equal(t, []string{"Feature", "Importance"}, imp[0])
		assert.Len(t, imp, k+1)

		attr := readCSV(t, filepath.Join(dir, AttributionSummaryFile(k)))
		assert.Equal(t, []string{"Feature", "Mean_Absolute_Attribution"}, attr[0])
		assert.Len(t, attr, k+1)

		m, err := ReadNpy(filepath.Join(dir, AttributionMatrixFile(k)))
		require.NoError(t, err)
		r, c := m.Dims()
		assert.Equal(t, 40, r)
		assert.Equal(t, k, c)
	}

	results := readCSV(t, filepath.Join(dir, ResultsCSV))
	require.Len(t, results, 3)
	assert.Equal(t, ResultsHeader, results[0])
	assert.Equal(t, "6", results[1][0])
	assert.Equal(t, "5", results[2][0])
	assert.Equal(t, formatList(h.Rounds[1].Features), results[2][4])
	assert.Equal(t, formatFloat(h.Rounds[0].Accuracy), results[1][6])
	assert.Equal(t, formatFloat(h.Rounds[0].LogLoss), results[1][7])

	xl, err := excelize.OpenFile(filepath.Join(dir, ResultsXLSX))
	require.NoError(t, err)
	defer xl.Close()
	rows, err := xl.GetRows(resultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ResultsHeader, rows[0])

	raw, err := os.ReadFile(filepath.Join(dir, SummaryJSON))
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	best, ok := h.Best()
	require.True(t, ok)
	assert.Equal(t, "report-test", summary.RunID)
	assert.True(t, summary.Succeeded)
	assert.Equal(t, best.K, summary.BestK)
	assert.Equal(t, best.Features, summary.BestFeatures)
	assert.InDelta(t, best.AUC, summary.BestAUC, 1e-12)
	assert.Len(t, summary.Rounds, 2)
	assert.InDelta(t, h.Rounds[1].Accuracy, summary.Rounds[1].Accuracy, 1e-12)

	md, err := os.ReadFile(filepath.Join(dir, SummaryMD))
	require.NoError(t, err)
	assert.Contains(t, string(md), fmt.Sprintf("## Best subset (k = %d)", best.K))
	page, err := os.ReadFile(filepath.Join(dir, SummaryHTML))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<html")
	assert.Contains(t, string(page), "<table>")

	var forest ensemble.RandomForestClassifier
	require.NoError(t, model.LoadModel(&forest, filepath.Join(dir, BestModelFile)))
	assert.Equal(t, len(best.Features), forest.NFeatures())

	out := console.String()
	assert.Contains(t, out, "top-6")
	assert.Contains(t, out, "top-5")
	assert.Contains(t, out, "best result")
	assert.NotContains(t, out, "\x1b[")
}

func TestWriter_Prefilter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.OnPrefilter("run", &selection.PrefilterResult{
		Selected: []string{"b", "a"},
		Report: []selection.CoefficientReport{
			{Feature: "b", Coefficient: -0.8, AbsCoefficient: 0.8},
			{Feature: "a", Coefficient: 0.25, AbsCoefficient: 0.25},
		},
	}))
	rows := readCSV(t, filepath.Join(dir, PrefilterFile))
	assert.Equal(t, [][]string{
		{"Feature", "Lasso_Coefficient", "Abs_Coefficient"},
		{"b", "-0.8", "0.8"},
		{"a", "0.25", "0.25"},
	}, rows)
}

func TestNewWriter_EmptyDir(t *testing.T) {
	_, err := NewWriter("")
	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestRankValues(t *testing.T) {
	got, err := RankValues([]string{"a", "b", "c", "d"}, []float64{0.1, 0.5, 0.1, 0.3})
	require.NoError(t, err)
	assert.Equal(t, []FeatureValue{{"b", 0.5}, {"d", 0.3}, {"a", 0.1}, {"c", 0.1}}, got)

	_, err = RankValues([]string{"a"}, []float64{1, 2})
	assert.Error(t, err)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "['x', 'y']", formatList([]string{"x", "y"}))
	assert.Equal(t, "[]", formatList(nil))
}

func TestSummary_NoSuccessfulRound(t *testing.T) {
	h := &selection.History{
		RunID:     "r1",
		BestIndex: -1,
		Failures: []*errors.RoundFailure{
			{K: 6, Candidates: 6, Stage: "tuning", Err: errors.New("fold 2 | single class")},
		},
	}
	s := NewSummary(h)
	assert.False(t, s.Succeeded)
	assert.Empty(t, s.BestFeatures)
	require.Len(t, s.Failures, 1)

	md := string(s.Markdown())
	assert.Contains(t, md, "No round succeeded.")
	assert.Contains(t, md, `fold 2 \| single class`)

	raw, err := s.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"best_features": []`)

	var console bytes.Buffer
	c := NewConsole(&console, true)
	require.NoError(t, c.OnFailure("r1", h.Failures[0]))
	require.NoError(t, c.OnComplete(h))
	assert.Contains(t, console.String(), "top-6   failed during tuning")
	assert.Contains(t, console.String(), "no round succeeded")
}
