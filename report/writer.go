// Package report persists the artifacts of a selection run.
//
// Writer and Console implement selection.Observer; the loop itself never
// touches the file system or the terminal.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/selection"
)

// Artifact file names.
const (
	PrefilterFile = "lasso_feature_importance.csv"
	ResultsCSV    = "feature_selection_results.csv"
	ResultsXLSX   = "feature_selection_results.xlsx"
	SummaryJSON   = "summary.json"
	SummaryMD     = "summary.md"
	SummaryHTML   = "summary.html"
	BestModelFile = "best_model.gob"
)

// ImportanceFile is the impurity importance table of round k.
func ImportanceFile(k int) string { return fmt.Sprintf("rf_feature_importance_top_%d.csv", k) }

// AttributionSummaryFile is the mean |attribution| table of round k.
func AttributionSummaryFile(k int) string { return fmt.Sprintf("attribution_summary_top_%d.csv", k) }

// AttributionMatrixFile is the per-sample attribution matrix of round k.
func AttributionMatrixFile(k int) string { return fmt.Sprintf("attribution_top_%d.npy", k) }

// Writer writes every artifact of a run into one directory. The results
// table is rewritten after each round so an aborted run still leaves it on
// disk.
type Writer struct {
	dir    string
	rounds []selection.Round
	logger log.Logger
}

// NewWriter creates dir when needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, errors.NewConfigurationError("out", "output directory must not be empty", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", dir)
	}
	return &Writer{dir: dir, logger: log.GetLoggerWithName("report")}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

func (w *Writer) path(name string) string { return filepath.Join(w.dir, name) }

// OnPrefilter writes the L1 coefficient table.
func (w *Writer) OnPrefilter(_ string, res *selection.PrefilterResult) error {
	rows := make([][]string, len(res.Report))
	for i, r := range res.Report {
		rows[i] = []string{r.Feature, formatFloat(r.Coefficient), formatFloat(r.AbsCoefficient)}
	}
	return writeCSV(w.path(PrefilterFile), []string{"Feature", "Lasso_Coefficient", "Abs_Coefficient"}, rows)
}

// OnRound writes the round's importance and attribution tables, refreshes
// the results table and saves the model when the round is the best so far.
func (w *Writer) OnRound(ev selection.RoundEvent) error {
	k := ev.Round.K
	forest := ev.Result.Model

	if err := w.writeImportance(k, ev.Round.Features, forest); err != nil {
		return err
	}

	attr, err := forest.PathAttribution(ev.XTest, 1)
	if err != nil {
		return errors.Wrapf(err, "attribution for k=%d", k)
	}
	meanAbs, err := RankValues(ev.Round.Features, attr.MeanAbs())
	if err != nil {
		return err
	}
	if err := writeValuesCSV(w.path(AttributionSummaryFile(k)), "Mean_Absolute_Attribution", meanAbs); err != nil {
		return err
	}
	if err := writeNpy(w.path(AttributionMatrixFile(k)), attr.Values); err != nil {
		return err
	}

	w.rounds = append(w.rounds, ev.Round)
	if err := w.writeResults(w.rounds); err != nil {
		return err
	}

	if ev.IsBest {
		if err := model.SaveModel(forest, w.path(BestModelFile)); err != nil {
			return err
		}
	}
	w.logger.Debug("round artifacts written", log.RoundKey, k, log.PathKey, w.dir)
	return nil
}

func (w *Writer) writeImportance(k int, features []string, m model.FeatureImportancer) error {
	importance, err := RankValues(features, m.GetFeatureImportances())
	if err != nil {
		return errors.Wrapf(err, "importance for k=%d", k)
	}
	return writeValuesCSV(w.path(ImportanceFile(k)), "Importance", importance)
}

// OnFailure writes nothing; failures land in the summary.
func (w *Writer) OnFailure(string, *errors.RoundFailure) error { return nil }

// OnComplete writes the final results table and the summary documents.
func (w *Writer) OnComplete(h *selection.History) error {
	if err := w.writeResults(h.Rounds); err != nil {
		return err
	}
	s := NewSummary(h)
	data, err := s.JSON()
	if err != nil {
		return errors.Wrap(err, "encoding summary")
	}
	for name, body := range map[string][]byte{
		SummaryJSON: data,
		SummaryMD:   s.Markdown(),
		SummaryHTML: s.HTML(),
	} {
		if err := os.WriteFile(w.path(name), body, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}
	w.logger.Info("report written", log.PathKey, w.dir, "rounds", len(h.Rounds))
	return nil
}

func (w *Writer) writeResults(rounds []selection.Round) error {
	if err := writeCSV(w.path(ResultsCSV), ResultsHeader, resultRows(rounds)); err != nil {
		return err
	}
	return writeResultsXLSX(w.path(ResultsXLSX), rounds)
}
