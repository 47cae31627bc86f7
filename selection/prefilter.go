package selection

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/linear_model"
)

// CoefficientReport is one row of the prefilter report.
type CoefficientReport struct {
	Feature        string
	Coefficient    float64
	AbsCoefficient float64
}

// PrefilterResult is the candidate pool chosen by the L1 model.
type PrefilterResult struct {
	// Selected is ordered by |coefficient| descending, then name.
	Selected []string
	Report   []CoefficientReport
	C        float64
	CVAUC    float64
}

// Prefilter shrinks the feature universe to the features an L1 logistic
// regression with cross-validated C keeps.
type Prefilter struct {
	cs      []float64
	folds   int
	maxIter int
	seed    uint64
	workers int
	logger  log.Logger
}

// NewPrefilter creates a Prefilter from the run options.
func NewPrefilter(opts Options) *Prefilter {
	return &Prefilter{
		cs:      opts.PrefilterCs,
		folds:   opts.PrefilterFolds,
		maxIter: opts.PrefilterMaxIter,
		seed:    opts.Seed,
		workers: opts.Workers,
		logger:  log.GetLoggerWithName("prefilter"),
	}
}

// Run fits on the Train cohort (X, y with 0/1 labels). An empty selection
// is a SelectionExhaustedError.
func (p *Prefilter) Run(ctx context.Context, X mat.Matrix, y []float64, features []string) (*PrefilterResult, error) {
	if _, c := X.Dims(); c != len(features) {
		return nil, errors.NewDimensionError("Prefilter.Run", len(features), c, 1)
	}

	cv := linear_model.NewLogisticRegressionCV(
		linear_model.WithCs(p.cs),
		linear_model.WithCV(p.folds),
		linear_model.WithCVPenalty("l1"),
		linear_model.WithCVMaxIter(p.maxIter),
		linear_model.WithCVRandomState(p.seed),
		linear_model.WithCVNJobs(p.workers),
	)
	if err := cv.FitContext(ctx, X, mat.NewDense(len(y), 1, y)); err != nil {
		return nil, errors.Wrap(err, "fitting L1 logistic regression")
	}
	coef, err := cv.Coef()
	if err != nil {
		return nil, err
	}

	var report []CoefficientReport
	for j, c := range coef {
		if c != 0 {
			report = append(report, CoefficientReport{Feature: features[j], Coefficient: c, AbsCoefficient: math.Abs(c)})
		}
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].AbsCoefficient != report[j].AbsCoefficient {
			return report[i].AbsCoefficient > report[j].AbsCoefficient
		}
		return report[i].Feature < report[j].Feature
	})

	best := 0.0
	for _, m := range cv.MeanScores() {
		best = math.Max(best, m)
	}
	res := &PrefilterResult{Report: report, C: cv.BestC(), CVAUC: best}
	for _, r := range report {
		res.Selected = append(res.Selected, r.Feature)
	}

	p.logger.Info("prefilter finished",
		log.FeaturesKey, len(features),
		log.SelectedKey, len(res.Selected),
		log.RegularizationKey, res.C,
		log.CVAUCKey, res.CVAUC,
	)
	if len(res.Selected) == 0 {
		return res, errors.NewSelectionExhaustedError("prefilter", 0, 0, "L1 model kept no feature")
	}
	return res, nil
}
