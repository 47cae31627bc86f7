package linear_model

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/core/parallel"
	"github.com/YuminosukeSato/mindepth/metrics"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
	"github.com/YuminosukeSato/mindepth/sklearn/tree"
)

// LogisticRegressionCV は正則化の強さ C を層化 k-fold の ROC AUC で選ぶロジスティック回帰。
// 最良の C（同点なら小さい C）で全データに再学習する。
type LogisticRegressionCV struct {
	state *model.StateManager

	Cs           []float64
	cv           int
	penalty      string
	maxIter      int
	tol          float64
	fitIntercept bool
	randomState  uint64
	nJobs        int

	C_      float64
	scores_ [][]float64 // len(Cs) x cv
	best_   *LogisticRegression

	logger log.Logger
}

// LogisticRegressionCVOption is a functional option for LogisticRegressionCV
type LogisticRegressionCVOption func(*LogisticRegressionCV)

// WithCs sets the grid of inverse regularization strengths
func WithCs(cs []float64) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.Cs = cs }
}

// WithCV sets the number of stratified folds
func WithCV(folds int) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.cv = folds }
}

// WithCVPenalty sets the penalty ("l1" or "l2")
func WithCVPenalty(penalty string) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.penalty = penalty }
}

// WithCVMaxIter sets the maximum solver iterations per fit
func WithCVMaxIter(n int) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.maxIter = n }
}

// WithCVTol sets the solver tolerance
func WithCVTol(tol float64) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.tol = tol }
}

// WithCVRandomState sets the seed used to shuffle folds
func WithCVRandomState(seed uint64) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.randomState = seed }
}

// WithCVNJobs sets the number of workers for the (C x fold) fits
func WithCVNJobs(n int) LogisticRegressionCVOption {
	return func(cv *LogisticRegressionCV) { cv.nJobs = n }
}

// LogSpace returns n values spaced evenly on a log10 scale from 10^start to 10^stop.
func LogSpace(start, stop float64, n int) []float64 {
	exps := make([]float64, n)
	if n == 1 {
		exps[0] = start
	} else {
		floats.Span(exps, start, stop)
	}
	out := make([]float64, n)
	for i, e := range exps {
		out[i] = math.Pow(10, e)
	}
	return out
}

// NewLogisticRegressionCV creates a cross-validated logistic regression.
// Defaults: Cs = logspace(-4, 4, 10), 5 folds, l2, 100 iterations.
func NewLogisticRegressionCV(opts ...LogisticRegressionCVOption) *LogisticRegressionCV {
	cv := &LogisticRegressionCV{
		state:        model.NewStateManager(),
		Cs:           LogSpace(-4, 4, 10),
		cv:           5,
		penalty:      "l2",
		maxIter:      100,
		tol:          1e-4,
		fitIntercept: true,
		logger:       log.GetLoggerWithName("linear_model"),
	}
	for _, opt := range opts {
		opt(cv)
	}
	return cv
}

func (cv *LogisticRegressionCV) newEstimator(c float64) *LogisticRegression {
	return NewLogisticRegression(
		WithLRPenalty(cv.penalty),
		WithLRC(c),
		WithLogisticFitIntercept(cv.fitIntercept),
		WithLRMaxIter(cv.maxIter),
		WithLRTol(cv.tol),
	)
}

// Fit selects C by cross-validation and refits on all of X.
func (cv *LogisticRegressionCV) Fit(X, y mat.Matrix) error {
	return cv.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation. The len(Cs) x cv fits run on a bounded pool.
func (cv *LogisticRegressionCV) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if len(cv.Cs) == 0 {
		return errors.NewValidationError("Cs", "must not be empty", cv.Cs)
	}
	for _, c := range cv.Cs {
		if !(c > 0) {
			return errors.NewValidationError("Cs", "every C must be positive", c)
		}
	}
	if err := cv.newEstimator(cv.Cs[0]).validate(); err != nil {
		return err
	}
	if X == nil || y == nil {
		return errors.NewValueError("LogisticRegressionCV.Fit", "X and y must not be nil")
	}
	nSamples, nFeatures := X.Dims()
	if yr, _ := y.Dims(); yr != nSamples {
		return errors.NewDimensionError("LogisticRegressionCV.Fit", nSamples, yr, 0)
	}

	labels := mat.Col(nil, 0, y)
	classes := tree.UniqueClasses(labels)
	if len(classes) != 2 {
		return errors.Wrap(errors.ErrSingleClass, "LogisticRegressionCV.Fit: binary target required")
	}
	target := make([]float64, nSamples)
	for i, v := range labels {
		if v == classes[1] {
			target[i] = 1
		}
	}

	folds, err := model_selection.NewStratifiedKFold(cv.cv, true, cv.randomState).Split(target)
	if err != nil {
		return err
	}
	if err := model_selection.RequireBothClasses(folds, target); err != nil {
		return err
	}

	nFolds := len(folds)
	flat := make([]float64, len(cv.Cs)*nFolds)
	err = parallel.ForEach(ctx, len(flat), cv.nJobs, "LogisticRegressionCV.Fit", func(_ context.Context, task int) error {
		ci, fi := task/nFolds, task%nFolds
		fold := folds[fi]
		trainX, trainY := model_selection.TakeRows(X, target, fold.TrainIndices)
		testX, testY := model_selection.TakeRows(X, target, fold.TestIndices)

		est := cv.newEstimator(cv.Cs[ci])
		if err := est.Fit(trainX, mat.NewDense(len(trainY), 1, trainY)); err != nil {
			return errors.Wrapf(err, "C=%g fold %d", cv.Cs[ci], fi)
		}
		scores, err := est.DecisionFunction(testX)
		if err != nil {
			return err
		}
		auc, err := metrics.AUCScore(testY, scores)
		if err != nil {
			return errors.Wrapf(err, "C=%g fold %d", cv.Cs[ci], fi)
		}
		flat[task] = auc
		return nil
	})
	if err != nil {
		return err
	}

	cv.scores_ = make([][]float64, len(cv.Cs))
	bestIdx, bestScore := 0, math.Inf(-1)
	for ci := range cv.Cs {
		cv.scores_[ci] = flat[ci*nFolds : (ci+1)*nFolds]
		mean := stat.Mean(cv.scores_[ci], nil)
		if mean > bestScore || (mean == bestScore && cv.Cs[ci] < cv.Cs[bestIdx]) {
			bestIdx, bestScore = ci, mean
		}
	}
	cv.C_ = cv.Cs[bestIdx]

	best := cv.newEstimator(cv.C_)
	if err := best.Fit(X, y); err != nil {
		return errors.Wrapf(err, "refit with C=%g", cv.C_)
	}
	cv.best_ = best
	cv.state.SetDimensions(nFeatures, nSamples)
	cv.state.SetFitted()

	cv.logger.Info("regularization selected",
		log.ModelNameKey, "LogisticRegressionCV",
		log.RegularizationKey, cv.C_,
		log.CVAUCKey, bestScore,
		"penalty", cv.penalty,
		"folds", nFolds,
	)
	return nil
}

// BestC returns the selected inverse regularization strength.
func (cv *LogisticRegressionCV) BestC() float64 {
	return cv.C_
}

// Scores returns the validation AUC per C (rows) and fold (columns).
func (cv *LogisticRegressionCV) Scores() [][]float64 {
	return cv.scores_
}

// MeanScores returns the mean validation AUC per C.
func (cv *LogisticRegressionCV) MeanScores() []float64 {
	out := make([]float64, len(cv.scores_))
	for i, s := range cv.scores_ {
		out[i] = stat.Mean(s, nil)
	}
	return out
}

// Coef returns the coefficients of the refit model.
func (cv *LogisticRegressionCV) Coef() ([]float64, error) {
	if err := cv.state.RequireFitted("LogisticRegressionCV", "Coef"); err != nil {
		return nil, err
	}
	return cv.best_.Coef(), nil
}

// Intercept returns the intercept of the refit model.
func (cv *LogisticRegressionCV) Intercept() float64 {
	if cv.best_ == nil {
		return 0
	}
	return cv.best_.Intercept()
}

// Classes returns the sorted class labels.
func (cv *LogisticRegressionCV) Classes() []float64 {
	if cv.best_ == nil {
		return nil
	}
	return cv.best_.Classes()
}

// PredictProba delegates to the refit model.
func (cv *LogisticRegressionCV) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := cv.state.RequireFitted("LogisticRegressionCV", "PredictProba"); err != nil {
		return nil, err
	}
	return cv.best_.PredictProba(X)
}

// Predict delegates to the refit model.
func (cv *LogisticRegressionCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := cv.state.RequireFitted("LogisticRegressionCV", "Predict"); err != nil {
		return nil, err
	}
	return cv.best_.Predict(X)
}

// GetParams returns the model hyperparameters
func (cv *LogisticRegressionCV) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"Cs":            cv.Cs,
		"cv":            cv.cv,
		"penalty":       cv.penalty,
		"max_iter":      cv.maxIter,
		"tol":           cv.tol,
		"fit_intercept": cv.fitIntercept,
		"random_state":  cv.randomState,
		"n_jobs":        cv.nJobs,
		"scoring":       "roc_auc",
	}
}
