package model_selection

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/core/parallel"
	"github.com/YuminosukeSato/mindepth/metrics"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
)

// EstimatorFactory builds an unfitted classifier for one configuration.
type EstimatorFactory func(params ParamSet) (model.ProbabilisticClassifier, error)

// contextFitter is implemented by estimators whose Fit can be cancelled.
type contextFitter interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

// CandidateResult holds the cross-validation outcome of one sampled configuration.
type CandidateResult struct {
	Index      int
	Params     ParamSet
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
}

// RandomizedSearchCV は探索空間から nIter 個の設定を抽出し、層化 k-fold の ROC AUC で評価する。
// (draw x fold) のタスクは上限付きワーカープールで並列に実行される。
type RandomizedSearchCV struct {
	factory     EstimatorFactory
	space       SearchSpace
	nIter       int
	cv          int
	randomState uint64
	nJobs       int
	refit       bool

	Results_       []CandidateResult
	BestIndex_     int
	BestParams_    ParamSet
	BestScore_     float64
	BestEstimator_ model.ProbabilisticClassifier

	logger log.Logger
}

// SearchOption configures RandomizedSearchCV
type SearchOption func(*RandomizedSearchCV)

// WithNIter sets the number of sampled configurations
func WithNIter(n int) SearchOption {
	return func(s *RandomizedSearchCV) { s.nIter = n }
}

// WithSearchCV sets the number of stratified folds
func WithSearchCV(folds int) SearchOption {
	return func(s *RandomizedSearchCV) { s.cv = folds }
}

// WithSearchRandomState sets the seed for sampling and fold shuffling
func WithSearchRandomState(seed uint64) SearchOption {
	return func(s *RandomizedSearchCV) { s.randomState = seed }
}

// WithSearchNJobs bounds the number of concurrent (draw x fold) tasks
func WithSearchNJobs(n int) SearchOption {
	return func(s *RandomizedSearchCV) { s.nJobs = n }
}

// WithRefit controls whether the best configuration is refit on all data
func WithRefit(refit bool) SearchOption {
	return func(s *RandomizedSearchCV) { s.refit = refit }
}

// NewRandomizedSearchCV creates a search. Defaults: 10 draws, 5 folds, refit.
func NewRandomizedSearchCV(factory EstimatorFactory, space SearchSpace, opts ...SearchOption) *RandomizedSearchCV {
	s := &RandomizedSearchCV{
		factory: factory,
		space:   space,
		nIter:   10,
		cv:      5,
		refit:   true,
		logger:  log.GetLoggerWithName("model_selection"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks the search settings before any computation.
func (s *RandomizedSearchCV) Validate() error {
	if s.factory == nil {
		return errors.NewConfigurationError("estimator", "factory must not be nil", nil)
	}
	if s.nIter < 1 {
		return errors.NewConfigurationError("n_iter", "must be at least 1", s.nIter)
	}
	if s.cv < 2 {
		return errors.NewConfigurationError("cv", "must be at least 2", s.cv)
	}
	return s.space.Validate()
}

// Fit runs the search with a background context.
func (s *RandomizedSearchCV) Fit(X, y mat.Matrix) error {
	return s.FitContext(context.Background(), X, y)
}

// FitContext runs the search. y is a column of binary labels; the larger
// label is scored as the positive class. The best candidate has the highest
// mean fold AUC, ties going to the lowest draw index.
func (s *RandomizedSearchCV) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if X == nil || y == nil {
		return errors.NewValueError("RandomizedSearchCV.Fit", "X and y must not be nil")
	}
	nSamples, nFeatures := X.Dims()
	if yr, _ := y.Dims(); yr != nSamples {
		return errors.NewDimensionError("RandomizedSearchCV.Fit", nSamples, yr, 0)
	}
	labels := mat.Col(nil, 0, y)

	folds, err := NewStratifiedKFold(s.cv, true, s.randomState).Split(labels)
	if err != nil {
		return err
	}
	if err := RequireBothClasses(folds, labels); err != nil {
		return err
	}

	start := time.Now()
	draws := s.space.SampleN(s.nIter, s.randomState)
	nFolds := len(folds)
	scores := make([]float64, s.nIter*nFolds)

	err = parallel.ForEach(ctx, len(scores), s.nJobs, "RandomizedSearchCV.Fit", func(ctx context.Context, task int) error {
		d, f := task/nFolds, task%nFolds
		trainX, trainY := TakeRows(X, labels, folds[f].TrainIndices)
		testX, testY := TakeRows(X, labels, folds[f].TestIndices)

		est, err := s.fitOne(ctx, draws[d], trainX, trainY)
		if err != nil {
			return errors.Wrapf(err, "draw %d fold %d", d, f)
		}
		auc, err := scoreAUC(est, testX, testY)
		if err != nil {
			return errors.Wrapf(err, "scoring draw %d fold %d", d, f)
		}
		scores[task] = auc
		return nil
	})
	if err != nil {
		return err
	}

	s.Results_ = make([]CandidateResult, s.nIter)
	s.BestIndex_, s.BestScore_ = 0, math.Inf(-1)
	for d := range draws {
		fs := scores[d*nFolds : (d+1)*nFolds]
		mean, std := stat.PopMeanStdDev(fs, nil)
		s.Results_[d] = CandidateResult{Index: d, Params: draws[d], FoldScores: fs, MeanScore: mean, StdScore: std}
		if mean > s.BestScore_ {
			s.BestIndex_, s.BestScore_ = d, mean
		}
	}
	s.BestParams_ = draws[s.BestIndex_]

	if s.refit {
		best, err := s.fitOne(ctx, s.BestParams_, X, labels)
		if err != nil {
			return errors.Wrap(err, "refitting best configuration")
		}
		s.BestEstimator_ = best
	}

	s.logger.Debug("randomized search finished",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.CVAUCKey, s.BestScore_,
		log.HyperParamsKey, s.BestParams_.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
		"n_iter", s.nIter,
		"folds", nFolds,
	)
	return nil
}

func (s *RandomizedSearchCV) fitOne(ctx context.Context, params ParamSet, X mat.Matrix, y []float64) (model.ProbabilisticClassifier, error) {
	est, err := s.factory(params)
	if err != nil {
		return nil, err
	}
	yMat := mat.NewDense(len(y), 1, y)
	if cf, ok := est.(contextFitter); ok {
		err = cf.FitContext(ctx, X, yMat)
	} else {
		err = est.Fit(X, yMat)
	}
	if err != nil {
		return nil, err
	}
	return est, nil
}

// scoreAUC scores P(larger label) against y encoded as 0/1.
func scoreAUC(est model.ProbabilisticClassifier, X mat.Matrix, y []float64) (float64, error) {
	proba, err := est.PredictProba(X)
	if err != nil {
		return 0, err
	}
	classes := est.Classes()
	positive := classes[len(classes)-1]
	target := make([]float64, len(y))
	for i, v := range y {
		if v == positive {
			target[i] = 1
		}
	}
	return metrics.AUCScore(target, mat.Col(nil, len(classes)-1, proba))
}
