package selection

import (
	"context"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/metrics"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/ensemble"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
	"github.com/YuminosukeSato/mindepth/sklearn/tree"
)

// forestParam converts one sampled hyperparameter into a forest option.
func forestParam(name string, value interface{}) (ensemble.Option, error) {
	asInt := func(lo int) (int, error) {
		v, ok := value.(int)
		if !ok || v < lo {
			return 0, errors.NewConfigurationError("search_space."+name, "must be an integer >= "+strconv.Itoa(lo), value)
		}
		return v, nil
	}

	switch name {
	case "n_estimators":
		v, err := asInt(1)
		if err != nil {
			return nil, err
		}
		return ensemble.WithNEstimators(v), nil
	case "max_depth":
		if value == nil {
			return ensemble.WithMaxDepth(0), nil
		}
		v, err := asInt(0)
		if err != nil {
			return nil, err
		}
		return ensemble.WithMaxDepth(v), nil
	case "min_samples_split":
		v, err := asInt(2)
		if err != nil {
			return nil, err
		}
		return ensemble.WithMinSamplesSplit(v), nil
	case "min_samples_leaf":
		v, err := asInt(1)
		if err != nil {
			return nil, err
		}
		return ensemble.WithMinSamplesLeaf(v), nil
	case "max_features":
		rule := ""
		if value != nil {
			s, ok := value.(string)
			if !ok {
				return nil, errors.NewConfigurationError("search_space."+name, "must be sqrt, log2 or none", value)
			}
			rule = s
		}
		if _, err := tree.ResolveMaxFeatures(rule, 1); err != nil {
			return nil, errors.NewConfigurationError("search_space."+name, "must be sqrt, log2 or none", value)
		}
		return ensemble.WithMaxFeatures(rule), nil
	case "criterion":
		s, ok := value.(string)
		if !ok || (s != "gini" && s != "entropy") {
			return nil, errors.NewConfigurationError("search_space."+name, "must be gini or entropy", value)
		}
		return ensemble.WithCriterion(s), nil
	case "bootstrap":
		b, ok := value.(bool)
		if !ok {
			return nil, errors.NewConfigurationError("search_space."+name, "must be a bool", value)
		}
		return ensemble.WithBootstrap(b), nil
	default:
		return nil, errors.NewConfigurationError("search_space."+name, "unknown forest parameter", value)
	}
}

// ValidateForestSpace checks that every value a distribution can produce is
// a valid forest hyperparameter.
func ValidateForestSpace(space model_selection.SearchSpace) error {
	if err := space.Validate(); err != nil {
		return err
	}
	for _, p := range space.Params {
		var values []interface{}
		switch d := p.Dist.(type) {
		case model_selection.RandInt:
			values = []interface{}{d.Low, d.High - 1}
		case model_selection.Choice:
			values = d.Values
		default:
			return errors.NewConfigurationError("search_space."+p.Name, "unsupported distribution", p.Dist.String())
		}
		for _, v := range values {
			if _, err := forestParam(p.Name, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// TuningResult is the outcome of one randomized search on a feature subset.
type TuningResult struct {
	Features   []string
	Model      *ensemble.RandomForestClassifier
	Params     model_selection.ParamSet
	CVAUC      float64
	Candidates []model_selection.CandidateResult

	// Held-out cohort
	TestProba []float64 // P(positive)
	TestPred  []float64 // 0/1
	AUC       float64
	Recall    float64
	Accuracy  float64
	LogLoss   float64 // mean negative log-likelihood of TestProba
}

// Tuner searches forest hyperparameters by stratified cross-validated AUC.
type Tuner struct {
	space   model_selection.SearchSpace
	nIter   int
	cv      int
	seed    uint64
	workers int
	logger  log.Logger
}

// NewTuner creates a Tuner from the run options.
func NewTuner(opts Options) *Tuner {
	return &Tuner{
		space:   opts.SearchSpace,
		nIter:   opts.NIter,
		cv:      opts.CV,
		seed:    opts.Seed,
		workers: opts.Workers,
		logger:  log.GetLoggerWithName("tuner"),
	}
}

// factory builds single-threaded forests; parallelism lives in the search.
func (t *Tuner) factory(params model_selection.ParamSet) (model.ProbabilisticClassifier, error) {
	opts := []ensemble.Option{
		ensemble.WithRandomState(t.seed),
		ensemble.WithNJobs(1),
	}
	for _, name := range t.space.Names() {
		opt, err := forestParam(name, params[name])
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return ensemble.NewRandomForestClassifier(opts...), nil
}

// Tune runs the search on (xTrain, yTrain), refits the best configuration
// and evaluates it on (xTest, yTest). Labels are 0/1.
func (t *Tuner) Tune(ctx context.Context, features []string, xTrain mat.Matrix, yTrain []float64, xTest mat.Matrix, yTest []float64) (*TuningResult, error) {
	start := time.Now()
	search := model_selection.NewRandomizedSearchCV(t.factory, t.space,
		model_selection.WithNIter(t.nIter),
		model_selection.WithSearchCV(t.cv),
		model_selection.WithSearchRandomState(t.seed),
		model_selection.WithSearchNJobs(t.workers),
	)
	if err := search.FitContext(ctx, xTrain, mat.NewDense(len(yTrain), 1, yTrain)); err != nil {
		return nil, errors.Wrap(err, "randomized search")
	}
	best, ok := search.BestEstimator_.(*ensemble.RandomForestClassifier)
	if !ok {
		return nil, errors.New("randomized search returned no forest")
	}

	proba, err := best.PredictProbaPositive(xTest, 1)
	if err != nil {
		return nil, errors.Wrap(err, "predicting held-out probabilities")
	}
	predM, err := best.Predict(xTest)
	if err != nil {
		return nil, errors.Wrap(err, "predicting held-out labels")
	}
	pred := mat.Col(nil, 0, predM)

	auc, err := metrics.AUCScore(yTest, proba)
	if err != nil {
		return nil, errors.Wrap(err, "held-out AUC")
	}
	recall, err := metrics.RecallScore(yTest, pred)
	if err != nil {
		return nil, errors.Wrap(err, "held-out recall")
	}
	accuracy, err := metrics.AccuracyScore(yTest, pred)
	if err != nil {
		return nil, errors.Wrap(err, "held-out accuracy")
	}
	logLoss, err := metrics.LogLossScore(yTest, proba)
	if err != nil {
		return nil, errors.Wrap(err, "held-out log loss")
	}

	res := &TuningResult{
		Features:   append([]string(nil), features...),
		Model:      best,
		Params:     search.BestParams_,
		CVAUC:      search.BestScore_,
		Candidates: search.Results_,
		TestProba:  proba,
		TestPred:   pred,
		AUC:        auc,
		Recall:     recall,
		Accuracy:   accuracy,
		LogLoss:    logLoss,
	}
	t.logger.Debug("tuning finished",
		log.FeaturesKey, len(features),
		log.CVAUCKey, res.CVAUC,
		log.AUCKey, auc,
		log.RecallKey, recall,
		log.AccuracyKey, accuracy,
		log.LossKey, logLoss,
		log.HyperParamsKey, res.Params.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}
