package linear_model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/tree"
)

// LogisticRegression implements binary logistic regression with an L1 or L2
// penalty. The objective matches scikit-learn's liblinear/saga scaling:
//
//	C * sum_i logloss_i + penalty(w)
//
// which is minimized in the equivalent form mean(logloss) + penalty(w)/(C*n)
// by accelerated proximal gradient (FISTA). The intercept is never penalized.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l1", "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance for stopping

	// Model parameters
	coef_      [][]float64 // Coefficients (1 x n_features)
	intercept_ []float64   // Intercept term
	classes_   []float64   // Sorted class labels; classes_[1] is the positive class
	nFeatures_ int         // Number of features
	nIter_     int         // Iterations actually run
	warmStart_ []float64   // Initial point for the next Fit (coef then intercept)

	logger log.Logger
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
		logger:       log.GetLoggerWithName("linear_model"),
	}

	for _, opt := range opts {
		opt(lr)
	}

	return lr
}

// WithLRPenalty sets the regularization penalty ("l1", "l2" or "none")
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets maximum iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets tolerance for stopping
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRWarmStart starts the next Fit from the given coefficients
// (n_features values followed by the intercept).
func WithLRWarmStart(params []float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.warmStart_ = params
	}
}

func (lr *LogisticRegression) validate() error {
	switch lr.penalty {
	case "l1", "l2", "none":
	default:
		return errors.NewValidationError("penalty", "must be one of l1, l2, none", lr.penalty)
	}
	if !(lr.C > 0) {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	if !(lr.tol > 0) {
		return errors.NewValidationError("tol", "must be positive", lr.tol)
	}
	return nil
}

// Fit trains the model. y must contain exactly two distinct labels.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if err := lr.validate(); err != nil {
		return err
	}
	if X == nil || y == nil {
		return errors.NewValueError("LogisticRegression.Fit", "X and y must not be nil")
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != nSamples {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yr, 0)
	}

	labels := mat.Col(nil, 0, y)
	classes := tree.UniqueClasses(labels)
	switch {
	case len(classes) < 2:
		return errors.Wrap(errors.ErrSingleClass, "LogisticRegression.Fit")
	case len(classes) > 2:
		return errors.NewValueError("LogisticRegression.Fit", "only binary targets are supported")
	}
	target := make([]float64, nSamples)
	for i, v := range labels {
		if v == classes[1] {
			target[i] = 1
		}
	}

	params, nIter, converged := lr.solve(mat.DenseCopyOf(X), target)
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", nIter,
			"FISTA did not reach the tolerance; increase max_iter"))
	}
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", params, nIter); err != nil {
		return err
	}

	lr.coef_ = [][]float64{params[:nFeatures]}
	lr.intercept_ = []float64{params[nFeatures]}
	lr.classes_ = classes
	lr.nFeatures_ = nFeatures
	lr.nIter_ = nIter
	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()

	lr.logger.Debug("logistic regression fitted",
		log.ModelNameKey, "LogisticRegression",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.RegularizationKey, lr.C,
		log.IterationKey, nIter,
	)
	return nil
}

// solve runs FISTA with gradient-based adaptive restart. The returned slice
// holds the coefficients followed by the intercept.
func (lr *LogisticRegression) solve(X *mat.Dense, target []float64) ([]float64, int, bool) {
	n, p := X.Dims()
	nf := float64(n)
	lambda := 1 / (lr.C * nf)

	// Lipschitz bound of the mean logistic loss gradient: 0.25*||[X 1]||_2^2/n,
	// with the spectral norm bounded by the Frobenius norm.
	frob := mat.Norm(X, 2)
	lip := 0.25 * (frob*frob + nf) / nf
	if lr.penalty == "l2" {
		lip += lambda
	}
	step := 1 / lip

	w := make([]float64, p+1)
	if len(lr.warmStart_) == p+1 {
		copy(w, lr.warmStart_)
	}
	if !lr.fitIntercept {
		w[p] = 0
	}
	v := make([]float64, p+1)
	copy(v, w)
	next := make([]float64, p+1)
	grad := make([]float64, p+1)
	z := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	t := 1.0

	for iter := 1; iter <= lr.maxIter; iter++ {
		// Gradient of the smooth part at the momentum point v.
		z.MulVec(X, mat.NewVecDense(p, v[:p]))
		for i := 0; i < n; i++ {
			resid.SetVec(i, errors.Sigmoid(z.AtVec(i)+v[p])-target[i])
		}
		gw := mat.NewVecDense(p, grad[:p])
		gw.MulVec(X.T(), resid)
		gw.ScaleVec(1/nf, gw)
		grad[p] = mat.Sum(resid) / nf
		if lr.penalty == "l2" {
			floats.AddScaled(grad[:p], lambda, v[:p])
		}

		for j := 0; j < p; j++ {
			next[j] = v[j] - step*grad[j]
			if lr.penalty == "l1" {
				next[j] = softThreshold(next[j], step*lambda)
			}
		}
		if lr.fitIntercept {
			next[p] = v[p] - step*grad[p]
		} else {
			next[p] = 0
		}

		delta := 0.0
		scale := 1.0
		for j := range next {
			delta = math.Max(delta, math.Abs(next[j]-w[j]))
			scale = math.Max(scale, math.Abs(next[j]))
		}

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		momentum := (t - 1) / tNext
		restart := 0.0
		for j := range next {
			restart += (v[j] - next[j]) * (next[j] - w[j])
		}
		if restart > 0 {
			tNext = 1
			momentum = 0
		}
		for j := range next {
			v[j] = next[j] + momentum*(next[j]-w[j])
		}
		copy(w, next)
		t = tNext

		if delta <= lr.tol*scale {
			return w, iter, true
		}
	}
	return w, lr.maxIter, false
}

func softThreshold(x, thresh float64) float64 {
	switch {
	case x > thresh:
		return x - thresh
	case x < -thresh:
		return x + thresh
	default:
		return 0
	}
}

// DecisionFunction returns X·coef + intercept for each sample.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) ([]float64, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if nFeatures != lr.nFeatures_ {
		return nil, errors.NewDimensionError("LogisticRegression.DecisionFunction", lr.nFeatures_, nFeatures, 1)
	}
	z := mat.NewVecDense(nSamples, nil)
	z.MulVec(X, mat.NewVecDense(nFeatures, lr.coef_[0]))
	out := make([]float64, nSamples)
	for i := range out {
		out[i] = z.AtVec(i) + lr.intercept_[0]
	}
	return out, nil
}

// PredictProba returns class probabilities (n_samples x 2), columns ordered as Classes().
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	proba := mat.NewDense(len(scores), 2, nil)
	for i, s := range scores {
		p := errors.Sigmoid(s)
		proba.Set(i, 0, 1-p)
		proba.Set(i, 1, p)
	}
	return proba, nil
}

// Predict returns the positive class where its probability is at least 0.5.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	pred := mat.NewDense(len(scores), 1, nil)
	for i, s := range scores {
		if s >= 0 {
			pred.Set(i, 0, lr.classes_[1])
		} else {
			pred.Set(i, 0, lr.classes_[0])
		}
	}
	return pred, nil
}

// Score returns the mean accuracy on the given test data
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0
	}

	nSamples, _ := y.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}

	return float64(correct) / float64(nSamples)
}

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	if len(lr.coef_) == 0 {
		return nil
	}
	out := make([]float64, len(lr.coef_[0]))
	copy(out, lr.coef_[0])
	return out
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 {
	if len(lr.intercept_) == 0 {
		return 0
	}
	return lr.intercept_[0]
}

// Classes returns the sorted class labels.
func (lr *LogisticRegression) Classes() []float64 {
	return lr.classes_
}

// NIter returns the number of solver iterations of the last Fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}
