package selection

import (
	"strings"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/sklearn/linear_model"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

// FailurePolicy decides what the loop does after a RoundFailure.
type FailurePolicy string

const (
	// FailSkip records the failure and retries at k-1 with the same candidate pool.
	FailSkip FailurePolicy = "skip"
	// FailAbort stops the loop and returns the partial history with the failure.
	FailAbort FailurePolicy = "abort"
)

// ParseFailurePolicy parses "skip" or "abort" (case-insensitive).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailSkip, FailAbort:
		return p, nil
	default:
		return "", errors.NewConfigurationError("on_failure", "must be skip or abort", s)
	}
}

// Options holds every knob of a selection run.
type Options struct {
	// Floor is the smallest subset size evaluated.
	Floor int
	// NIter is the number of sampled configurations per tuning search.
	NIter int
	// CV is the number of stratified folds of the tuning search.
	CV int
	// Seed drives fold shuffling, configuration sampling and every forest.
	Seed uint64
	// Workers bounds concurrent tasks; <= 0 means runtime.NumCPU().
	Workers       int
	FailurePolicy FailurePolicy
	SearchSpace   model_selection.SearchSpace

	// DepthTrees is the size of the fixed forest used for minimal depth.
	DepthTrees int

	PrefilterCs      []float64
	PrefilterFolds   int
	PrefilterMaxIter int

	// RunID tags the history; generated when empty.
	RunID string
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Floor:            5,
		NIter:            30,
		CV:               5,
		Seed:             42,
		FailurePolicy:    FailSkip,
		SearchSpace:      model_selection.DefaultForestSpace(),
		DepthTrees:       200,
		PrefilterCs:      linear_model.LogSpace(-4, 4, 10),
		PrefilterFolds:   10,
		PrefilterMaxIter: 1000,
	}
}

// Validate returns a ConfigurationError for the first invalid setting.
func (o Options) Validate() error {
	if o.Floor < 1 {
		return errors.NewConfigurationError("floor", "must be at least 1", o.Floor)
	}
	if o.NIter < 1 {
		return errors.NewConfigurationError("iterations", "must be at least 1", o.NIter)
	}
	if o.CV < 2 {
		return errors.NewConfigurationError("cv", "must be at least 2", o.CV)
	}
	if o.DepthTrees < 1 {
		return errors.NewConfigurationError("depth_trees", "must be at least 1", o.DepthTrees)
	}
	if o.PrefilterFolds < 2 {
		return errors.NewConfigurationError("prefilter_folds", "must be at least 2", o.PrefilterFolds)
	}
	if o.PrefilterMaxIter < 1 {
		return errors.NewConfigurationError("prefilter_max_iter", "must be at least 1", o.PrefilterMaxIter)
	}
	if len(o.PrefilterCs) == 0 {
		return errors.NewConfigurationError("prefilter_cs", "must not be empty", o.PrefilterCs)
	}
	for _, c := range o.PrefilterCs {
		if !(c > 0) {
			return errors.NewConfigurationError("prefilter_cs", "every C must be positive", c)
		}
	}
	if _, err := ParseFailurePolicy(string(o.FailurePolicy)); err != nil {
		return err
	}
	return ValidateForestSpace(o.SearchSpace)
}
