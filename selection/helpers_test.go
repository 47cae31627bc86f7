package selection

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/dataset"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

// makeDataset builds Train/Test cohorts where the label depends on the
// first informative columns only; the rest is Gaussian noise.
func makeDataset(t *testing.T, nTrain, nTest, informative, noise int, seed uint64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0))
	p := informative + noise
	features := make([]string, p)
	for j := range features {
		if j < informative {
			features[j] = fmt.Sprintf("signal_%02d", j)
		} else {
			features[j] = fmt.Sprintf("noise_%02d", j-informative)
		}
	}

	cohort := func(name string, n int) *dataset.Cohort {
		X := mat.NewDense(n, p, nil)
		y := make([]float64, n)
		for i := 0; i < n; i++ {
			score := 0.0
			for j := 0; j < p; j++ {
				v := rng.NormFloat64()
				X.Set(i, j, v)
				if j < informative {
					score += v
				}
			}
			if score+0.3*rng.NormFloat64() > 0 {
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
	if err := ds.Validate(); err != nil {
		t.Fatalf("synthetic dataset invalid: %v", err)
	}
	return ds
}

// fastOptions keeps every forest and search small.
func fastOptions() Options {
	opts := DefaultOptions()
	opts.NIter = 2
	opts.CV = 3
	opts.DepthTrees = 40
	opts.PrefilterFolds = 3
	opts.RunID = "test-run"
	opts.SearchSpace = model_selection.SearchSpace{Params: []model_selection.Param{
		{Name: "n_estimators", Dist: model_selection.RandInt{Low: 10, High: 20}},
		{Name: "max_depth", Dist: model_selection.Choice{Values: []interface{}{nil, 5}}},
		{Name: "max_features", Dist: model_selection.Choice{Values: []interface{}{"sqrt", "log2"}}},
	}}
	return opts
}

// recorder is an Observer that keeps every event.
type recorder struct {
	prefilter *PrefilterResult
	rounds    []RoundEvent
	failures  []int
	completed *History
}

func (r *recorder) OnPrefilter(_ string, res *PrefilterResult) error {
	r.prefilter = res
	return nil
}

func (r *recorder) OnRound(ev RoundEvent) error {
	r.rounds = append(r.rounds, ev)
	return nil
}

func (r *recorder) OnFailure(_ string, f *errors.RoundFailure) error {
	r.failures = append(r.failures, f.K)
	return nil
}

func (r *recorder) OnComplete(h *History) error {
	r.completed = h
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
