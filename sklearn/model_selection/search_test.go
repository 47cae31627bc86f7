package model_selection

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/sklearn/ensemble"
)

func makeSearchData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, 0))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		if X.At(i, 0)+0.3*rng.NormFloat64() > 0 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func forestFactory(params ParamSet) (model.ProbabilisticClassifier, error) {
	rf := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(params["n_estimators"].(int)),
		ensemble.WithRandomState(42),
		ensemble.WithNJobs(1),
	)
	return rf, nil
}

func smallSpace() SearchSpace {
	return SearchSpace{Params: []Param{{Name: "n_estimators", Dist: RandInt{Low: 5, High: 15}}}}
}

func TestRandomizedSearchCV_Fit(t *testing.T) {
	X, y := makeSearchData(80, 1)

	search := NewRandomizedSearchCV(forestFactory, smallSpace(),
		WithNIter(4),
		WithSearchCV(3),
		WithSearchRandomState(42),
	)
	require.NoError(t, search.Fit(X, y))

	require.Len(t, search.Results_, 4)
	for i, res := range search.Results_ {
		assert.Equal(t, i, res.Index)
		assert.Len(t, res.FoldScores, 3)
		assert.LessOrEqual(t, res.MeanScore, search.BestScore_)
	}

	// Ties go to the lowest draw index.
	for i := 0; i < search.BestIndex_; i++ {
		assert.Less(t, search.Results_[i].MeanScore, search.BestScore_)
	}
	assert.Equal(t, search.Results_[search.BestIndex_].Params, search.BestParams_)
	assert.Greater(t, search.BestScore_, 0.8)

	require.NotNil(t, search.BestEstimator_)
	rf := search.BestEstimator_.(*ensemble.RandomForestClassifier)
	assert.Len(t, rf.Trees(), search.BestParams_["n_estimators"].(int))
}

func TestRandomizedSearchCV_Reproducible(t *testing.T) {
	X, y := makeSearchData(60, 2)

	run := func(workers int) *RandomizedSearchCV {
		s := NewRandomizedSearchCV(forestFactory, smallSpace(),
			WithNIter(3),
			WithSearchCV(3),
			WithSearchRandomState(7),
			WithSearchNJobs(workers),
			WithRefit(false),
		)
		require.NoError(t, s.Fit(X, y))
		return s
	}
	a, b := run(1), run(8)
	assert.Equal(t, a.Results_, b.Results_)
	assert.Equal(t, a.BestIndex_, b.BestIndex_)
	assert.Nil(t, a.BestEstimator_)
}

func TestRandomizedSearchCV_Errors(t *testing.T) {
	X, y := makeSearchData(40, 3)

	t.Run("configuration", func(t *testing.T) {
		tests := []struct {
			name   string
			search *RandomizedSearchCV
		}{
			{"zero draws", NewRandomizedSearchCV(forestFactory, smallSpace(), WithNIter(0))},
			{"one fold", NewRandomizedSearchCV(forestFactory, smallSpace(), WithSearchCV(1))},
			{"empty space", NewRandomizedSearchCV(forestFactory, SearchSpace{})},
			{"nil factory", NewRandomizedSearchCV(nil, smallSpace())},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var cfgErr *errors.ConfigurationError
				assert.True(t, errors.As(tt.search.Fit(X, y), &cfgErr))
			})
		}
	})

	t.Run("single class validation fold", func(t *testing.T) {
		yy := mat.NewDense(40, 1, nil)
		yy.Set(0, 0, 1)
		err := NewRandomizedSearchCV(forestFactory, smallSpace(), WithSearchCV(3)).Fit(X, yy)
		assert.True(t, errors.Is(err, errors.ErrSingleClass))
	})

	t.Run("factory error", func(t *testing.T) {
		failing := func(ParamSet) (model.ProbabilisticClassifier, error) {
			return nil, errors.New("boom")
		}
		err := NewRandomizedSearchCV(failing, smallSpace(), WithNIter(1), WithSearchCV(2)).Fit(X, y)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewRandomizedSearchCV(forestFactory, smallSpace()).FitContext(ctx, X, y)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
