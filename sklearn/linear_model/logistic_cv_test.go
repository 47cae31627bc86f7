package linear_model

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLogSpace(t *testing.T) {
	cs := LogSpace(-4, 4, 10)
	if len(cs) != 10 {
		t.Fatalf("expected 10 values, got %d", len(cs))
	}
	if math.Abs(cs[0]-1e-4) > 1e-12 || math.Abs(cs[9]-1e4) > 1e-6 {
		t.Errorf("unexpected bounds %v .. %v", cs[0], cs[9])
	}
	for i := 1; i < len(cs); i++ {
		if cs[i] <= cs[i-1] {
			t.Errorf("values must increase: %v", cs)
		}
	}
}

func TestLogisticRegressionCV_SelectsC(t *testing.T) {
	X, y := makeSignalNoise(200, 3, 11)

	cv := NewLogisticRegressionCV(
		WithCVPenalty("l1"),
		WithCV(5),
		WithCVMaxIter(1000),
		WithCVRandomState(42),
	)
	if err := cv.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scores := cv.Scores()
	if len(scores) != 10 {
		t.Fatalf("expected one score row per C, got %d", len(scores))
	}
	for i, row := range scores {
		if len(row) != 5 {
			t.Errorf("row %d: expected 5 fold scores, got %d", i, len(row))
		}
	}

	// The smallest C zeroes every coefficient, so its ranking is constant.
	means := cv.MeanScores()
	if means[0] != 0.5 {
		t.Errorf("C=1e-4 should score 0.5, got %v", means[0])
	}

	// Best C is the smallest one attaining the maximum mean score.
	best := math.Inf(-1)
	for _, m := range means {
		best = math.Max(best, m)
	}
	var want float64
	for i, m := range means {
		if m == best {
			want = cv.Cs[i]
			break
		}
	}
	if cv.BestC() != want {
		t.Errorf("BestC = %v, want %v (means %v)", cv.BestC(), want, means)
	}
	if best < 0.9 {
		t.Errorf("best mean AUC too low: %v", best)
	}

	coef, err := cv.Coef()
	if err != nil {
		t.Fatalf("Coef failed: %v", err)
	}
	if coef[0] == 0 || coef[1] == 0 {
		t.Errorf("informative features were dropped: %v", coef)
	}
}

func TestLogisticRegressionCV_Deterministic(t *testing.T) {
	X, y := makeSignalNoise(120, 2, 3)

	fit := func(workers int) *LogisticRegressionCV {
		cv := NewLogisticRegressionCV(
			WithCVPenalty("l1"),
			WithCVMaxIter(500),
			WithCVRandomState(42),
			WithCVNJobs(workers),
		)
		if err := cv.Fit(X, y); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		return cv
	}

	a, b := fit(1), fit(4)
	if a.BestC() != b.BestC() {
		t.Errorf("BestC differs: %v vs %v", a.BestC(), b.BestC())
	}
	ca, _ := a.Coef()
	cb, _ := b.Coef()
	for j := range ca {
		if ca[j] != cb[j] {
			t.Errorf("coef %d differs: %v vs %v", j, ca[j], cb[j])
		}
	}
}

func TestLogisticRegressionCV_Errors(t *testing.T) {
	X, y := makeSignalNoise(40, 1, 5)

	tests := []struct {
		name string
		cv   *LogisticRegressionCV
		y    mat.Matrix
	}{
		{"empty Cs", NewLogisticRegressionCV(WithCs(nil)), y},
		{"non-positive C", NewLogisticRegressionCV(WithCs([]float64{1, 0})), y},
		{"one fold", NewLogisticRegressionCV(WithCV(1)), y},
		{"single class", NewLogisticRegressionCV(), mat.NewDense(40, 1, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cv.Fit(X, tt.y); err == nil {
				t.Error("expected an error")
			}
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewLogisticRegressionCV().FitContext(ctx, X, y); err == nil {
			t.Error("expected an error from a cancelled context")
		}
	})

	t.Run("not fitted", func(t *testing.T) {
		cv := NewLogisticRegressionCV()
		if _, err := cv.Coef(); err == nil {
			t.Error("expected NotFittedError")
		}
		if _, err := cv.PredictProba(X); err == nil {
			t.Error("expected NotFittedError")
		}
	})
}
