package ensemble

import (
	"bytes"
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

// makeData は特徴量0だけがラベルを決めるデータを作る
func makeData(n, nFeatures int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, 0))
	X := mat.NewDense(n, nFeatures, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < nFeatures; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		if X.At(i, 0) > 0 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestRandomForestClassifier_FitPredict(t *testing.T) {
	X, y := makeData(120, 5, 1)

	rf := NewRandomForestClassifier(
		WithNEstimators(25),
		WithRandomState(42),
	)
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(rf.Trees()) != 25 {
		t.Fatalf("len(Trees()) = %d, want 25", len(rf.Trees()))
	}

	acc, err := rf.Score(X, y)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if acc < 0.95 {
		t.Errorf("training accuracy %v too low", acc)
	}

	proba, err := rf.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	r, c := proba.Dims()
	if r != 120 || c != 2 {
		t.Fatalf("proba dims = (%d, %d)", r, c)
	}
	for i := 0; i < r; i++ {
		if s := proba.At(i, 0) + proba.At(i, 1); math.Abs(s-1) > 1e-9 {
			t.Fatalf("row %d sums to %v", i, s)
		}
	}

	imp := rf.GetFeatureImportances()
	for j := 1; j < len(imp); j++ {
		if imp[0] <= imp[j] {
			t.Errorf("feature 0 should dominate importances: %v", imp)
			break
		}
	}
}

func TestRandomForestClassifier_DeterministicAcrossWorkers(t *testing.T) {
	X, y := makeData(80, 6, 7)

	fit := func(jobs int) []float64 {
		rf := NewRandomForestClassifier(WithNEstimators(15), WithRandomState(42), WithNJobs(jobs))
		if err := rf.Fit(X, y); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		p, err := rf.PredictProbaPositive(X, 1)
		if err != nil {
			t.Fatalf("PredictProbaPositive: %v", err)
		}
		return p
	}
	serial, parallel := fit(1), fit(4)
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("row %d: %v (1 worker) vs %v (4 workers)", i, serial[i], parallel[i])
		}
	}
}

func TestRandomForestClassifier_SingleJobPredictsInline(t *testing.T) {
	calls := 0
	rf := NewRandomForestClassifier(WithNJobs(1))
	rf.forRows(500, func(start, end int) {
		calls++
		if start != 0 || end != 500 {
			t.Errorf("block = [%d, %d), want [0, 500)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("nJobs=1 should process all rows in one block, got %d calls", calls)
	}

	// 閾値を超える行数でも nJobs=1 と並列で予測と寄与が一致する
	X, y := makeData(200, 4, 11)
	fit := func(jobs int) (*mat.Dense, *Attribution) {
		rf := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(3), WithNJobs(jobs))
		if err := rf.Fit(X, y); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		p, err := rf.PredictProba(X)
		if err != nil {
			t.Fatalf("PredictProba: %v", err)
		}
		a, err := rf.PathAttribution(X, 1)
		if err != nil {
			t.Fatalf("PathAttribution: %v", err)
		}
		return mat.DenseCopyOf(p), a
	}
	p1, a1 := fit(1)
	p4, a4 := fit(4)
	if !mat.Equal(p1, p4) {
		t.Error("PredictProba differs between 1 and 4 jobs")
	}
	if !mat.Equal(a1.Values, a4.Values) || a1.BaseValue != a4.BaseValue {
		t.Error("PathAttribution differs between 1 and 4 jobs")
	}
}

func TestRandomForestClassifier_Errors(t *testing.T) {
	rf := NewRandomForestClassifier(WithNEstimators(3))
	if _, err := rf.PredictProba(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("expected NotFittedError")
	}

	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	if err := rf.Fit(X, y); !errors.Is(err, errors.ErrSingleClass) {
		t.Errorf("expected ErrSingleClass, got %v", err)
	}

	if err := rf.SetParams(map[string]interface{}{"n_estimators": 0}); err == nil {
		t.Error("expected validation error for n_estimators=0")
	}
	if err := rf.SetParams(map[string]interface{}{"max_features": "cube"}); err == nil {
		t.Error("expected validation error for max_features")
	}
}

func TestRandomForestClassifier_Cancelled(t *testing.T) {
	X, y := makeData(30, 3, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rf := NewRandomForestClassifier(WithNEstimators(10))
	if err := rf.FitContext(ctx, X, y); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestPathAttribution_SumsToProbability(t *testing.T) {
	X, y := makeData(60, 4, 11)
	rf := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(5), WithMaxDepth(4))
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	attr, err := rf.PathAttribution(X, 1)
	if err != nil {
		t.Fatalf("PathAttribution: %v", err)
	}
	proba, err := rf.PredictProbaPositive(X, 1)
	if err != nil {
		t.Fatalf("PredictProbaPositive: %v", err)
	}
	for i := range proba {
		sum := attr.BaseValue + mat.Sum(attr.Values.RowView(i))
		if math.Abs(sum-proba[i]) > 1e-9 {
			t.Fatalf("row %d: base+contrib = %v, proba = %v", i, sum, proba[i])
		}
	}

	meanAbs := attr.MeanAbs()
	for j := 1; j < len(meanAbs); j++ {
		if meanAbs[0] <= meanAbs[j] {
			t.Errorf("feature 0 should have the largest attribution: %v", meanAbs)
			break
		}
	}

	if _, err := rf.PathAttribution(X, 7); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestRandomForestClassifier_GobRoundTrip(t *testing.T) {
	X, y := makeData(40, 3, 2)
	rf := NewRandomForestClassifier(WithNEstimators(5), WithRandomState(9), WithMaxDepth(3))
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(rf, &buf); err != nil {
		t.Fatalf("SaveModelToWriter: %v", err)
	}
	var loaded RandomForestClassifier
	if err := model.LoadModelFromReader(&loaded, &buf); err != nil {
		t.Fatalf("LoadModelFromReader: %v", err)
	}

	want, _ := rf.PredictProba(X)
	got, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba after load: %v", err)
	}
	if !mat.Equal(want, got) {
		t.Error("loaded forest predicts differently")
	}
	if loaded.GetParams()["max_depth"].(int) != 3 {
		t.Errorf("max_depth not restored: %v", loaded.GetParams())
	}
}
