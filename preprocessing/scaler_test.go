package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}

	if math.Abs(scaler.Mean[0]-2.5) > 1e-12 {
		t.Errorf("Mean[0] = %v, want 2.5", scaler.Mean[0])
	}
	// 母標準偏差 sqrt(1.25)
	if math.Abs(scaler.Scale[0]-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("Scale[0] = %v, want %v", scaler.Scale[0], math.Sqrt(1.25))
	}
	// 定数列はスケール1、平均は除去
	if scaler.Scale[1] != 1 {
		t.Errorf("constant column scale = %v, want 1", scaler.Scale[1])
	}
	for i := 0; i < 4; i++ {
		if out.At(i, 1) != 0 {
			t.Errorf("constant column row %d = %v, want 0", i, out.At(i, 1))
		}
	}

	var col [4]float64
	mat.Col(col[:], 0, out)
	mean, ss := 0.0, 0.0
	for _, v := range col {
		mean += v
	}
	mean /= 4
	for _, v := range col {
		ss += (v - mean) * (v - mean)
	}
	if math.Abs(mean) > 1e-12 || math.Abs(ss/4-1) > 1e-12 {
		t.Errorf("scaled column mean=%v var=%v", mean, ss/4)
	}
}

func TestStandardScaler_Errors(t *testing.T) {
	scaler := NewStandardScalerDefault()
	if _, err := scaler.Transform(mat.NewDense(1, 1, []float64{1})); err == nil {
		t.Error("expected NotFittedError")
	}

	if err := scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	_, err := scaler.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestGroupScaler_PerGroupStatistics(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 100, 2, 200, 3, 300})
	groups := []string{"Train", "Test", "Train", "Test", "Train", "Test"}

	gs := NewGroupScaler()
	out, err := gs.FitTransform(X, groups)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}

	r, _ := out.Dims()
	if r != 6 {
		t.Fatalf("rows = %d, want 6", r)
	}
	// 両グループとも同じ相対配置なので、標準化後は同じ値になる
	for k := 0; k < 3; k++ {
		train := out.At(2*k, 0)
		test := out.At(2*k+1, 0)
		if math.Abs(train-test) > 1e-12 {
			t.Errorf("row pair %d: train=%v test=%v", k, train, test)
		}
	}
	if out.At(0, 0) >= 0 || out.At(4, 0) <= 0 {
		t.Errorf("row order not preserved: %v", mat.Formatted(out))
	}
	if gs.Scalers["Test"].Mean[0] != 200 {
		t.Errorf("Test mean = %v, want 200", gs.Scalers["Test"].Mean[0])
	}
}

func TestGroupScaler_Deterministic(t *testing.T) {
	X := mat.NewDense(5, 2, []float64{
		0.3, 1,
		1.7, 2,
		-2.2, 3,
		4.1, 5,
		0.0, 8,
	})
	groups := []string{"a", "a", "b", "b", "b"}

	first, err := NewGroupScaler().FitTransform(X, groups)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	second, err := NewGroupScaler().FitTransform(X, groups)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	if !mat.Equal(first, second) {
		t.Error("repeated runs should give identical output")
	}
}

func TestGroupScaler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		X      *mat.Dense
		groups []string
		check  func(error) bool
	}{
		{
			name:   "singleton group",
			X:      mat.NewDense(3, 1, []float64{1, 2, 3}),
			groups: []string{"a", "a", "b"},
			check: func(err error) bool {
				var cfg *errors.ConfigurationError
				return errors.As(err, &cfg)
			},
		},
		{
			name:   "label length mismatch",
			X:      mat.NewDense(3, 1, []float64{1, 2, 3}),
			groups: []string{"a", "a"},
			check: func(err error) bool {
				var dim *errors.DimensionError
				return errors.As(err, &dim)
			},
		},
		{
			name:   "non finite",
			X:      mat.NewDense(2, 1, []float64{1, math.NaN()}),
			groups: []string{"a", "a"},
			check: func(err error) bool {
				var ve *errors.ValueError
				return errors.As(err, &ve)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGroupScaler().FitTransform(tt.X, tt.groups)
			if err == nil || !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
