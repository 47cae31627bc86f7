// Package model_selection provides stratified cross-validation splitting,
// hyperparameter distributions and randomized search.
package model_selection

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

// Fold represents a single fold in cross-validation. Both index slices are
// sorted ascending.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// StratifiedKFold implements stratified k-fold cross-validation
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
//
// Members of each class (visited in ascending label order) are dealt to the
// folds round-robin, continuing from where the previous class stopped, so
// fold sizes differ by at most one and every class is spread evenly.
func (skf *StratifiedKFold) Split(y []float64) ([]Fold, error) {
	if skf.NSplits < 2 {
		return nil, errors.NewConfigurationError("cv", "must be at least 2", skf.NSplits)
	}
	nSamples := len(y)
	if skf.NSplits > nSamples {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			"n_splits cannot be greater than the number of samples")
	}

	// Group indices by class
	classIndices := make(map[float64][]int)
	for i, label := range y {
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	// Shuffle indices within each class if requested
	if skf.Shuffle {
		r := rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
		for _, label := range labels {
			indices := classIndices[label]
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
	}

	foldOf := make([]int, nSamples)
	next := 0
	for _, label := range labels {
		for _, idx := range classIndices[label] {
			foldOf[idx] = next
			next = (next + 1) % skf.NSplits
		}
	}

	folds := make([]Fold, skf.NSplits)
	for i := 0; i < nSamples; i++ {
		for f := range folds {
			if foldOf[i] == f {
				folds[f].TestIndices = append(folds[f].TestIndices, i)
			} else {
				folds[f].TrainIndices = append(folds[f].TrainIndices, i)
			}
		}
	}
	return folds, nil
}

// RequireBothClasses returns an error wrapping errors.ErrSingleClass when the
// train or test part of any fold holds a single class, since ROC AUC is
// undefined there.
func RequireBothClasses(folds []Fold, y []float64) error {
	for f, fold := range folds {
		if !hasTwoClasses(fold.TestIndices, y) {
			return errors.Wrapf(errors.ErrSingleClass, "validation part of fold %d", f)
		}
		if !hasTwoClasses(fold.TrainIndices, y) {
			return errors.Wrapf(errors.ErrSingleClass, "training part of fold %d", f)
		}
	}
	return nil
}

func hasTwoClasses(indices []int, y []float64) bool {
	for _, idx := range indices[min(1, len(indices)):] {
		if y[idx] != y[indices[0]] {
			return true
		}
	}
	return false
}

// TakeRows extracts the rows of X and y at the given indices.
func TakeRows(X mat.Matrix, y []float64, indices []int) (*mat.Dense, []float64) {
	_, cols := X.Dims()
	xSubset := mat.NewDense(len(indices), cols, nil)
	ySubset := make([]float64, len(indices))
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			xSubset.Set(i, j, X.At(idx, j))
		}
		ySubset[i] = y[idx]
	}
	return xSubset, ySubset
}

// TakeColumns returns a copy of X restricted to the given columns, in order.
func TakeColumns(X mat.Matrix, columns []int) *mat.Dense {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, len(columns), nil)
	for i := 0; i < rows; i++ {
		for j, c := range columns {
			out.Set(i, j, X.At(i, c))
		}
	}
	return out
}
