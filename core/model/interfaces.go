// Package model provides the interfaces and shared state used by estimators.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// ProbabilisticClassifier is a classifier that can estimate class probabilities.
// Cross-validation and randomized search work against this interface.
type ProbabilisticClassifier interface {
	Fitter
	Predictor

	// PredictProba returns probability estimates for each class,
	// columns ordered as Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted unique labels seen during fitting.
	Classes() []float64
}

// FeatureImportancer is implemented by tree models that expose impurity importances.
type FeatureImportancer interface {
	GetFeatureImportances() []float64
}
