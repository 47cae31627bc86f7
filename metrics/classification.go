// Package metrics provides evaluation metrics for binary classifiers.
//
// Labels are expected to be 0/1 where 1 is the positive class. Scores for
// AUC are probabilities or any monotone decision value.
package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

func checkPair(op string, nTrue, nPred int) error {
	if nTrue == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if nTrue != nPred {
		return errors.NewDimensionError(op, nTrue, nPred, 0)
	}
	return nil
}

func checkBinary(op string, y []float64) error {
	for _, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUCScore computes the area under the ROC curve of scores against 0/1
// labels. It uses the Mann-Whitney rank-sum form with average ranks for
// tied scores.
//
// When yTrue contains a single class the score is undefined; an
// UndefinedMetricWarning is emitted and 0.5 is returned.
func AUCScore(yTrue, scores []float64) (float64, error) {
	if err := checkPair("AUC", len(yTrue), len(scores)); err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}
	if err := errors.CheckNumericalStability("AUC", scores, 0); err != nil {
		return 0, err
	}

	nPos := floats.Sum(yTrue)
	nNeg := float64(len(yTrue)) - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	ranks := averageRanks(scores)
	rankSum := 0.0
	for i, y := range yTrue {
		if y == 1 {
			rankSum += ranks[i]
		}
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// averageRanks returns 1-based ranks of x, ties sharing their mean rank.
func averageRanks(x []float64) []float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	idx := make([]int, len(x))
	floats.Argsort(sorted, idx)

	ranks := make([]float64, len(x))
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[i] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// RecallScore returns TP / (TP + FN) for the positive class 1.
// With no positive samples an UndefinedMetricWarning is emitted and 0 is returned.
func RecallScore(yTrue, yPred []float64) (float64, error) {
	if err := checkPair("Recall", len(yTrue), len(yPred)); err != nil {
		return 0, err
	}
	if err := checkBinary("Recall", yTrue); err != nil {
		return 0, err
	}

	tp, pos := 0.0, 0.0
	for i, y := range yTrue {
		if y == 1 {
			pos++
			if yPred[i] == 1 {
				tp++
			}
		}
	}
	if pos == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no positive samples in y_true", 0))
		return 0, nil
	}
	return tp / pos, nil
}

// AccuracyScore returns the fraction of exactly matching labels.
func AccuracyScore(yTrue, yPred []float64) (float64, error) {
	if err := checkPair("Accuracy", len(yTrue), len(yPred)); err != nil {
		return 0, err
	}
	correct := 0
	for i, y := range yTrue {
		if y == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// LogLossScore computes the mean negative log-likelihood of 0/1 labels
// under predicted probabilities of the positive class. Log arguments are
// floored at 1e-15.
func LogLossScore(yTrue, proba []float64) (float64, error) {
	if err := checkPair("LogLoss", len(yTrue), len(proba)); err != nil {
		return 0, err
	}
	if err := checkBinary("LogLoss", yTrue); err != nil {
		return 0, err
	}
	if err := errors.CheckNumericalStability("LogLoss", proba, 0); err != nil {
		return 0, err
	}

	loss := 0.0
	for i, y := range yTrue {
		p := proba[i]
		loss -= y*errors.StabilizeLog(p) + (1-y)*errors.StabilizeLog(1-p)
	}
	return loss / float64(len(yTrue)), nil
}
