// Package metrics computes masked error measures over flattened values.
//
// A mask entry of 1 selects the matching position; 0 excludes it. Inputs
// must have equal lengths.
package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrEmptyMask is returned when no entry is selected.
var ErrEmptyMask = errors.New("mask selects no entries")

func check(pred, target, mask []float64) (float64, error) {
	if len(pred) != len(target) || len(pred) != len(mask) {
		return 0, errors.Errorf("length mismatch: pred %d, target %d, mask %d", len(pred), len(target), len(mask))
	}
	n := floats.Sum(mask)
	if n == 0 {
		return 0, ErrEmptyMask
	}
	return n, nil
}

// maskedDiff returns (pred - target) * mask with masked-out NaNs zeroed.
func maskedDiff(pred, target, mask []float64) []float64 {
	diff := make([]float64, len(pred))
	for i := range diff {
		if mask[i] == 0 {
			continue
		}
		diff[i] = (pred[i] - target[i]) * mask[i]
	}
	return diff
}

// MAE is the mean absolute error over selected entries.
func MAE(pred, target, mask []float64) (float64, error) {
	n, err := check(pred, target, mask)
	if err != nil {
		return 0, err
	}
	return floats.Norm(maskedDiff(pred, target, mask), 1) / n, nil
}

// MSE is the mean squared error over selected entries.
func MSE(pred, target, mask []float64) (float64, error) {
	n, err := check(pred, target, mask)
	if err != nil {
		return 0, err
	}
	d := maskedDiff(pred, target, mask)
	return floats.Dot(d, d) / n, nil
}

// RMSE is the square root of MSE.
func RMSE(pred, target, mask []float64) (float64, error) {
	mse, err := MSE(pred, target, mask)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MRE is the mean relative error: sum |pred-target| / sum |target| over
// selected entries.
func MRE(pred, target, mask []float64) (float64, error) {
	if _, err := check(pred, target, mask); err != nil {
		return 0, err
	}
	t := make([]float64, len(target))
	for i := range t {
		if mask[i] != 0 {
			t[i] = target[i] * mask[i]
		}
	}
	denom := floats.Norm(t, 1)
	if denom == 0 {
		return 0, errors.New("relative error undefined: selected targets sum to zero")
	}
	return floats.Norm(maskedDiff(pred, target, mask), 1) / denom, nil
}

// Accuracy is the fraction of equal labels.
func Accuracy(pred, target []int) (float64, error) {
	if len(pred) != len(target) {
		return 0, errors.Errorf("length mismatch: pred %d, target %d", len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, ErrEmptyMask
	}
	hits := 0
	for i := range pred {
		if pred[i] == target[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(pred)), nil
}
