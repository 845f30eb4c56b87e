// Package dataset holds partially-observed time series in memory and cuts
// them into training batches.
//
// Values are laid out [sample][step][feature]; NaN marks a missing value.
package dataset

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidDataset is returned by Validate.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is a set of equally shaped multivariate series.
type Dataset struct {
	// X is the model input, with NaN where nothing was observed.
	X [][][]float64
	// XOri optionally holds ground truth for values artificially hidden in X.
	XOri [][][]float64
	// XPred optionally holds the horizon following each series.
	XPred [][][]float64
	// Y optionally holds a class label per sample.
	Y []int
}

// NSamples returns the number of series.
func (d *Dataset) NSamples() int { return len(d.X) }

// NSteps returns the series length.
func (d *Dataset) NSteps() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// NFeatures returns the number of variables per step.
func (d *Dataset) NFeatures() int {
	if len(d.X) == 0 || len(d.X[0]) == 0 {
		return 0
	}
	return len(d.X[0][0])
}

// HorizonSteps returns the length of XPred, or zero.
func (d *Dataset) HorizonSteps() int {
	if len(d.XPred) == 0 {
		return 0
	}
	return len(d.XPred[0])
}

// NClasses returns one more than the largest label, or zero without labels.
func (d *Dataset) NClasses() int {
	n := 0
	for _, y := range d.Y {
		if y+1 > n {
			n = y + 1
		}
	}
	return n
}

// Validate checks that the dataset is non-empty and rectangular and that
// optional parts agree with X.
func (d *Dataset) Validate() error {
	if d == nil || len(d.X) == 0 {
		return errors.Wrap(ErrInvalidDataset, "no samples")
	}
	steps, features := d.NSteps(), d.NFeatures()
	if steps == 0 || features == 0 {
		return errors.Wrap(ErrInvalidDataset, "empty series")
	}
	if err := checkShape("X", d.X, len(d.X), steps, features); err != nil {
		return err
	}
	if d.XOri != nil {
		if err := checkShape("XOri", d.XOri, len(d.X), steps, features); err != nil {
			return err
		}
	}
	if d.XPred != nil {
		if err := checkShape("XPred", d.XPred, len(d.X), d.HorizonSteps(), features); err != nil {
			return err
		}
		if d.HorizonSteps() == 0 {
			return errors.Wrap(ErrInvalidDataset, "XPred has no steps")
		}
	}
	if d.Y != nil {
		if len(d.Y) != len(d.X) {
			return errors.Wrapf(ErrInvalidDataset, "Y has %d labels for %d samples", len(d.Y), len(d.X))
		}
		for i, y := range d.Y {
			if y < 0 {
				return errors.Wrapf(ErrInvalidDataset, "negative label %d at sample %d", y, i)
			}
		}
	}
	return nil
}

func checkShape(name string, v [][][]float64, n, steps, features int) error {
	if len(v) != n {
		return errors.Wrapf(ErrInvalidDataset, "%s has %d samples, want %d", name, len(v), n)
	}
	for i, sample := range v {
		if len(sample) != steps {
			return errors.Wrapf(ErrInvalidDataset, "%s[%d] has %d steps, want %d", name, i, len(sample), steps)
		}
		for t, row := range sample {
			if len(row) != features {
				return errors.Wrapf(ErrInvalidDataset, "%s[%d][%d] has %d features, want %d", name, i, t, len(row), features)
			}
		}
	}
	return nil
}

// Flatten returns one sample as a row-major slice with missing values
// replaced by zero, and the matching observation mask (1 observed, 0 missing).
func Flatten(sample [][]float64) (values, mask []float64) {
	n := 0
	if len(sample) > 0 {
		n = len(sample) * len(sample[0])
	}
	values = make([]float64, 0, n)
	mask = make([]float64, 0, n)
	for _, row := range sample {
		for _, v := range row {
			if math.IsNaN(v) {
				values = append(values, 0)
				mask = append(mask, 0)
				continue
			}
			values = append(values, v)
			mask = append(mask, 1)
		}
	}
	return values, mask
}

// Unflatten reshapes a row-major slice into steps x features.
func Unflatten(values []float64, steps, features int) [][]float64 {
	out := make([][]float64, steps)
	for t := range out {
		out[t] = append([]float64(nil), values[t*features:(t+1)*features]...)
	}
	return out
}

func clone3(v [][][]float64) [][][]float64 {
	if v == nil {
		return nil
	}
	out := make([][][]float64, len(v))
	for i, sample := range v {
		out[i] = make([][]float64, len(sample))
		for t, row := range sample {
			out[i][t] = append([]float64(nil), row...)
		}
	}
	return out
}

// Inputs encodes every sample as one model input row: the flattened values
// followed by the flattened observation mask. masks holds the mask alone.
func Inputs(x [][][]float64) (inputs, masks [][]float64) {
	inputs = make([][]float64, len(x))
	masks = make([][]float64, len(x))
	for i, sample := range x {
		values, mask := Flatten(sample)
		inputs[i] = append(values, mask...)
		masks[i] = mask
	}
	return inputs, masks
}

// Targets flattens every sample with missing values set to zero, plus the
// mask of observed entries.
func Targets(x [][][]float64) (values, masks [][]float64) {
	values = make([][]float64, len(x))
	masks = make([][]float64, len(x))
	for i, sample := range x {
		values[i], masks[i] = Flatten(sample)
	}
	return values, masks
}
