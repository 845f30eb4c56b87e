package engine

import (
	"math"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// MaskedMSE computes the mean squared error between pred and target over
// the positions where mask is 1.
//
// born's MSE loss does not record on the tape, so the gradient is returned
// instead: 2*(pred-target)*mask/n, to be used as the seed of the tape's last
// recorded op, which must be pred.
func MaskedMSE(pred *Tensor, target, mask [][]float64) (float64, *tensor.RawTensor, error) {
	shape := pred.Shape()
	if len(shape) != 2 || len(target) != shape[0] || len(mask) != shape[0] {
		return 0, nil, errors.Errorf("masked mse: prediction shape %v does not match %d targets", shape, len(target))
	}
	rows, width := shape[0], shape[1]

	var n float64
	for _, m := range mask {
		if len(m) != width {
			return 0, nil, errors.Errorf("masked mse: mask width %d, want %d", len(m), width)
		}
		n += floats.Sum(m)
	}
	if n == 0 {
		return 0, nil, errors.New("masked mse: mask selects no entries")
	}

	grad, err := tensor.NewRaw(tensor.Shape{rows, width}, tensor.Float32, pred.Raw().Device())
	if err != nil {
		return 0, nil, errors.Wrap(err, "masked mse gradient")
	}
	p := pred.Raw().AsFloat32()
	g := grad.AsFloat32()

	var sum float64
	for i := 0; i < rows; i++ {
		if len(target[i]) != width {
			return 0, nil, errors.Errorf("masked mse: target width %d, want %d", len(target[i]), width)
		}
		for j := 0; j < width; j++ {
			k := i*width + j
			if mask[i][j] == 0 {
				continue
			}
			d := (float64(p[k]) - target[i][j]) * mask[i][j]
			sum += d * d
			g[k] = float32(2 * d / n)
		}
	}
	return sum / n, grad, nil
}

// Softmax converts rows of logits into probabilities.
func Softmax(logits [][]float64) [][]float64 {
	out := make([][]float64, len(logits))
	for i, row := range logits {
		lse := floats.LogSumExp(row)
		p := make([]float64, len(row))
		for j, v := range row {
			p[j] = math.Exp(v - lse)
		}
		out[i] = p
	}
	return out
}

// Argmax returns the index of the largest value of every row.
func Argmax(rows [][]float64) []int {
	out := make([]int, len(rows))
	for i, row := range rows {
		out[i] = floats.MaxIdx(row)
	}
	return out
}
