// Package engine runs born networks for the training loop: backend
// construction, one optimizer step per batch, and the loss helpers that seed
// born's gradient tape.
package engine

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/gopots/gopots/internal/device"
	"github.com/pkg/errors"
)

// ErrNoBackend is returned for devices born cannot train on.
var ErrNoBackend = errors.New("no training backend for device")

// Backend is the autodiff-enabled CPU backend every network is built on.
type Backend = *autodiff.Backend[*cpu.Backend]

// Tensor is a float32 tensor on Backend.
type Tensor = tensor.Tensor[float32, Backend]

// Module is a born module on Backend.
type Module = nn.Module[Backend]

// Parameter is a trainable parameter on Backend.
type Parameter = nn.Parameter[Backend]

// NewBackend builds a backend for d.
func NewBackend(d device.Device) (Backend, error) {
	switch d.Kind {
	case device.CPU:
		return autodiff.New(cpu.New()), nil
	default:
		return nil, errors.Wrapf(ErrNoBackend, "%s: born's autodiff tape trains on the cpu backend only", d)
	}
}

// Rows builds a [len(rows), width] tensor from float64 rows.
func Rows(b Backend, rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows")
	}
	width := len(rows[0])
	flat := make([]float32, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, errors.Errorf("row %d has %d values, want %d", i, len(r), width)
		}
		for _, v := range r {
			flat = append(flat, float32(v))
		}
	}
	t, err := tensor.FromSlice(flat, tensor.Shape{len(rows), width}, b)
	return t, errors.Wrap(err, "build input tensor")
}

// Labels builds an int32 class-index tensor.
func Labels(b Backend, y []int) (*tensor.Tensor[int32, Backend], error) {
	data := make([]int32, len(y))
	for i, v := range y {
		data[i] = int32(v)
	}
	t, err := tensor.FromSlice(data, tensor.Shape{len(y)}, b)
	return t, errors.Wrap(err, "build label tensor")
}

// ToRows copies a 2D tensor back into float64 rows.
func ToRows(t *Tensor) [][]float64 {
	shape := t.Shape()
	rows, width := shape[0], shape[1]
	data := t.Raw().AsFloat32()
	out := make([][]float64, rows)
	for i := range out {
		row := make([]float64, width)
		for j := range row {
			row[j] = float64(data[i*width+j])
		}
		out[i] = row
	}
	return out
}

// CountParameters returns the number of scalar weights in params.
func CountParameters(params []*Parameter) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().Raw().NumElements()
	}
	return n
}
