package engine

import (
	"context"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/gopots/gopots/internal/dataset"
	"github.com/gopots/gopots/internal/trainer"
	"github.com/pkg/errors"
)

// Output is what a forward pass reports for one batch.
type Output struct {
	// Results must contain the "loss" item.
	Results trainer.Results
	// Grad seeds backpropagation at the last op recorded on the tape. When
	// nil, Loss is taken to be that op and is seeded with ones.
	Grad *tensor.RawTensor
	Loss *Tensor
}

// ForwardFunc runs a network on b. train is false during validation.
type ForwardFunc func(b dataset.Batch, train bool) (Output, error)

// Stepper implements trainer.Network for a born module.
type Stepper struct {
	Backend   Backend
	Optimizer optim.Optimizer
	Module    Module
	Forward   ForwardFunc
}

var _ trainer.Network = (*Stepper)(nil)

// TrainStep records the forward pass, backpropagates and applies one
// optimizer update. Runtime panics (shape mismatches and the like) are
// returned as errors.
func (s *Stepper) TrainStep(ctx context.Context, b dataset.Batch) (res trainer.Results, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tape := s.Backend.Tape()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("train step: %v", r)
		}
		tape.StopRecording()
		tape.Clear()
	}()

	s.Optimizer.ZeroGrad()
	tape.Clear()
	tape.StartRecording()

	out, err := s.Forward(b, true)
	if err != nil {
		return nil, err
	}

	seed := out.Grad
	if seed == nil {
		if out.Loss == nil {
			return nil, errors.New("train step: forward returned neither a loss tensor nor a gradient")
		}
		seed, err = tensor.NewRaw(out.Loss.Shape(), tensor.Float32, s.Backend.Device())
		if err != nil {
			return nil, errors.Wrap(err, "train step: seed gradient")
		}
		ones := seed.AsFloat32()
		for i := range ones {
			ones[i] = 1
		}
	}

	grads := tape.Backward(seed, s.Backend)
	tape.StopRecording()
	s.Optimizer.Step(grads)
	return out.Results, nil
}

// EvalStep runs the forward pass with the tape paused.
func (s *Stepper) EvalStep(ctx context.Context, b dataset.Batch) (res trainer.Results, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tape := s.Backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("eval step: %v", r)
		}
		if wasRecording {
			tape.StartRecording()
		}
	}()

	out, err := s.Forward(b, false)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// StateDict returns the module weights.
func (s *Stepper) StateDict() map[string]*tensor.RawTensor {
	return s.Module.StateDict()
}

// LoadStateDict replaces the module weights.
func (s *Stepper) LoadStateDict(m map[string]*tensor.RawTensor) error {
	return s.Module.LoadStateDict(m)
}

// Infer runs fn with the tape paused, for prediction outside training.
func Infer[T any](b Backend, fn func() (T, error)) (out T, err error) {
	tape := b.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("inference: %v", r)
		}
		if wasRecording {
			tape.StartRecording()
		}
	}()
	return fn()
}
