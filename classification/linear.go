// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package classification

import (
	"context"

	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/gopots/gopots/base"
	"github.com/gopots/gopots/dataset"
	internalbase "github.com/gopots/gopots/internal/base"
	idataset "github.com/gopots/gopots/internal/dataset"
	"github.com/gopots/gopots/internal/engine"
	"github.com/gopots/gopots/internal/metrics"
	"github.com/gopots/gopots/internal/trainer"
	"github.com/pkg/errors"
)

const linearModelType = "classification.Linear"

// LinearConfig configures a Linear classifier.
type LinearConfig struct {
	base.NNOptions
	Steps        int
	Features     int
	Classes      int
	LearningRate float64
}

// Linear is a softmax regression over the flattened values and mask,
// trained with cross-entropy.
type Linear struct {
	*internalbase.NNModel
	cfg     LinearConfig
	net     *engine.MLP
	module  engine.Module
	stepper *engine.Stepper
}

var _ Classifier = (*Linear)(nil)

// NewLinear validates cfg and builds the model.
func NewLinear(cfg LinearConfig) (*Linear, error) {
	if cfg.Steps <= 0 || cfg.Features <= 0 {
		return nil, errors.Errorf("steps and features must be positive, got %d and %d", cfg.Steps, cfg.Features)
	}
	if cfg.Classes < 2 {
		return nil, errors.Errorf("classes must be at least 2, got %d", cfg.Classes)
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	nnm, err := internalbase.NewNN(cfg.NNOptions)
	if err != nil {
		return nil, err
	}

	b := nnm.Backend()
	net := engine.NewMLP(2*cfg.Steps*cfg.Features, 0, cfg.Classes, b)
	m := &Linear{NNModel: nnm, cfg: cfg, net: net, module: nnm.Wrap(net)}
	m.stepper = &engine.Stepper{
		Backend: b,
		Optimizer: optim.NewAdam(net.Parameters(), optim.AdamConfig{
			LR:    float32(cfg.LearningRate),
			Betas: [2]float32{0.9, 0.999},
			Eps:   1e-8,
		}, b),
		Module:  m.module,
		Forward: m.forward,
	}
	nnm.LogModelSize(net.Parameters())
	return m, nil
}

func (m *Linear) checkShape(ds *dataset.Dataset, needLabels bool) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.NSteps() != m.cfg.Steps || ds.NFeatures() != m.cfg.Features {
		return errors.Errorf("dataset is %dx%d, model expects %dx%d",
			ds.NSteps(), ds.NFeatures(), m.cfg.Steps, m.cfg.Features)
	}
	if !needLabels {
		return nil
	}
	if ds.Y == nil {
		return errors.New("dataset has no labels")
	}
	if n := ds.NClasses(); n > m.cfg.Classes {
		return errors.Errorf("label %d out of range for %d classes", n-1, m.cfg.Classes)
	}
	return nil
}

func (m *Linear) logits(x [][][]float64) (*engine.Tensor, error) {
	inputs, _ := idataset.Inputs(x)
	in, err := engine.Rows(m.Backend(), inputs)
	if err != nil {
		return nil, err
	}
	return m.module.Forward(in), nil
}

func (m *Linear) forward(b idataset.Batch, _ bool) (engine.Output, error) {
	if b.Y == nil {
		return engine.Output{}, errors.New("batch has no labels")
	}
	logits, err := m.logits(b.X)
	if err != nil {
		return engine.Output{}, err
	}
	labels, err := engine.Labels(m.Backend(), b.Y)
	if err != nil {
		return engine.Output{}, err
	}

	// Recorded last, so Backward starts from the loss.
	raw := m.Backend().CrossEntropy(logits.Raw(), labels.Raw())
	loss := tensor.New[float32, engine.Backend](raw, m.Backend())

	acc, err := metrics.Accuracy(engine.Argmax(engine.ToRows(logits)), b.Y)
	if err != nil {
		return engine.Output{}, err
	}
	return engine.Output{
		Results: trainer.Results{
			"loss":                 float64(raw.AsFloat32()[0]),
			"classification_error": 1 - acc,
			"accuracy":             acc,
		},
		Loss: loss,
	}, nil
}

// Fit trains the classifier.
func (m *Linear) Fit(ctx context.Context, train, val *dataset.Dataset) error {
	if err := m.checkShape(train, true); err != nil {
		return errors.Wrap(err, "training set")
	}
	if val != nil {
		if err := m.checkShape(val, true); err != nil {
			return errors.Wrap(err, "validation set")
		}
	}
	_, err := m.Train(ctx, internalbase.Trainable{
		Network:   m.stepper,
		Module:    m.module,
		ModelType: linearModelType,
		Name:      "Linear",
	}, train, val)
	return err
}

// PredictProba returns softmax probabilities per sample.
func (m *Linear) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if err := m.checkShape(ds, false); err != nil {
		return nil, err
	}
	batches, err := m.Loader(ds, false).Epoch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, ds.NSamples())
	for _, b := range batches {
		rows, err := engine.Infer(m.Backend(), func() ([][]float64, error) {
			logits, err := m.logits(b.X)
			if err != nil {
				return nil, err
			}
			return engine.ToRows(logits), nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, engine.Softmax(rows)...)
	}
	return out, nil
}

// Classify returns the most likely class per sample.
func (m *Linear) Classify(ctx context.Context, ds *dataset.Dataset) ([]int, error) {
	proba, err := m.PredictProba(ctx, ds)
	if err != nil {
		return nil, err
	}
	return engine.Argmax(proba), nil
}

// Save writes the weights to dir/name.pypots.
func (m *Linear) Save(dir, name string, overwrite bool) (string, error) {
	return m.SaveModel(m.module, linearModelType, dir, name, overwrite, nil)
}

// Load reads weights saved by Save. A checkpoint of another model type
// is rejected and leaves the weights untouched.
func (m *Linear) Load(path string) error {
	_, err := m.LoadModel(m.module, m.Backend(), path, linearModelType)
	return err
}
