// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package forecasting

import (
	"context"

	"github.com/born-ml/born/optim"
	"github.com/gopots/gopots/base"
	"github.com/gopots/gopots/dataset"
	internalbase "github.com/gopots/gopots/internal/base"
	idataset "github.com/gopots/gopots/internal/dataset"
	"github.com/gopots/gopots/internal/engine"
	"github.com/gopots/gopots/internal/metrics"
	"github.com/gopots/gopots/internal/trainer"
	"github.com/pkg/errors"
)

const linearModelType = "forecasting.Linear"

// LinearConfig configures a Linear forecaster.
type LinearConfig struct {
	base.NNOptions
	Steps        int
	Features     int
	Horizon      int
	LearningRate float64
}

// Linear maps the observed window and its mask straight to the horizon.
type Linear struct {
	*internalbase.NNModel
	cfg     LinearConfig
	net     *engine.MLP
	module  engine.Module
	stepper *engine.Stepper
}

var _ Forecaster = (*Linear)(nil)

// NewLinear validates cfg and builds the model.
func NewLinear(cfg LinearConfig) (*Linear, error) {
	if cfg.Steps <= 0 || cfg.Features <= 0 || cfg.Horizon <= 0 {
		return nil, errors.Errorf("steps, features and horizon must be positive, got %d, %d, %d",
			cfg.Steps, cfg.Features, cfg.Horizon)
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	nnm, err := internalbase.NewNN(cfg.NNOptions)
	if err != nil {
		return nil, err
	}

	b := nnm.Backend()
	net := engine.NewMLP(2*cfg.Steps*cfg.Features, 0, cfg.Horizon*cfg.Features, b)
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

func (m *Linear) checkShape(ds *dataset.Dataset, needTarget bool) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.NSteps() != m.cfg.Steps || ds.NFeatures() != m.cfg.Features {
		return errors.Errorf("dataset is %dx%d, model expects %dx%d",
			ds.NSteps(), ds.NFeatures(), m.cfg.Steps, m.cfg.Features)
	}
	if needTarget && ds.HorizonSteps() != m.cfg.Horizon {
		return errors.Errorf("XPred has %d steps, model forecasts %d", ds.HorizonSteps(), m.cfg.Horizon)
	}
	return nil
}

func (m *Linear) predict(x [][][]float64) (*engine.Tensor, error) {
	inputs, _ := idataset.Inputs(x)
	in, err := engine.Rows(m.Backend(), inputs)
	if err != nil {
		return nil, err
	}
	return m.module.Forward(in), nil
}

func (m *Linear) forward(b idataset.Batch, _ bool) (engine.Output, error) {
	if b.XPred == nil {
		return engine.Output{}, errors.New("batch has no forecasting target")
	}
	pred, err := m.predict(b.X)
	if err != nil {
		return engine.Output{}, err
	}
	target, mask := idataset.Targets(b.XPred)
	loss, grad, err := engine.MaskedMSE(pred, target, mask)
	if err != nil {
		return engine.Output{}, err
	}

	var p, t, k []float64
	for i, row := range engine.ToRows(pred) {
		p = append(p, row...)
		t = append(t, target[i]...)
		k = append(k, mask[i]...)
	}
	mae, err := metrics.MAE(p, t, k)
	if err != nil {
		return engine.Output{}, err
	}
	return engine.Output{
		Results: trainer.Results{"loss": loss, "forecasting_error": mae},
		Grad:    grad,
	}, nil
}

// Fit trains the model on windows whose horizon is in XPred.
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

// Forecast predicts Horizon steps after every series of ds.
func (m *Linear) Forecast(ctx context.Context, ds *dataset.Dataset) ([][][]float64, error) {
	if err := m.checkShape(ds, false); err != nil {
		return nil, err
	}
	batches, err := m.Loader(ds, false).Epoch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][][]float64, 0, ds.NSamples())
	for _, b := range batches {
		rows, err := engine.Infer(m.Backend(), func() ([][]float64, error) {
			pred, err := m.predict(b.X)
			if err != nil {
				return nil, err
			}
			return engine.ToRows(pred), nil
		})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, idataset.Unflatten(row, m.cfg.Horizon, m.cfg.Features))
		}
	}
	return out, nil
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
