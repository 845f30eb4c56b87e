// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package imputation

import (
	"context"
	"math"

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

const mlpModelType = "imputation.MLP"

// MLPConfig configures an MLP imputer.
type MLPConfig struct {
	base.NNOptions
	Steps        int
	Features     int
	Hidden       int
	LearningRate float64
}

// MLP reconstructs a whole series from its observed values and mask with a
// two-layer perceptron. Training minimizes the squared error on observed
// values. Validation also reports the MAE on values hidden in X but present
// in XOri as "imputation_error", which then selects the best epoch.
type MLP struct {
	*internalbase.NNModel
	cfg     MLPConfig
	net     *engine.MLP
	module  engine.Module
	stepper *engine.Stepper
	trained bool
}

var _ Imputer = (*MLP)(nil)

// NewMLP validates cfg and builds the network.
func NewMLP(cfg MLPConfig) (*MLP, error) {
	if cfg.Steps <= 0 || cfg.Features <= 0 {
		return nil, errors.Errorf("steps and features must be positive, got %d and %d", cfg.Steps, cfg.Features)
	}
	if cfg.Hidden <= 0 {
		return nil, errors.Errorf("hidden must be positive, got %d", cfg.Hidden)
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	nnm, err := internalbase.NewNN(cfg.NNOptions)
	if err != nil {
		return nil, err
	}

	width := cfg.Steps * cfg.Features
	b := nnm.Backend()
	net := engine.NewMLP(2*width, cfg.Hidden, width, b)
	m := &MLP{
		NNModel: nnm,
		cfg:     cfg,
		net:     net,
		module:  nnm.Wrap(net),
	}
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

func (m *MLP) checkShape(ds *dataset.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.NSteps() != m.cfg.Steps || ds.NFeatures() != m.cfg.Features {
		return errors.Errorf("dataset is %dx%d, model expects %dx%d",
			ds.NSteps(), ds.NFeatures(), m.cfg.Steps, m.cfg.Features)
	}
	return nil
}

func (m *MLP) predict(x [][][]float64) (*engine.Tensor, [][]float64, [][]float64, error) {
	inputs, masks := idataset.Inputs(x)
	in, err := engine.Rows(m.Backend(), inputs)
	if err != nil {
		return nil, nil, nil, err
	}
	values, _ := idataset.Targets(x)
	return m.module.Forward(in), values, masks, nil
}

func (m *MLP) forward(b idataset.Batch, train bool) (engine.Output, error) {
	pred, values, masks, err := m.predict(b.X)
	if err != nil {
		return engine.Output{}, err
	}
	loss, grad, err := engine.MaskedMSE(pred, values, masks)
	if err != nil {
		return engine.Output{}, err
	}
	res := trainer.Results{"loss": loss, "reconstruction_loss": loss}
	if train || b.XOri == nil {
		return engine.Output{Results: res, Grad: grad}, nil
	}

	mae, err := holdoutMAE(engine.ToRows(pred), b.X, b.XOri)
	switch {
	case errors.Is(err, metrics.ErrEmptyMask):
	case err != nil:
		return engine.Output{}, err
	default:
		res["imputation_error"] = mae
	}
	return engine.Output{Results: res, Grad: grad}, nil
}

// holdoutMAE scores pred on entries observed in xOri but missing in x.
func holdoutMAE(pred [][]float64, x, xOri [][][]float64) (float64, error) {
	var p, t, mask []float64
	for i := range x {
		truth, known := idataset.Flatten(xOri[i])
		_, observed := idataset.Flatten(x[i])
		for k := range truth {
			p = append(p, pred[i][k])
			t = append(t, truth[k])
			mask = append(mask, known[k]*(1-observed[k]))
		}
	}
	return metrics.MAE(p, t, mask)
}

// Fit trains the model. It can be called again to retrain from the current
// weights; each call tracks its own best epoch.
func (m *MLP) Fit(ctx context.Context, train, val *dataset.Dataset) error {
	if err := m.checkShape(train); err != nil {
		return errors.Wrap(err, "training set")
	}
	if val != nil {
		if err := m.checkShape(val); err != nil {
			return errors.Wrap(err, "validation set")
		}
	}
	_, err := m.Train(ctx, internalbase.Trainable{
		Network:   m.stepper,
		Module:    m.module,
		ModelType: mlpModelType,
		Name:      "MLP",
		Monitor:   "imputation_error",
	}, train, val)
	if err != nil {
		return err
	}
	m.trained = true
	return nil
}

// Impute keeps every observed value of ds.X and fills the gaps with the
// network's reconstruction.
func (m *MLP) Impute(ctx context.Context, ds *dataset.Dataset) ([][][]float64, error) {
	if err := m.checkShape(ds); err != nil {
		return nil, err
	}
	batches, err := m.Loader(ds, false).Epoch(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][][]float64, 0, ds.NSamples())
	for _, b := range batches {
		rows, err := engine.Infer(m.Backend(), func() ([][]float64, error) {
			pred, _, _, err := m.predict(b.X)
			if err != nil {
				return nil, err
			}
			return engine.ToRows(pred), nil
		})
		if err != nil {
			return nil, err
		}
		for i, sample := range b.X {
			filled := idataset.Unflatten(rows[i], m.cfg.Steps, m.cfg.Features)
			for t, row := range sample {
				for f, v := range row {
					if !math.IsNaN(v) {
						filled[t][f] = v
					}
				}
			}
			out = append(out, filled)
		}
	}
	return out, nil
}

// Trained reports whether Fit has completed at least once.
func (m *MLP) Trained() bool { return m.trained }

// Save writes the weights to dir/name.pypots.
func (m *MLP) Save(dir, name string, overwrite bool) (string, error) {
	return m.SaveModel(m.module, mlpModelType, dir, name, overwrite, nil)
}

// Load reads weights saved by Save into this model.
func (m *MLP) Load(path string) error {
	if _, err := m.LoadModel(m.module, m.Backend(), path, mlpModelType); err != nil {
		return err
	}
	m.trained = true
	return nil
}
