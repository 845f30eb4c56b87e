package base

import (
	"context"
	"strconv"

	"github.com/gopots/gopots/internal/dataset"
	"github.com/gopots/gopots/internal/device"
	"github.com/gopots/gopots/internal/engine"
	"github.com/gopots/gopots/internal/trainer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrPatienceExceedsEpochs is returned when patience is larger than the
// epoch budget.
var ErrPatienceExceedsEpochs = errors.New("patience must be smaller than or equal to epochs")

// NNOptions configures an NNModel.
type NNOptions struct {
	Options
	BatchSize int
	Epochs    int
	// Patience is the early-stopping patience; zero disables it.
	Patience   int
	NumWorkers int
	Seed       uint64
}

// Validate checks the training hyper-parameters.
func (o NNOptions) Validate() error {
	if o.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", o.BatchSize)
	}
	if o.Epochs <= 0 {
		return errors.Errorf("epochs must be positive, got %d", o.Epochs)
	}
	if o.Patience < 0 {
		return errors.Errorf("patience must not be negative, got %d", o.Patience)
	}
	if o.Patience > o.Epochs {
		return errors.Wrapf(ErrPatienceExceedsEpochs, "patience %d, epochs %d", o.Patience, o.Epochs)
	}
	if o.NumWorkers < 0 {
		return errors.Errorf("num_workers must not be negative, got %d", o.NumWorkers)
	}
	return nil
}

// NNModel extends Model with the training loop of neural network models.
type NNModel struct {
	*Model
	opts    NNOptions
	backend engine.Backend
	lastRun *trainer.Run
}

// NewNN validates opts and builds the backend for the primary device.
func NewNN(opts NNOptions) (*NNModel, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m, err := New(opts.Options)
	if err != nil {
		return nil, err
	}
	b, err := engine.NewBackend(m.Placement().Primary())
	if errors.Is(err, engine.ErrNoBackend) && opts.Device == nil {
		// The default placement picked an accelerator the engine cannot
		// train on.
		m.Logger().WithError(err).Warn("no training backend for the default device, falling back to cpu")
		m.placement = device.Placement{Devices: []device.Device{device.Default(device.CPU)}}
		b, err = engine.NewBackend(m.Placement().Primary())
	}
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	if m.Placement().Parallel() {
		m.Logger().WithField("device", m.Placement().String()).Info("model has been allocated to the given multiple devices")
	}
	return &NNModel{Model: m, opts: opts, backend: b}, nil
}

// Backend returns the born backend networks are built on.
func (m *NNModel) Backend() engine.Backend { return m.backend }

// LastRun returns the outcome of the latest Train call, or nil.
func (m *NNModel) LastRun() *trainer.Run { return m.lastRun }

// Options returns the training options.
func (m *NNModel) Options() NNOptions { return m.opts }

// Wrap replicates mod when the placement spans several devices.
func (m *NNModel) Wrap(mod engine.Module) engine.Module {
	if m.Placement().Parallel() {
		return engine.Replicate(mod, m.Placement())
	}
	return mod
}

// Loader returns a batch loader over ds.
func (m *NNModel) Loader(ds *dataset.Dataset, shuffle bool) *dataset.Loader {
	return &dataset.Loader{
		Dataset:    ds,
		BatchSize:  m.opts.BatchSize,
		Shuffle:    shuffle,
		NumWorkers: m.opts.NumWorkers,
		Seed:       m.opts.Seed,
	}
}

// LogModelSize logs the number of trainable weights.
func (m *NNModel) LogModelSize(params []*engine.Parameter) int {
	n := engine.CountParameters(params)
	m.Logger().WithField("parameters", n).Info("model initialized successfully")
	return n
}

// Trainable is a network together with the module holding its weights.
type Trainable struct {
	Network   trainer.Network
	Module    engine.Module
	ModelType string
	Name      string
	// Monitor names the validation item that selects the best epoch.
	Monitor string
}

// Train runs the training loop. With the Better strategy the model is
// saved on every improvement; with Best it is saved once afterwards.
func (m *NNModel) Train(ctx context.Context, t Trainable, train, val *dataset.Dataset) (*trainer.Run, error) {
	cfg := trainer.Config{
		Epochs:   m.opts.Epochs,
		Patience: m.opts.Patience,
		Logger:   m.Logger(),
		Monitor:  t.Monitor,
		OnImprove: func(s trainer.EpochStats) error {
			return m.AutoSave(t.Module, t.ModelType, t.Name, false, epochMeta(s.Epoch, s.Loss()))
		},
	}
	if m.events != nil {
		cfg.Events = m.events
	}

	var valBatches trainer.Batches
	if val != nil {
		valBatches = m.Loader(val, false)
	}

	run, err := trainer.Train(ctx, cfg, t.Network, m.Loader(train, true), valBatches)
	m.lastRun = run
	if err != nil {
		return run, err
	}
	if m.events != nil {
		if err := m.events.Flush(); err != nil {
			m.Logger().WithError(err).Warn("flush event log")
		}
	}
	if err := m.AutoSave(t.Module, t.ModelType, t.Name, true, epochMeta(run.BestEpoch, run.BestLoss)); err != nil {
		return run, err
	}
	m.Logger().WithFields(logrus.Fields{
		"epochs": run.EpochsRun,
		"stop":   run.Stop.String(),
	}).Info("finished training")
	return run, nil
}

func epochMeta(epoch int, loss float64) map[string]string {
	return map[string]string{
		"epoch": strconv.Itoa(epoch),
		"loss":  strconv.FormatFloat(loss, 'g', -1, 64),
	}
}
