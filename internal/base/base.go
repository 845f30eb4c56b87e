// Package base holds the state every model shares: device placement, the
// run directory with its event log, and checkpoint persistence.
package base

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gopots/gopots/internal/checkpoint"
	"github.com/gopots/gopots/internal/device"
	"github.com/gopots/gopots/internal/engine"
	"github.com/gopots/gopots/internal/events"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrModelTypeMismatch is returned when a checkpoint was written by a
// different kind of model.
var ErrModelTypeMismatch = errors.New("checkpoint holds another model type")

// Version is recorded in every checkpoint written by this module.
const Version = "v0.1.0"

// runDirLayout names the per-run directory appended to a saving path.
const runDirLayout = "20060102_T150405"

// Options configures a Model.
type Options struct {
	// Device is the requested placement; nil picks a default.
	Device device.Spec
	// SavingPath is the root for run directories. Empty disables saving.
	SavingPath string
	Strategy   checkpoint.Strategy
	Logger     logrus.FieldLogger
	// Prober overrides device detection, mainly for tests.
	Prober device.Prober
}

// Model is the part of every model that is independent of its network.
type Model struct {
	placement  device.Placement
	savingPath string
	strategy   checkpoint.Strategy
	logger     logrus.FieldLogger
	events     *events.Writer
	runID      string
}

// New validates opts, resolves the device and prepares the run directory.
func New(opts Options) (*Model, error) {
	return newModel(opts, time.Now)
}

func newModel(opts Options, now func() time.Time) (*Model, error) {
	if err := opts.Strategy.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	placement, err := device.Resolve(opts.Device, opts.Prober, logger)
	if err != nil {
		return nil, errors.Wrap(err, "set up device")
	}

	m := &Model{
		placement: placement,
		strategy:  opts.Strategy,
		runID:     uuid.NewString(),
	}
	m.logger = logger.WithField("run", m.runID[:8])

	if opts.SavingPath == "" {
		m.logger.Warn("saving_path not given, model files and the event log will not be saved")
		return m, nil
	}

	m.savingPath = filepath.Join(opts.SavingPath, now().Format(runDirLayout))
	tb := filepath.Join(m.savingPath, "tensorboard")
	w, err := events.Open(tb)
	if err != nil {
		return nil, errors.Wrap(err, "set up saving path")
	}
	m.events = w
	m.logger.WithField("path", m.savingPath).Info("model files will be saved here")
	m.logger.WithField("path", tb).Info("event log will be saved here")
	return m, nil
}

// Placement returns the resolved devices.
func (m *Model) Placement() device.Placement { return m.placement }

// SavingPath returns the run directory, or "" when saving is disabled.
func (m *Model) SavingPath() string { return m.savingPath }

// Strategy returns the automatic saving strategy.
func (m *Model) Strategy() checkpoint.Strategy { return m.strategy }

// Logger returns the run logger.
func (m *Model) Logger() logrus.FieldLogger { return m.logger }

// RunID identifies this model instance in logs and checkpoint metadata.
func (m *Model) RunID() string { return m.runID }

// EventDir returns the event log directory, or "" when saving is disabled.
func (m *Model) EventDir() string {
	if m.savingPath == "" {
		return ""
	}
	return filepath.Join(m.savingPath, "tensorboard")
}

// LogResults writes loss and error items to the event log, if any.
func (m *Model) LogResults(step int, stage string, results map[string]float64) error {
	if m.events == nil {
		return nil
	}
	return m.events.LogResults(step, stage, results)
}

func (m *Model) saveOptions(modelType string, overwrite bool, meta map[string]string) checkpoint.SaveOptions {
	md := map[string]string{
		"gopots_version": Version,
		"run_id":         m.runID,
		"device":         m.placement.String(),
	}
	for k, v := range meta {
		md[k] = v
	}
	return checkpoint.SaveOptions{
		Overwrite: overwrite,
		ModelType: modelType,
		Metadata:  md,
		Logger:    m.logger,
	}
}

// SaveModel writes mod to dir/name.pypots.
func (m *Model) SaveModel(mod engine.Module, modelType, dir, name string, overwrite bool, meta map[string]string) (string, error) {
	return checkpoint.Save[engine.Backend](dir, name, mod, m.saveOptions(modelType, overwrite, meta))
}

// LoadModel reads path into mod, which must match the saved architecture.
// A non-empty modelType must equal the saved one. On a mismatch or a failed
// load the previous weights of mod are put back.
func (m *Model) LoadModel(mod engine.Module, b engine.Backend, path, modelType string) (checkpoint.Header, error) {
	prev, err := checkpoint.Take(mod.StateDict())
	if err != nil {
		return checkpoint.Header{}, err
	}
	h, err := checkpoint.Load[engine.Backend](path, b, mod)
	if err != nil {
		// A partial merge may have touched some layers already.
		if rerr := prev.Restore(mod); rerr != nil {
			m.logger.WithError(rerr).Warn("restore weights after failed load")
		}
		return checkpoint.Header{}, err
	}
	if modelType != "" && h.ModelType != modelType {
		if rerr := prev.Restore(mod); rerr != nil {
			return checkpoint.Header{}, errors.Wrap(rerr, "restore weights")
		}
		return checkpoint.Header{}, errors.Wrapf(ErrModelTypeMismatch, "%q holds a %s, not a %s", path, h.ModelType, modelType)
	}
	m.logger.WithField("path", path).Info("model loaded")
	return h, nil
}

// AutoSave saves mod into the run directory when the strategy asks for it.
func (m *Model) AutoSave(mod engine.Module, modelType, name string, finished bool, meta map[string]string) error {
	_, err := checkpoint.AutoSave[engine.Backend](m.strategy, m.savingPath, name, mod, finished, m.saveOptions(modelType, true, meta))
	return err
}

// Close flushes and closes the event log.
func (m *Model) Close() error {
	if m.events == nil {
		return nil
	}
	return m.events.Close()
}
