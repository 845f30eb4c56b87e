// Package trainer drives the epoch loop shared by every neural model:
// training and validation sub-phases, best-loss tracking with early
// stopping, interruption handling and restoring the best weights.
package trainer

import (
	"context"
	"math"

	"github.com/born-ml/born/tensor"
	"github.com/gopots/gopots/internal/checkpoint"
	"github.com/gopots/gopots/internal/dataset"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Errors returned by Train.
var (
	// ErrNotTrained means training stopped before any epoch produced a
	// usable model. The underlying cause is wrapped alongside it.
	ErrNotTrained = errors.New("training got interrupted, the model was not trained")
	// ErrNoFiniteLoss means no epoch produced a finite loss.
	ErrNoFiniteLoss = errors.New("best loss is NaN or Inf after training")
	// ErrMissingLoss means a step did not report a "loss" item.
	ErrMissingLoss = errors.New(`step results have no "loss" item`)
)

// LossKey is the result item used for model selection.
const LossKey = "loss"

// Results holds the named scalar outputs of one step.
type Results map[string]float64

// Network is a trainable model as seen by the loop.
type Network interface {
	// TrainStep runs forward, backward and one optimizer update.
	TrainStep(ctx context.Context, b dataset.Batch) (Results, error)
	// EvalStep runs a forward pass without recording gradients.
	EvalStep(ctx context.Context, b dataset.Batch) (Results, error)
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(map[string]*tensor.RawTensor) error
}

// Batches yields one epoch of batches per call.
type Batches interface {
	Epoch(ctx context.Context) ([]dataset.Batch, error)
}

// ResultLogger receives per-step and per-epoch results.
type ResultLogger interface {
	LogResults(step int, stage string, results map[string]float64) error
}

// Config parameterizes Train.
type Config struct {
	Epochs int
	// Patience is the number of non-improving epochs tolerated after the
	// last improvement. Zero or less disables early stopping.
	Patience int
	Logger   logrus.FieldLogger
	Events   ResultLogger
	// OnImprove runs after the best snapshot has been updated.
	OnImprove func(EpochStats) error
	// Monitor names the validation item used for model selection. Empty,
	// or absent from an epoch's results, means LossKey.
	Monitor string
}

// EpochStats summarizes one finished epoch.
type EpochStats struct {
	Epoch      int
	TrainLoss  float64
	ValLoss    float64
	HasVal     bool
	ValResults Results
	Improved   bool
}

// Loss returns the value used for model selection.
func (s EpochStats) Loss() float64 {
	if s.HasVal {
		return s.ValLoss
	}
	return s.TrainLoss
}

// Run is the outcome of one Train call.
type Run struct {
	BestLoss  float64
	BestEpoch int
	EpochsRun int
	Steps     int
	Phase     Phase
	// Stop is the phase that ended the loop: Converged, Completed or
	// Interrupted.
	Stop Phase
	// Interrupt holds the error that ended the loop early, if any.
	Interrupt error
	History   []EpochStats
}

type state struct {
	cfg      Config
	logger   logrus.FieldLogger
	net      Network
	run      *Run
	best     *checkpoint.Snapshot
	patience int
}

// Train runs the loop until the epoch budget is spent, patience runs out,
// or an error interrupts it, then loads the best weights back into net.
//
// An interruption after at least one improvement is logged and downgraded:
// the best weights stand and Train returns no error. Without any
// improvement it fails with ErrNotTrained.
func Train(ctx context.Context, cfg Config, net Network, train, val Batches) (*Run, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if net == nil || train == nil {
		return nil, errors.New("train needs a network and a training set")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &state{
		cfg:      cfg,
		logger:   logger,
		net:      net,
		run:      &Run{BestLoss: math.Inf(1), Phase: NotStarted},
		patience: cfg.Patience,
	}

	if err := s.loop(ctx, train, val); err != nil {
		s.run.Stop = Interrupted
		s.run.Phase = Interrupted
		s.run.Interrupt = err
		logger.WithError(err).Error("exception during training")
		if s.best == nil {
			return s.run, &notTrainedError{cause: err}
		}
		logger.WithError(err).Warn("training got interrupted, the model from the best epoch is kept")
	}

	if math.IsInf(s.run.BestLoss, 0) || math.IsNaN(s.run.BestLoss) || s.best == nil {
		return s.run, ErrNoFiniteLoss
	}

	if err := s.best.Restore(net); err != nil {
		return s.run, errors.Wrap(err, "load best model")
	}
	s.run.Phase = Finalized
	logger.WithFields(logrus.Fields{
		"best_epoch": s.run.BestEpoch,
		"best_loss":  s.run.BestLoss,
	}).Info("finished training, the best model is loaded")
	return s.run, nil
}

func (s *state) loop(ctx context.Context, train, val Batches) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during training: %v", r)
		}
	}()

	for epoch := 1; epoch <= s.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats := EpochStats{Epoch: epoch}
		s.run.Phase = Training
		stats.TrainLoss, err = s.trainEpoch(ctx, train)
		if err != nil {
			return errors.Wrapf(err, "epoch %d training", epoch)
		}

		if val != nil {
			s.run.Phase = Validating
			stats.ValResults, err = s.validate(ctx, val)
			if err != nil {
				return errors.Wrapf(err, "epoch %d validation", epoch)
			}
			stats.HasVal = true
			stats.ValLoss = s.monitored(stats.ValResults)
			if s.cfg.Events != nil {
				if err := s.cfg.Events.LogResults(epoch, "validating", stats.ValResults); err != nil {
					return err
				}
			}
		}
		s.run.EpochsRun = epoch

		fields := logrus.Fields{"epoch": epoch, "train_loss": stats.TrainLoss}
		if stats.HasVal {
			fields["val_loss"] = stats.ValLoss
		}
		s.logger.WithFields(fields).Info("epoch finished")

		if loss := stats.Loss(); loss < s.run.BestLoss {
			snap, err := checkpoint.Take(s.net.StateDict())
			if err != nil {
				return err
			}
			stats.Improved = true
			s.best = snap
			s.run.BestLoss = loss
			s.run.BestEpoch = epoch
			s.patience = s.cfg.Patience
			s.run.History = append(s.run.History, stats)
			if s.cfg.OnImprove != nil {
				if err := s.cfg.OnImprove(stats); err != nil {
					return errors.Wrap(err, "improvement hook")
				}
			}
			continue
		}

		s.run.History = append(s.run.History, stats)
		if s.cfg.Patience > 0 {
			s.patience--
			if s.patience == 0 {
				s.logger.WithField("epoch", epoch).Info("exceeded the training patience, terminating the training procedure")
				s.run.Phase = Converged
				s.run.Stop = Converged
				return nil
			}
		}
	}

	s.run.Phase = Completed
	s.run.Stop = Completed
	return nil
}

func (s *state) trainEpoch(ctx context.Context, train Batches) (float64, error) {
	batches, err := train.Epoch(ctx)
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 {
		return 0, errors.New("training set produced no batches")
	}

	var sum float64
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := s.net.TrainStep(ctx, b)
		if err != nil {
			return 0, err
		}
		loss, ok := res[LossKey]
		if !ok {
			return 0, ErrMissingLoss
		}
		s.run.Steps++
		if s.cfg.Events != nil {
			if err := s.cfg.Events.LogResults(s.run.Steps, "training", res); err != nil {
				return 0, err
			}
		}
		sum += loss
	}
	return sum / float64(len(batches)), nil
}

func (s *state) validate(ctx context.Context, val Batches) (Results, error) {
	batches, err := val.Epoch(ctx)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, errors.New("validation set produced no batches")
	}

	sums := make(Results)
	counts := make(map[string]int)
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.net.EvalStep(ctx, b)
		if err != nil {
			return nil, err
		}
		if _, ok := res[LossKey]; !ok {
			return nil, ErrMissingLoss
		}
		for k, v := range res {
			sums[k] += v
			counts[k]++
		}
	}
	// Items only some batches report are averaged over those batches.
	for k := range sums {
		sums[k] /= float64(counts[k])
	}
	return sums, nil
}

func (s *state) monitored(res Results) float64 {
	if s.cfg.Monitor != "" {
		if v, ok := res[s.cfg.Monitor]; ok {
			return v
		}
	}
	return res[LossKey]
}

// notTrainedError reports ErrNotTrained while keeping the interrupting
// error as its cause.
type notTrainedError struct {
	cause error
}

func (e *notTrainedError) Error() string {
	return ErrNotTrained.Error() + ": " + e.cause.Error()
}

func (e *notTrainedError) Cause() error { return e.cause }

func (e *notTrainedError) Unwrap() error { return e.cause }

func (e *notTrainedError) Is(target error) bool { return target == ErrNotTrained }
