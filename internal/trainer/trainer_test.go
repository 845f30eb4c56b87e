package trainer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/gopots/gopots/internal/dataset"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted is a network whose epoch losses come from a script. Its only
// "weight" records the epoch that produced it.
type scripted struct {
	losses   []float64 // per epoch, used for validation (or training without val)
	epoch    int
	steps    int
	perEpoch int
	weight   *tensor.RawTensor
	failAt   int // epoch whose first train step fails
	panicAt  int
	stepErr  error
}

func newScripted(t *testing.T, losses ...float64) *scripted {
	raw, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	return &scripted{losses: losses, weight: raw, perEpoch: 2}
}

func (s *scripted) TrainStep(context.Context, dataset.Batch) (Results, error) {
	if s.steps%s.perEpoch == 0 {
		s.epoch++
	}
	s.steps++
	if s.failAt == s.epoch {
		if s.stepErr != nil {
			return nil, s.stepErr
		}
		return nil, errors.New("step failed")
	}
	if s.panicAt == s.epoch {
		panic("shape mismatch")
	}
	s.weight.AsFloat32()[0] = float32(s.epoch)
	return Results{"loss": s.losses[s.epoch-1], "accuracy": 1}, nil
}

func (s *scripted) EvalStep(context.Context, dataset.Batch) (Results, error) {
	return Results{"loss": s.losses[s.epoch-1], "mae_error": 0.5}, nil
}

func (s *scripted) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"w": s.weight}
}

func (s *scripted) LoadStateDict(m map[string]*tensor.RawTensor) error {
	copy(s.weight.AsFloat32(), m["w"].AsFloat32())
	return nil
}

func (s *scripted) restoredEpoch() int { return int(s.weight.AsFloat32()[0]) }

type fixedBatches int

func (n fixedBatches) Epoch(context.Context) ([]dataset.Batch, error) {
	return make([]dataset.Batch, int(n)), nil
}

type recorder struct {
	stages map[string][]int
}

func (r *recorder) LogResults(step int, stage string, _ map[string]float64) error {
	if r.stages == nil {
		r.stages = make(map[string][]int)
	}
	r.stages[stage] = append(r.stages[stage], step)
	return nil
}

func quiet() Config {
	logger, _ := test.NewNullLogger()
	return Config{Logger: logger}
}

func TestTrainEarlyStopping(t *testing.T) {
	net := newScripted(t, 5, 3, 4, 4, 4, 1)
	cfg := quiet()
	cfg.Epochs, cfg.Patience = 6, 3

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(1))
	require.NoError(t, err)
	assert.Equal(t, Converged, run.Stop)
	assert.Equal(t, Finalized, run.Phase)
	assert.Equal(t, 5, run.EpochsRun, "stops after patience non-improving epochs")
	assert.Equal(t, 3.0, run.BestLoss)
	assert.Equal(t, 2, run.BestEpoch)
	assert.Equal(t, 10, run.Steps)
	assert.Equal(t, 2, net.restoredEpoch(), "best weights restored")
}

func TestTrainTiesDoNotImprove(t *testing.T) {
	net := newScripted(t, 2, 2, 2)
	cfg := quiet()
	cfg.Epochs, cfg.Patience = 3, 2
	var improved []int
	cfg.OnImprove = func(s EpochStats) error {
		improved = append(improved, s.Epoch)
		return nil
	}

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(1))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, improved)
	assert.Equal(t, Converged, run.Stop)
	assert.Equal(t, 3, run.EpochsRun)
}

func TestTrainNoPatienceRunsFullBudget(t *testing.T) {
	net := newScripted(t, 1, 2, 3, 4)
	cfg := quiet()
	cfg.Epochs = 4

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	require.NoError(t, err)
	assert.Equal(t, Completed, run.Stop)
	assert.Equal(t, 4, run.EpochsRun)
	assert.Equal(t, 1, run.BestEpoch)
	assert.False(t, run.History[0].HasVal)
}

func TestTrainBestLossNonIncreasing(t *testing.T) {
	net := newScripted(t, 4, 6, 2, 3, 1)
	cfg := quiet()
	cfg.Epochs = 5
	best := math.Inf(1)
	cfg.OnImprove = func(s EpochStats) error {
		assert.Less(t, s.Loss(), best)
		best = s.Loss()
		return nil
	}

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, run.BestLoss)
	assert.Len(t, run.History, 5)
}

func TestTrainInterruptedWithSnapshot(t *testing.T) {
	net := newScripted(t, 3, 2, 1)
	net.failAt = 3
	cfg := quiet()
	cfg.Epochs = 3

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(1))
	require.NoError(t, err)
	assert.Equal(t, Interrupted, run.Stop)
	assert.Error(t, run.Interrupt)
	assert.Equal(t, 2, run.BestEpoch)
	assert.Equal(t, 2, net.restoredEpoch())
}

func TestTrainInterruptedWithoutSnapshot(t *testing.T) {
	cause := errors.New("out of memory")
	net := newScripted(t, 3)
	net.failAt, net.stepErr = 1, cause
	cfg := quiet()
	cfg.Epochs = 3

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotTrained))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, pkgerrors.Cause(err))
	assert.Contains(t, err.Error(), "out of memory")
	assert.Equal(t, Interrupted, run.Phase)
}

func TestTrainRecoversPanic(t *testing.T) {
	net := newScripted(t, 1, 1)
	net.panicAt = 2
	cfg := quiet()
	cfg.Epochs = 2

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	require.NoError(t, err)
	assert.Equal(t, Interrupted, run.Stop)
	assert.Contains(t, run.Interrupt.Error(), "shape mismatch")
}

func TestTrainCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	net := newScripted(t, 1)
	cfg := quiet()
	cfg.Epochs = 1

	_, err := Train(ctx, cfg, net, fixedBatches(1), nil)
	assert.True(t, errors.Is(err, ErrNotTrained))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTrainOnImproveErrorInterrupts(t *testing.T) {
	net := newScripted(t, 3, 2, 1)
	cfg := quiet()
	cfg.Epochs = 3
	calls := 0
	cfg.OnImprove = func(EpochStats) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return nil
	}

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	require.NoError(t, err)
	assert.Equal(t, Interrupted, run.Stop)
	assert.Equal(t, 2, run.EpochsRun)
}

func TestTrainNoFiniteLoss(t *testing.T) {
	net := newScripted(t, math.NaN(), math.NaN())
	cfg := quiet()
	cfg.Epochs = 2

	_, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	assert.True(t, errors.Is(err, ErrNoFiniteLoss))
}

func TestTrainLogsEvents(t *testing.T) {
	net := newScripted(t, 2, 1)
	rec := &recorder{}
	cfg := quiet()
	cfg.Epochs, cfg.Events = 2, rec

	_, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(1))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, rec.stages["training"])
	assert.Equal(t, []int{1, 2}, rec.stages["validating"])
}

func TestTrainValidatesConfig(t *testing.T) {
	_, err := Train(context.Background(), Config{}, newScripted(t, 1), fixedBatches(1), nil)
	assert.Error(t, err)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "converged", Converged.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

// partialEval reports "imputation_error" only on the first batch of each
// validation pass, and a per-epoch score "holdout" on every batch.
type partialEval struct {
	*scripted
	calls   int
	holdout []float64
}

func (p *partialEval) EvalStep(context.Context, dataset.Batch) (Results, error) {
	p.calls++
	res := Results{"loss": p.losses[p.epoch-1]}
	if p.holdout != nil {
		res["holdout"] = p.holdout[p.epoch-1]
	}
	if p.calls%2 == 1 {
		res["imputation_error"] = 2
	}
	return res, nil
}

func TestValidateAveragesEachItemOverItsBatches(t *testing.T) {
	net := &partialEval{scripted: newScripted(t, 4)}
	cfg := quiet()
	cfg.Epochs = 1

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(2))
	require.NoError(t, err)
	require.Len(t, run.History, 1)
	val := run.History[0].ValResults
	assert.Equal(t, 2.0, val["imputation_error"])
	assert.Equal(t, 4.0, val["loss"])
}

func TestTrainMonitorSelectsItem(t *testing.T) {
	// loss improves every epoch, the monitored item only in the first.
	net := &partialEval{scripted: newScripted(t, 3, 2, 1), holdout: []float64{1, 5, 6}}
	cfg := quiet()
	cfg.Epochs, cfg.Monitor = 3, "holdout"

	run, err := Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(2))
	require.NoError(t, err)
	assert.Equal(t, 1, run.BestEpoch)
	assert.Equal(t, 1.0, run.BestLoss)
	assert.Equal(t, 1, net.restoredEpoch())

	cfg.Monitor = "absent"
	net = &partialEval{scripted: newScripted(t, 3, 2, 1)}
	run, err = Train(context.Background(), cfg, net, fixedBatches(2), fixedBatches(2))
	require.NoError(t, err)
	assert.Equal(t, 3, run.BestEpoch)
}

func TestTrainBestLossResetsEachRun(t *testing.T) {
	// The second run only sees losses above the first run's best.
	net := newScripted(t, 1, 2, 5, 4)
	cfg := quiet()
	cfg.Epochs = 2

	first, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.BestLoss)
	assert.Equal(t, 1, net.restoredEpoch())

	second, err := Train(context.Background(), cfg, net, fixedBatches(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, second.BestLoss)
	assert.Equal(t, 2, second.BestEpoch)
	require.Len(t, second.History, 2)
	assert.True(t, second.History[0].Improved)
	assert.Equal(t, 4, net.restoredEpoch())
}
