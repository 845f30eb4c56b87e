package classification

import (
	"context"
	"testing"

	"github.com/gopots/gopots/base"
	"github.com/gopots/gopots/dataset"
	"github.com/gopots/gopots/device"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinear(t *testing.T) *Linear {
	t.Helper()
	logger, _ := test.NewNullLogger()
	m, err := NewLinear(LinearConfig{
		NNOptions: base.NNOptions{
			Options:   base.Options{Device: device.Spec{"cpu"}, Logger: logger},
			BatchSize: 16,
			Epochs:    10,
			Seed:      3,
		},
		Steps:        10,
		Features:     1,
		Classes:      2,
		LearningRate: 0.05,
	})
	require.NoError(t, err)
	return m
}

func TestLinearClassify(t *testing.T) {
	ds, err := dataset.Synthetic(dataset.SyntheticConfig{Samples: 64, Steps: 10, Features: 1, Classes: 2, Seed: 8})
	require.NoError(t, err)
	m := newTestLinear(t)

	require.NoError(t, m.Fit(context.Background(), ds, nil))

	proba, err := m.PredictProba(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, proba, 64)
	for _, p := range proba {
		assert.InDelta(t, 1.0, p[0]+p[1], 1e-9)
	}

	labels, err := m.Classify(context.Background(), ds)
	require.NoError(t, err)
	assert.Len(t, labels, 64)
	for _, y := range labels {
		assert.Contains(t, []int{0, 1}, y)
	}
}

func TestLinearNeedsLabels(t *testing.T) {
	ds, err := dataset.Synthetic(dataset.SyntheticConfig{Samples: 4, Steps: 10, Features: 1})
	require.NoError(t, err)
	assert.Error(t, newTestLinear(t).Fit(context.Background(), ds, nil))

	three, err := dataset.Synthetic(dataset.SyntheticConfig{Samples: 6, Steps: 10, Features: 1, Classes: 3})
	require.NoError(t, err)
	assert.Error(t, newTestLinear(t).Fit(context.Background(), three, nil))
}

func TestLinearConfig(t *testing.T) {
	_, err := NewLinear(LinearConfig{Steps: 1, Features: 1, Classes: 1})
	assert.Error(t, err)
}
