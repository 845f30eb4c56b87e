package dataset

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthetic(t *testing.T, cfg SyntheticConfig) *Dataset {
	t.Helper()
	ds, err := Synthetic(cfg)
	require.NoError(t, err)
	require.NoError(t, ds.Validate())
	return ds
}

func TestSyntheticShape(t *testing.T) {
	ds := synthetic(t, SyntheticConfig{Samples: 10, Steps: 12, Features: 3, Horizon: 4, Classes: 2, MissingRate: 0.2, Seed: 1})
	assert.Equal(t, 10, ds.NSamples())
	assert.Equal(t, 12, ds.NSteps())
	assert.Equal(t, 3, ds.NFeatures())
	assert.Equal(t, 4, ds.HorizonSteps())
	assert.Equal(t, 2, ds.NClasses())

	missing := 0
	for _, sample := range ds.X {
		for _, row := range sample {
			for _, v := range row {
				if math.IsNaN(v) {
					missing++
				}
			}
		}
	}
	assert.Greater(t, missing, 0)
	for _, sample := range ds.XPred {
		for _, row := range sample {
			for _, v := range row {
				assert.False(t, math.IsNaN(v))
			}
		}
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	a := synthetic(t, SyntheticConfig{Samples: 3, Steps: 5, Features: 2, Seed: 7})
	b := synthetic(t, SyntheticConfig{Samples: 3, Steps: 5, Features: 2, Seed: 7})
	assert.Equal(t, a.X, b.X)
	assert.Nil(t, a.Y)
}

func TestValidate(t *testing.T) {
	assert.True(t, errors.Is((&Dataset{}).Validate(), ErrInvalidDataset))

	ragged := &Dataset{X: [][][]float64{{{1, 2}}, {{1}}}}
	assert.True(t, errors.Is(ragged.Validate(), ErrInvalidDataset))

	labels := &Dataset{X: [][][]float64{{{1}}}, Y: []int{0, 1}}
	assert.True(t, errors.Is(labels.Validate(), ErrInvalidDataset))

	ok := &Dataset{X: [][][]float64{{{1}, {2}}}, XPred: [][][]float64{{{3}}}}
	assert.NoError(t, ok.Validate())
}

func TestMCAR(t *testing.T) {
	ds := synthetic(t, SyntheticConfig{Samples: 20, Steps: 10, Features: 2, Seed: 3})
	out, err := MCAR(ds, 0.3, 9)
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	hidden := 0
	for i := range out.X {
		for s := range out.X[i] {
			for f, v := range out.X[i][s] {
				assert.Equal(t, ds.X[i][s][f], out.XOri[i][s][f])
				if math.IsNaN(v) {
					hidden++
				} else {
					assert.Equal(t, ds.X[i][s][f], v)
				}
			}
		}
	}
	assert.Greater(t, hidden, 0)
	assert.False(t, math.IsNaN(ds.X[0][0][0]), "input left untouched")

	_, err = MCAR(ds, 1, 0)
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	values, mask := Flatten([][]float64{{1, math.NaN()}, {3, 4}})
	assert.Equal(t, []float64{1, 0, 3, 4}, values)
	assert.Equal(t, []float64{1, 0, 1, 1}, mask)
	assert.Equal(t, [][]float64{{1, 0}, {3, 4}}, Unflatten(values, 2, 2))
}

func TestLoaderEpoch(t *testing.T) {
	ds := synthetic(t, SyntheticConfig{Samples: 10, Steps: 4, Features: 1, Classes: 2, Seed: 1})

	for _, workers := range []int{0, 3} {
		l := &Loader{Dataset: ds, BatchSize: 4, NumWorkers: workers}
		batches, err := l.Epoch(context.Background())
		require.NoError(t, err)
		require.Len(t, batches, 3)
		assert.Equal(t, 3, l.NumBatches())
		assert.Equal(t, []int{0, 1, 2, 3}, batches[0].Indices)
		assert.Equal(t, 2, batches[2].Size())
		assert.Equal(t, ds.Y[8], batches[2].Y[0])
		assert.Nil(t, batches[0].XOri)
	}
}

func TestLoaderShuffle(t *testing.T) {
	ds := synthetic(t, SyntheticConfig{Samples: 32, Steps: 2, Features: 1, Seed: 1})
	l := &Loader{Dataset: ds, BatchSize: 5, Shuffle: true, NumWorkers: 2, Seed: 11}

	first, err := l.Epoch(context.Background())
	require.NoError(t, err)
	second, err := l.Epoch(context.Background())
	require.NoError(t, err)

	collect := func(bs []Batch) []int {
		var idx []int
		for _, b := range bs {
			idx = append(idx, b.Indices...)
		}
		return idx
	}
	a, b := collect(first), collect(second)
	assert.NotEqual(t, a, b, "reshuffled per epoch")
	sort.Ints(a)
	for i, v := range a {
		assert.Equal(t, i, v)
	}
}

func TestLoaderErrors(t *testing.T) {
	_, err := (&Loader{BatchSize: 1}).Epoch(context.Background())
	assert.Error(t, err)

	ds := synthetic(t, SyntheticConfig{Samples: 2, Steps: 2, Features: 1})
	_, err = (&Loader{Dataset: ds}).Epoch(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Loader{Dataset: ds, BatchSize: 1}).Epoch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplit(t *testing.T) {
	ds := synthetic(t, SyntheticConfig{Samples: 10, Steps: 3, Features: 2, Horizon: 1, Classes: 2})

	train, val, err := Split(ds, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 8, train.NSamples())
	assert.Equal(t, 2, val.NSamples())
	assert.Equal(t, ds.Y[8:], val.Y)
	assert.Len(t, val.XPred, 2)
	require.NoError(t, val.Validate())

	train, val, err = Split(ds, 0)
	require.NoError(t, err)
	assert.Same(t, ds, train)
	assert.Nil(t, val)

	_, _, err = Split(ds, 1)
	assert.Error(t, err)
}
