package events

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogResultsFiltersItems(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tensorboard")
	w, err := Open(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(w.Path()), "events."))
	assert.True(t, strings.HasSuffix(w.Path(), ".pypots"))

	require.NoError(t, w.LogResults(1, "training", map[string]float64{
		"loss":             0.5,
		"imputation_error": 0.25,
		"accuracy":         0.9,
		"learning_rate":    1e-3,
	}))
	require.NoError(t, w.LogResults(2, "training", map[string]float64{"loss": 0.4}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.True(t, errors.Is(w.AddScalar("x/loss", 1, 1), ErrClosed))

	got, err := ReadScalars(dir)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.Len(t, got["training/loss"], 2)
	assert.Equal(t, 1, got["training/loss"][0].Step)
	assert.Equal(t, 0.4, got["training/loss"][1].Value)
	assert.Equal(t, 0.25, got["training/imputation_error"][0].Value)
	assert.NotContains(t, got, "training/accuracy")
	assert.NotContains(t, got, "training/learning_rate")
}

func TestReadScalarsMergesFiles(t *testing.T) {
	dir := t.TempDir()
	for step := 0; step < 2; step++ {
		w, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, w.AddScalar("validating/loss", float64(step), 2-step))
		require.NoError(t, w.Close())
	}

	got, err := ReadScalars(dir)
	require.NoError(t, err)
	series := got["validating/loss"]
	require.Len(t, series, 2)
	assert.Less(t, series[0].Step, series[1].Step)
}

func TestLogged(t *testing.T) {
	assert.True(t, Logged("loss"))
	assert.True(t, Logged("val_loss"))
	assert.True(t, Logged("mae_error"))
	assert.False(t, Logged("accuracy"))
}
