// Package checkpoint persists model weights and decides when to save them.
//
// Files use born's tensor container under a ".pypots" name. The header
// carries the model type and string metadata such as the epoch and loss the
// weights were taken at.
package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Extension is appended to every checkpoint file name.
const Extension = ".pypots"

// Errors returned by Save and Load.
var (
	ErrCheckpointExists   = errors.New("checkpoint file already exists")
	ErrCheckpointNotFound = errors.New("checkpoint file not found")
)

// Unwrapper is implemented by wrappers (such as a data-parallel replica
// set) whose plain inner module is what gets serialized.
type Unwrapper[B tensor.Backend] interface {
	Unwrap() nn.Module[B]
}

// SaveOptions control a single Save call.
type SaveOptions struct {
	Overwrite bool
	ModelType string
	Metadata  map[string]string
	Logger    logrus.FieldLogger
}

// Header is the descriptive part of a loaded checkpoint.
type Header struct {
	ModelType string
	CreatedAt time.Time
	Metadata  map[string]string
}

// FileName appends the checkpoint extension unless name already has it.
func FileName(name string) string {
	if strings.HasSuffix(name, Extension) {
		return name
	}
	return name + Extension
}

func unwrap[B tensor.Backend](m nn.Module[B]) nn.Module[B] {
	for {
		w, ok := m.(Unwrapper[B])
		if !ok {
			return m
		}
		m = w.Unwrap()
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save writes m to dir/FileName(name) and returns the written path.
//
// An existing file is only replaced when opts.Overwrite is set; otherwise
// Save logs an error and returns ErrCheckpointExists without touching it.
func Save[B tensor.Backend](dir, name string, m nn.Module[B], opts SaveOptions) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	path := filepath.Join(dir, FileName(name))

	if exists(path) {
		if !opts.Overwrite {
			logger.WithField("path", path).Error("file exists, saving operation aborted; set overwrite to replace it")
			return "", errors.Wrapf(ErrCheckpointExists, "%q", path)
		}
		logger.WithField("path", path).Warn("file exists, it will be overwritten")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to save the model to %q", path)
	}

	modelType := opts.ModelType
	if modelType == "" {
		modelType = "Module"
	}
	meta := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	meta["saved_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := nn.Save(unwrap(m), path, modelType, meta); err != nil {
		return "", errors.Wrapf(err, "failed to save the model to %q", path)
	}
	logger.WithField("path", path).Info("saved the model")
	return path, nil
}

// Load reads the checkpoint at path onto backend and merges its weights
// into m, which must have been built with the same architecture.
func Load[B tensor.Backend](path string, backend B, m nn.Module[B]) (Header, error) {
	if !exists(path) {
		return Header{}, errors.Wrapf(ErrCheckpointNotFound, "%q", path)
	}

	h, err := nn.Load(path, backend, unwrap(m))
	if err != nil {
		return Header{}, errors.Wrapf(err, "failed to load the model from %q", path)
	}
	return Header{ModelType: h.ModelType, CreatedAt: h.CreatedAt, Metadata: h.Metadata}, nil
}

// AutoSave applies the strategy gate. It is a no-op without a saving path
// and always overwrites, so one run directory holds one file per name.
func AutoSave[B tensor.Backend](
	s Strategy,
	savingPath, name string,
	m nn.Module[B],
	finished bool,
	opts SaveOptions,
) (saved bool, err error) {
	if savingPath == "" || !s.ShouldSave(finished) {
		return false, nil
	}
	opts.Overwrite = true
	if _, err := Save(savingPath, name, m, opts); err != nil {
		return false, err
	}
	return true, nil
}
