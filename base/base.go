// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package base provides the options and errors shared by every model.
package base

import (
	"github.com/gopots/gopots/internal/base"
	"github.com/gopots/gopots/internal/checkpoint"
	"github.com/gopots/gopots/internal/engine"
	"github.com/gopots/gopots/internal/trainer"
)

// Options configures device placement, saving and logging.
type Options = base.Options

// NNOptions adds the training hyper-parameters of neural models.
type NNOptions = base.NNOptions

// Strategy decides when models are saved automatically.
type Strategy = checkpoint.Strategy

// Saving strategies.
const (
	None   = checkpoint.None
	Best   = checkpoint.Best
	Better = checkpoint.Better
)

// Run describes a finished training run.
type Run = trainer.Run

// Version is recorded in every checkpoint.
const Version = base.Version

// Errors returned by model constructors, Fit, Save and Load.
var (
	ErrPatienceExceedsEpochs = base.ErrPatienceExceedsEpochs
	ErrInvalidStrategy       = checkpoint.ErrInvalidStrategy
	ErrCheckpointExists      = checkpoint.ErrCheckpointExists
	ErrCheckpointNotFound    = checkpoint.ErrCheckpointNotFound
	ErrNotTrained            = trainer.ErrNotTrained
	ErrNoFiniteLoss          = trainer.ErrNoFiniteLoss
	ErrNoBackend             = engine.ErrNoBackend
	ErrModelTypeMismatch     = base.ErrModelTypeMismatch
)

// ParseStrategy maps "best", "better" and "none" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	return checkpoint.ParseStrategy(s)
}
