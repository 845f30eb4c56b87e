// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset provides the public API for in-memory time series data.
//
// Series are laid out [sample][step][feature] with NaN marking missing
// values:
//
//	ds, _ := dataset.Synthetic(dataset.SyntheticConfig{Samples: 128, Steps: 24, Features: 4, MissingRate: 0.1})
//	val, _ := dataset.MCAR(ds, 0.1, 42) // hide 10% more for scoring imputations
package dataset

import "github.com/gopots/gopots/internal/dataset"

// Dataset is a set of equally shaped multivariate series.
type Dataset = dataset.Dataset

// Batch is a slice of a dataset.
type Batch = dataset.Batch

// Loader cuts a dataset into batches.
type Loader = dataset.Loader

// SyntheticConfig describes a generated dataset.
type SyntheticConfig = dataset.SyntheticConfig

// ErrInvalidDataset is returned by Dataset.Validate.
var ErrInvalidDataset = dataset.ErrInvalidDataset

// MCAR hides a fraction of observed values completely at random and keeps
// the ground truth in XOri.
func MCAR(ds *Dataset, rate float64, seed uint64) (*Dataset, error) {
	return dataset.MCAR(ds, rate, seed)
}

// Synthetic generates noisy sine waves with missing values.
func Synthetic(cfg SyntheticConfig) (*Dataset, error) {
	return dataset.Synthetic(cfg)
}

// Split moves the last fraction of the samples into a validation set.
func Split(ds *Dataset, fraction float64) (train, val *Dataset, err error) {
	return dataset.Split(ds, fraction)
}
