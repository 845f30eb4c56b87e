// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package classification provides models that label partially-observed
// time series.
package classification

import (
	"context"

	"github.com/gopots/gopots/dataset"
)

// Classifier is implemented by every classification model.
type Classifier interface {
	// Fit trains on train; both sets must carry Y.
	Fit(ctx context.Context, train, val *dataset.Dataset) error
	// Classify returns the most likely class of every sample.
	Classify(ctx context.Context, ds *dataset.Dataset) ([]int, error)
	// PredictProba returns class probabilities per sample.
	PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error)
}
