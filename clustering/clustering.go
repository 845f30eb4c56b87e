// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package clustering defines the contract of models that group
// partially-observed time series without labels.
package clustering

import (
	"context"

	"github.com/gopots/gopots/dataset"
)

// Clusterer is implemented by every clustering model.
type Clusterer interface {
	// Fit learns cluster structure from train; val is optional.
	Fit(ctx context.Context, train, val *dataset.Dataset) error
	// Cluster assigns every sample of ds to a cluster.
	Cluster(ctx context.Context, ds *dataset.Dataset) ([]int, error)
}
