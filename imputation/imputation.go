// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package imputation provides models that fill in missing values of
// partially-observed time series.
package imputation

import (
	"context"

	"github.com/gopots/gopots/dataset"
)

// Imputer is implemented by every imputation model.
type Imputer interface {
	// Fit trains on train, selecting the best epoch on val when given.
	// val should carry XOri so imputation error can be measured.
	Fit(ctx context.Context, train, val *dataset.Dataset) error
	// Impute returns X with every missing value replaced by an estimate.
	Impute(ctx context.Context, ds *dataset.Dataset) ([][][]float64, error)
}
