// Copyright 2026 gopots Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package forecasting provides models that predict the steps following a
// partially-observed series.
package forecasting

import (
	"context"

	"github.com/gopots/gopots/dataset"
)

// Forecaster is implemented by every forecasting model.
type Forecaster interface {
	// Fit trains on train; both sets must carry XPred.
	Fit(ctx context.Context, train, val *dataset.Dataset) error
	// Forecast returns the predicted horizon of every sample.
	Forecast(ctx context.Context, ds *dataset.Dataset) ([][][]float64, error)
}
