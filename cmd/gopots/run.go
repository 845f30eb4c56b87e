package main

import (
	"context"
	"math"

	"github.com/gopots/gopots/base"
	"github.com/gopots/gopots/classification"
	"github.com/gopots/gopots/dataset"
	"github.com/gopots/gopots/forecasting"
	"github.com/gopots/gopots/imputation"
	"github.com/gopots/gopots/internal/config"
	"github.com/gopots/gopots/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func nnOptions(cfg *config.Config, logger logrus.FieldLogger) base.NNOptions {
	return base.NNOptions{
		Options: base.Options{
			Device:     cfg.Device,
			SavingPath: cfg.SavingPath,
			Strategy:   cfg.Strategy,
			Logger:     logger,
		},
		BatchSize:  cfg.BatchSize,
		Epochs:     cfg.Epochs,
		Patience:   cfg.Patience,
		NumWorkers: cfg.NumWorkers,
		Seed:       cfg.Seed,
	}
}

func run(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) error {
	sc := dataset.SyntheticConfig{
		Samples:     cfg.Samples,
		Steps:       cfg.Steps,
		Features:    cfg.Features,
		MissingRate: cfg.MissingRate,
		Seed:        cfg.Seed,
	}
	switch cfg.Model {
	case config.ModelForecastingLinear:
		sc.Horizon = cfg.Horizon
	case config.ModelClassificationLinear:
		sc.Classes = cfg.Classes
	}
	ds, err := dataset.Synthetic(sc)
	if err != nil {
		return err
	}
	train, val, err := dataset.Split(ds, cfg.ValFraction)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"model": cfg.Model,
		"train": train.NSamples(),
		"val":   samples(val),
	}).Info("data ready")

	switch cfg.Model {
	case config.ModelImputationMLP:
		return runImputation(ctx, cfg, logger, train, val)
	case config.ModelForecastingLinear:
		return runForecasting(ctx, cfg, logger, train, val)
	case config.ModelClassificationLinear:
		return runClassification(ctx, cfg, logger, train, val)
	}
	return errors.Errorf("unknown model %q", cfg.Model)
}

func samples(ds *dataset.Dataset) int {
	if ds == nil {
		return 0
	}
	return ds.NSamples()
}

func runImputation(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, train, val *dataset.Dataset) error {
	if val != nil && cfg.HoldoutRate > 0 {
		var err error
		if val, err = dataset.MCAR(val, cfg.HoldoutRate, cfg.Seed+1); err != nil {
			return err
		}
	}
	m, err := imputation.NewMLP(imputation.MLPConfig{
		NNOptions:    nnOptions(cfg, logger),
		Steps:        cfg.Steps,
		Features:     cfg.Features,
		Hidden:       cfg.Hidden,
		LearningRate: cfg.LearningRate,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Fit(ctx, train, val); err != nil {
		return err
	}
	if val == nil || val.XOri == nil {
		return nil
	}
	imputed, err := m.Impute(ctx, val)
	if err != nil {
		return err
	}
	var pred, target, mask []float64
	for i := range imputed {
		for t := range imputed[i] {
			for f, v := range imputed[i][t] {
				ori := val.XOri[i][t][f]
				hidden := math.IsNaN(val.X[i][t][f]) && !math.IsNaN(ori)
				pred = append(pred, v)
				target = append(target, zeroNaN(ori))
				mask = append(mask, indicator(hidden))
			}
		}
	}
	mae, err := metrics.MAE(pred, target, mask)
	if errors.Is(err, metrics.ErrEmptyMask) {
		logger.Info("no held-out values to score")
		return nil
	}
	if err != nil {
		return err
	}
	logger.WithField("mae", mae).Info("imputation error on held-out values")
	return nil
}

func runForecasting(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, train, val *dataset.Dataset) error {
	m, err := forecasting.NewLinear(forecasting.LinearConfig{
		NNOptions:    nnOptions(cfg, logger),
		Steps:        cfg.Steps,
		Features:     cfg.Features,
		Horizon:      cfg.Horizon,
		LearningRate: cfg.LearningRate,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Fit(ctx, train, val); err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	forecast, err := m.Forecast(ctx, val)
	if err != nil {
		return err
	}
	var pred, target, mask []float64
	for i := range forecast {
		for t := range forecast[i] {
			for f, v := range forecast[i][t] {
				y := val.XPred[i][t][f]
				pred = append(pred, v)
				target = append(target, zeroNaN(y))
				mask = append(mask, indicator(!math.IsNaN(y)))
			}
		}
	}
	mae, err := metrics.MAE(pred, target, mask)
	if err != nil {
		return err
	}
	logger.WithField("mae", mae).Info("forecasting error on validation set")
	return nil
}

func runClassification(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, train, val *dataset.Dataset) error {
	m, err := classification.NewLinear(classification.LinearConfig{
		NNOptions:    nnOptions(cfg, logger),
		Steps:        cfg.Steps,
		Features:     cfg.Features,
		Classes:      cfg.Classes,
		LearningRate: cfg.LearningRate,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Fit(ctx, train, val); err != nil {
		return err
	}
	if val == nil {
		return nil
	}
	labels, err := m.Classify(ctx, val)
	if err != nil {
		return err
	}
	acc, err := metrics.Accuracy(labels, val.Y)
	if err != nil {
		return err
	}
	logger.WithField("accuracy", acc).Info("classification accuracy on validation set")
	return nil
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
