// Package main provides the gopots command line tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gopots/gopots/base"
	"github.com/gopots/gopots/device"
	"github.com/gopots/gopots/internal/config"
	"github.com/gopots/gopots/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, "gopots %s - training partially-observed time series models\n\n", base.Version)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version    Show version")
	fmt.Fprintln(os.Stderr, "  devices    List compute devices")
	fmt.Fprintln(os.Stderr, "  train      Train a model on synthetic data (see train -h)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("gopots %s\n", base.Version)
	case "devices":
		for _, r := range device.Survey(nil) {
			fmt.Printf("%-7s %d  %s\n", r.Kind, r.Count, r.Description)
		}
	case "train":
		os.Exit(train(os.Args[2:]))
	default:
		usage()
		os.Exit(2)
	}
}

// parseTrainFlags returns the config path and the overrides given on the
// command line. Flags that were not set leave the config untouched.
func parseTrainFlags(args []string) (string, config.Overrides, error) {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (defaults are used when empty)")
	model := fs.String("model", "", "Override model kind")
	epochs := fs.Int("epochs", 0, "Override number of epochs")
	batchSize := fs.Int("batch-size", 0, "Override batch size")
	patience := fs.Int("patience", 0, "Override early stopping patience (0 disables it)")
	numWorkers := fs.Int("num-workers", 0, "Override number of batch workers")
	dev := fs.String("device", "", "Override devices, comma separated (e.g. cuda:0,cuda:1)")
	savingPath := fs.String("saving-path", "", "Override root directory for run outputs")
	strategy := fs.String("strategy", "", "Override saving strategy: none, best or better")
	logLevel := fs.String("log-level", "", "Override log level")
	seed := fs.Uint64("seed", 0, "Override PRNG seed")
	if err := fs.Parse(args); err != nil {
		return "", config.Overrides{}, err
	}

	o := config.Overrides{
		Model:      *model,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		NumWorkers: *numWorkers,
		Device:     *dev,
		SavingPath: *savingPath,
		Strategy:   *strategy,
		LogLevel:   *logLevel,
		Seed:       *seed,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "patience" {
			o.Patience = patience
		}
	})
	return *cfgPath, o, nil
}

func train(args []string) int {
	cfgPath, overrides, err := parseTrainFlags(args)
	if err != nil {
		return 2
	}

	cfg := config.Default()
	if cfgPath != "" {
		if cfg, err = config.Load(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return 1
		}
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "invalid override: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set up logging: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("training failed")
		return 1
	}
	return 0
}
