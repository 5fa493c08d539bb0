package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/sdrkit/sweep"
	"github.com/sdrkit/sweep/internal/storage"
	"github.com/sdrkit/sweep/transport"
	"github.com/sdrkit/sweep/transport/sim"
)

const (
	storageDir  = "data"
	openTimeout = 30 * time.Second
)

// Run wires the simulated device, the sweep engine and the recorder
// together and sweeps until the run completes, fails, or ctx is
// cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	device := sim.New(config.SimConfig())
	engine := sweep.New(device, sweep.WithLogger(logger))

	if err := engine.Configure(config.SweepConfig()); err != nil {
		return fmt.Errorf("configuring engine: %w", err)
	}

	var rec *recorder
	if config.Storage.DataDirectory != "" {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("creating storage: %w", err)
		}
		defer store.Close()

		if rec, err = newRecorder(ctx, store, device.Serial(), config.SweepConfig(), logger); err != nil {
			return fmt.Errorf("creating recorder: %w", err)
		}
		defer rec.Close()
	}

	callback := func(r sweep.Result) {
		if rec != nil {
			rec.Deliver(r)
			return
		}
		logger.Debug("result",
			slog.Uint64("sweep", r.Sweep),
			slog.Int("segment", r.Segment),
			slog.Int("samples", len(r.Samples)),
		)
	}

	errc, err := startWithRetry(ctx, engine, callback, config.DeliveryMode(), logger)
	if err != nil {
		return fmt.Errorf("starting sweep: %w", err)
	}

	stop := make(chan struct{})
	go logStats(engine, config.Settings.StatsInterval(), logger, stop)
	defer close(stop)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		engine.Stop()
		if fatal := <-errc; fatal != nil {
			return fatal
		}
		return nil

	case fatal := <-errc:
		return fatal
	}
}

// startWithRetry arms the engine, retrying with exponential backoff while
// the device is absent. Retry of hardware operations is a host-layer
// policy; the engine itself never retries.
func startWithRetry(ctx context.Context, engine *sweep.Engine, cb sweep.ResultCallback, mode sweep.DeliveryMode, logger *slog.Logger) (<-chan error, error) {
	var errc <-chan error

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = openTimeout

	operation := func() error {
		var err error
		if errc, err = engine.Start(ctx, cb, mode); err != nil {
			if errors.Is(err, transport.ErrDeviceNotFound) {
				logger.Warn(fmt.Sprintf("device not found, retrying: %s", err))
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return errc, nil
}

func createStorage(config *StorageConfig) (*storage.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current working directory: %w", err)
	}

	dbPath := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("sweep_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.New(dbPath), nil
}
