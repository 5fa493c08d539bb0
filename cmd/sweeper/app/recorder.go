package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sdrkit/sweep"
	"github.com/sdrkit/sweep/internal/storage"
)

// resultBufferDepth absorbs storage latency spikes; when the buffer is
// full the result is discarded and counted, since the engine callback
// must never block.
const resultBufferDepth = 64

// recorder pumps engine results into a storage session on its own
// goroutine, keeping database writes off the processing loop.
type recorder struct {
	store     *storage.Store
	sessionID int64
	logger    *slog.Logger

	results chan sweep.Result
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// newRecorder registers a session for the device and starts the pump.
func newRecorder(ctx context.Context, store *storage.Store, device string, config sweep.SweepConfig, logger *slog.Logger) (*recorder, error) {
	sessionID, err := store.CreateSession(ctx, device, config)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	rec := recorder{
		store:     store,
		sessionID: sessionID,
		logger:    logger,
		results:   make(chan sweep.Result, resultBufferDepth),
	}

	rec.wg.Add(1)
	go rec.run()

	logger.Info("recording session", slog.Int64("session", sessionID), slog.String("device", device))
	return &rec, nil
}

// Deliver hands one result to the pump without blocking.
func (rec *recorder) Deliver(r sweep.Result) {
	select {
	case rec.results <- r:
	default:
		rec.dropped.Add(1)
	}
}

// Dropped returns the number of results discarded because the pump fell
// behind.
func (rec *recorder) Dropped() uint64 { return rec.dropped.Load() }

// Close drains outstanding results and stops the pump. The recorder must
// not be used afterwards.
func (rec *recorder) Close() {
	close(rec.results)
	rec.wg.Wait()

	if n := rec.dropped.Load(); n > 0 {
		rec.logger.Warn("recorder fell behind", slog.Uint64("resultsDropped", n))
	}
}

func (rec *recorder) run() {
	defer rec.wg.Done()

	// Writes proceed during shutdown so buffered results are not lost;
	// Close bounds this by closing the channel.
	for r := range rec.results {
		if err := rec.store.StoreResult(context.Background(), rec.sessionID, &r); err != nil {
			rec.logger.Error(fmt.Sprintf("storing result: %s", err))
		}
	}
}
