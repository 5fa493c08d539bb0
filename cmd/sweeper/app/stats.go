package app

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdrkit/sweep"
)

// logStats periodically samples engine progress until stop closes.
func logStats(engine *sweep.Engine, interval time.Duration, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		st := engine.Status()
		if st.State != sweep.StateRunning {
			continue
		}

		logger.Info("sweep progress",
			slog.Uint64("sweep", st.Sweep),
			slog.Int("segment", st.Segment),
			slog.String("center", humanize.SI(float64(st.CenterHz), "Hz")),
			slog.Float64("sweepsPerSec", st.SweepsPerSec),
			slog.String("blocksDropped", humanize.Comma(int64(st.BlocksDropped))),
			slog.String("blocksDiscarded", humanize.Comma(int64(st.BlocksDiscarded))),
			slog.String("segmentsDropped", humanize.Comma(int64(st.SegmentsDropped))),
		)
	}
}
