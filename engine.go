// Package sweep implements a wideband spectrum sweep engine over a
// retuning SDR front end. A fixed-rate capture stream is cut into
// quarter-span tuning segments; each segment's block is windowed,
// transformed and reduced to its two clean quarter-spans, which stitch
// into a contiguous power trace across a range far wider than the
// instantaneous bandwidth.
//
// The engine owns the device through the transport contract, a lock-free
// ring decouples the capture callback from processing, and results are
// delivered per segment or merged per sweep to a caller-supplied
// callback.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrkit/sweep/internal/dsp"
	"github.com/sdrkit/sweep/internal/plan"
	"github.com/sdrkit/sweep/internal/ring"
	"github.com/sdrkit/sweep/internal/stitch"
	"github.com/sdrkit/sweep/transport"
)

const (
	// DefaultRingSlots is the capture ring depth used unless overridden
	// with WithRingSlots.
	DefaultRingSlots = 8

	// DefaultReadTimeout bounds how long the processing loop sleeps
	// waiting for captured blocks before rechecking stop conditions.
	DefaultReadTimeout = 100 * time.Millisecond
)

// WithLogger sets the logger for the engine. The default discards
// everything.
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRingSlots sets the capture ring depth. Deeper rings ride out longer
// processing stalls before blocks drop.
func WithRingSlots(n int) func(*Engine) {
	return func(e *Engine) {
		e.ringSlots = n
	}
}

// WithReadTimeout sets the bounded wait of the processing loop.
func WithReadTimeout(d time.Duration) func(*Engine) {
	return func(e *Engine) {
		if d > 0 {
			e.readTimeout = d
		}
	}
}

// Engine is the sweep state machine. Configure arms it, Start runs it,
// Stop tears it down; Status may be polled from any goroutine.
type Engine struct {
	tr     transport.Transport
	logger *slog.Logger

	ringSlots   int
	readTimeout time.Duration

	mu    sync.Mutex
	state State
	err   error

	cfg    SweepConfig
	plan   *plan.Plan
	xform  *dsp.Transform
	layout *stitch.Layout
	asm    *stitch.Assembler

	rb       *ring.Ring
	stopping atomic.Bool
	loopDone chan struct{}
	errc     chan error

	blocksDropped   atomic.Uint64
	blocksDiscarded atomic.Uint64
	segmentsDropped atomic.Uint64

	// loop progress, published under mu
	sweep        uint64
	segment      int
	centerHz     uint64
	sweepsPerSec float64
}

// New creates an engine over tr with a discard logger.
func New(tr transport.Transport, options ...func(*Engine)) *Engine {
	e := Engine{
		tr:          tr,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		ringSlots:   DefaultRingSlots,
		readTimeout: DefaultReadTimeout,
		state:       StateIdle,
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// Configure validates cfg and derives the run geometry: frequency plan,
// transform context and stitch layout. Valid from Idle, Configuring,
// Stopped and Complete; the state is unchanged when validation fails.
func (e *Engine) Configure(cfg SweepConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle, StateConfiguring, StateStopped, StateComplete:
	default:
		return fmt.Errorf("%w: configure while %s", ErrInvalidState, e.state)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	s := cfg.sanitized()

	p, err := plan.New(s.FreqMinHz, s.FreqMaxHz, s.SampleRateHz)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	size, err := plan.TransformSize(s.SampleRateHz, s.BinWidthHz)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	xform, err := dsp.New(size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	layout, err := stitch.NewLayout(size, s.SampleRateHz, stitch.RetentionPolicy(s.Retention), s.ExclusionWidthBins)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	asm, err := stitch.NewAssembler(layout, p.Start(), p.Len())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e.cfg = s
	e.plan = p
	e.xform = xform
	e.layout = layout
	e.asm = asm
	e.state = StateConfiguring

	e.logger.Info("configured",
		slog.Uint64("freqMin", s.FreqMinHz),
		slog.Uint64("freqMax", s.FreqMaxHz),
		slog.Int("segments", p.Len()),
		slog.Int("transformSize", size),
		slog.Float64("binWidth", plan.EffectiveBinWidth(s.SampleRateHz, size)),
	)

	return nil
}

// Start arms the device and launches the processing loop. Valid from
// Configuring only. The returned channel yields at most one fatal error
// and is closed when the run ends; it closes bare on Complete and on
// Stop. Cancelling ctx stops the run the way Stop does.
func (e *Engine) Start(ctx context.Context, cb ResultCallback, mode DeliveryMode) (<-chan error, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: nil result callback", ErrStart)
	}
	if mode != DeliverPerSegment && mode != DeliverPerSweep {
		return nil, fmt.Errorf("%w: unknown delivery mode %d", ErrStart, mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateConfiguring {
		return nil, fmt.Errorf("%w: start while %s", ErrInvalidState, e.state)
	}

	rb, err := ring.New(e.ringSlots, transport.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStart, err)
	}

	if err := e.tr.Open(ctx); err != nil {
		return nil, fmt.Errorf("%w: opening device: %w", ErrStart, err)
	}

	e.plan.Reset()
	e.asm.Reset()
	first := e.plan.Current()

	if err := e.arm(first); err != nil {
		err = fmt.Errorf("%w: %w", ErrStart, err)
		if cerr := e.tr.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	// The capture callback may fire as soon as RX starts; everything it
	// touches is in place before that.
	e.rb = rb
	e.stopping.Store(false)
	e.blocksDropped.Store(0)
	e.blocksDiscarded.Store(0)
	e.segmentsDropped.Store(0)

	rxErrc, err := e.tr.StartRX(e.capture)
	if err != nil {
		e.rb = nil
		err = fmt.Errorf("%w: starting rx: %w", ErrStart, err)
		if cerr := e.tr.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	e.loopDone = make(chan struct{})
	e.errc = make(chan error, 1)
	e.err = nil
	e.sweep, e.segment, e.centerHz, e.sweepsPerSec = 0, 0, first, 0
	e.state = StateRunning

	e.logger.Info("sweep started",
		slog.Uint64("firstCenter", first),
		slog.Int("segments", e.plan.Len()),
		slog.String("delivery", mode.String()),
	)

	go e.run(ctx, cb, mode, rxErrc)

	return e.errc, nil
}

// arm pushes the armed configuration into the device, first tune last.
func (e *Engine) arm(firstCenterHz uint64) error {
	if err := e.tr.SetSampleRate(e.cfg.SampleRateHz); err != nil {
		return fmt.Errorf("setting sample rate: %w", err)
	}
	if err := e.tr.SetLNAGain(e.cfg.LNAGainDB); err != nil {
		return fmt.Errorf("setting LNA gain: %w", err)
	}
	if err := e.tr.SetVGAGain(e.cfg.VGAGainDB); err != nil {
		return fmt.Errorf("setting VGA gain: %w", err)
	}
	if err := e.tr.SetAmpEnable(e.cfg.AmpEnabled); err != nil {
		return fmt.Errorf("setting amp: %w", err)
	}
	if err := e.tr.SetCenterFreq(firstCenterHz); err != nil {
		return fmt.Errorf("tuning %d Hz: %w", firstCenterHz, err)
	}
	return nil
}

// Stop signals the processing loop and waits for teardown. It is
// idempotent, safe to call concurrently, and a no-op before Start. It
// must not be called from inside a ResultCallback.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateRunning {
		e.state = StateStopping
		e.stopping.Store(true)
	}
	done := e.loopDone
	e.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the engine's progress.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		State:           e.state,
		Sweep:           e.sweep,
		Segment:         e.segment,
		CenterHz:        e.centerHz,
		BlocksDropped:   e.blocksDropped.Load(),
		BlocksDiscarded: e.blocksDiscarded.Load(),
		SegmentsDropped: e.segmentsDropped.Load(),
		SweepsPerSec:    e.sweepsPerSec,
		Err:             e.err,
	}
}

// capture runs on the transport's goroutine for every block. It only
// copies into a ring slot; an exhausted ring drops the block and keeps
// streaming. No allocation, no blocking, no logging.
func (e *Engine) capture(block []byte, centerHz uint64) error {
	if e.stopping.Load() {
		return nil
	}

	slot, err := e.rb.AcquireWrite()
	if err != nil {
		e.blocksDropped.Add(1)
		return nil
	}

	slot.Len = copy(slot.Data, block)
	slot.T = time.Now()
	slot.Center = centerHz
	e.rb.CommitWrite(slot)
	return nil
}

// run is the processing loop: wait for a block, validate it against the
// current segment, transform, stitch, deliver, advance, retune.
func (e *Engine) run(ctx context.Context, cb ResultCallback, mode DeliveryMode, rxErrc <-chan error) {
	defer close(e.loopDone)

	timer := time.NewTimer(e.readTimeout)
	defer timer.Stop()

	var (
		validAfter time.Time // settle deadline after the last retune
		sweepStart time.Time // capture time of the first block of this sweep
		lastWrap   time.Time
	)
	if e.cfg.SettleDelay > 0 {
		validAfter = time.Now().Add(e.cfg.SettleDelay)
	}

	for {
		select {
		case <-ctx.Done():
			e.finish(nil, false)
			return
		default:
		}
		if e.stopping.Load() {
			e.finish(nil, false)
			return
		}

		slot, err := e.rb.AcquireRead()
		if err != nil {
			timer.Reset(e.readTimeout)
			select {
			case <-e.rb.Ready():
			case <-timer.C:
			case <-ctx.Done():
				e.finish(nil, false)
				return
			case rxe, ok := <-rxErrc:
				if !ok || rxe == nil {
					if e.stopping.Load() {
						continue
					}
					e.finish(fmt.Errorf("%w: rx stream ended unexpectedly", ErrTransport), false)
					return
				}
				e.finish(fmt.Errorf("%w: %w", ErrTransport, rxe), false)
				return
			}
			continue
		}

		// Blocks tuned to a stale center, or captured before the
		// settle deadline, never reach the transform.
		if slot.Center != e.plan.Current() || (!validAfter.IsZero() && slot.T.Before(validAfter)) {
			e.rb.ReleaseRead(slot)
			e.blocksDiscarded.Add(1)
			continue
		}

		t, center := slot.T, slot.Center
		power, perr := e.xform.Power(slot.Data[:slot.Len])
		e.rb.ReleaseRead(slot)

		segIdx := e.plan.Index()
		if perr != nil {
			// The segment is dropped whole; the sweep moves on.
			e.segmentsDropped.Add(1)
			e.logger.Warn(fmt.Sprintf("segment %d dropped: %s", segIdx, perr))
		} else {
			if sweepStart.IsZero() {
				sweepStart = t
			}
			switch mode {
			case DeliverPerSegment:
				cb(e.segmentResult(e.sweepNumber(), segIdx, t, center, power))
			case DeliverPerSweep:
				if aerr := e.asm.Add(segIdx, power); aerr != nil {
					e.finish(fmt.Errorf("assembling segment %d: %w", segIdx, aerr), false)
					return
				}
			}
		}

		wrapped := e.plan.Advance()
		next := e.plan.Current()

		if !wrapped || !e.lastSweep() {
			if rerr := e.tr.SetCenterFreq(next); rerr != nil {
				e.finish(fmt.Errorf("%w: tuning %d Hz: %w", ErrTransport, next, rerr), false)
				return
			}
			if e.cfg.SettleDelay > 0 {
				validAfter = time.Now().Add(e.cfg.SettleDelay)
			}
		}

		if wrapped {
			if mode == DeliverPerSweep {
				ts := t
				if e.cfg.NormalizeTimestamps && !sweepStart.IsZero() {
					ts = sweepStart
				}
				if merged, ok := e.mergedResult(e.sweepNumber(), ts); ok {
					cb(merged)
				}
			}
			sweepStart = time.Time{}
			done := e.completeSweep(&lastWrap)
			e.logger.Debug("sweep completed", slog.Uint64("sweep", e.sweepNumber()-1))
			if done {
				e.finish(nil, true)
				return
			}
		} else {
			e.advanceProgress(next)
		}
	}
}

// sweepNumber reads the loop's sweep counter without racing Status.
func (e *Engine) sweepNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweep
}

// advanceProgress publishes the next segment position.
func (e *Engine) advanceProgress(centerHz uint64) {
	e.mu.Lock()
	e.segment = e.plan.Index()
	e.centerHz = centerHz
	e.mu.Unlock()
}

// completeSweep publishes wrap accounting and reports whether the sweep
// limit has been reached.
func (e *Engine) completeSweep(lastWrap *time.Time) bool {
	now := time.Now()

	e.mu.Lock()
	e.sweep++
	e.segment = 0
	e.centerHz = e.plan.Current()
	if !lastWrap.IsZero() {
		if dt := now.Sub(*lastWrap).Seconds(); dt > 0 {
			inst := 1 / dt
			if e.sweepsPerSec == 0 {
				e.sweepsPerSec = inst
			} else {
				e.sweepsPerSec = 0.8*e.sweepsPerSec + 0.2*inst
			}
		}
	}
	done := e.cfg.SweepCount > 0 && e.sweep >= e.cfg.SweepCount
	e.mu.Unlock()

	*lastWrap = now
	return done
}

// lastSweep reports whether the sweep now finishing is the final one, so
// the loop can skip the pointless retune.
func (e *Engine) lastSweep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.SweepCount > 0 && e.sweep+1 >= e.cfg.SweepCount
}

// segmentResult builds the delivery unit for one tuning step.
func (e *Engine) segmentResult(sweepNo uint64, segIdx int, t time.Time, centerHz uint64, power []float64) Result {
	bins := e.layout.Bins()
	samples := make([]Sample, len(bins))
	for i, b := range bins {
		samples[i] = Sample{
			FrequencyHz: e.layout.Frequency(centerHz, b),
			PowerDB:     power[b],
		}
	}

	return Result{
		Sweep:     sweepNo,
		Segment:   segIdx,
		Timestamp: t,
		StartHz:   samples[0].FrequencyHz,
		EndHz:     samples[len(samples)-1].FrequencyHz + e.layout.BinWidth(),
		Samples:   samples,
	}
}

// mergedResult drains the assembler into a whole-sweep delivery unit. A
// sweep whose every segment was dropped yields nothing.
func (e *Engine) mergedResult(sweepNo uint64, ts time.Time) (Result, bool) {
	samples := make([]Sample, 0, e.asm.Filled())
	e.asm.Flush(func(freqHz, powerDB float64) {
		samples = append(samples, Sample{FrequencyHz: freqHz, PowerDB: powerDB})
	})
	if len(samples) == 0 {
		return Result{}, false
	}

	return Result{
		Sweep:     sweepNo,
		Segment:   MergedSegment,
		Timestamp: ts,
		StartHz:   samples[0].FrequencyHz,
		EndHz:     samples[len(samples)-1].FrequencyHz + e.layout.BinWidth(),
		Samples:   samples,
	}, true
}

// finish tears the run down: gate the capture callback, stop RX, discard
// whatever the ring still holds, close the device, then publish the final
// state and resolve the error channel.
func (e *Engine) finish(ferr error, completed bool) {
	e.stopping.Store(true)

	e.mu.Lock()
	if e.state == StateRunning && !completed && ferr == nil {
		e.state = StateStopping
	}
	e.mu.Unlock()

	if err := e.tr.StopRX(); err != nil {
		e.logger.Warn(fmt.Sprintf("stopping rx: %s", err))
	}
	for {
		slot, err := e.rb.AcquireRead()
		if err != nil {
			break
		}
		e.rb.ReleaseRead(slot)
	}
	if err := e.tr.Close(); err != nil {
		e.logger.Warn(fmt.Sprintf("closing device: %s", err))
	}

	e.mu.Lock()
	switch {
	case ferr != nil:
		e.state = StateStopped
		e.err = ferr
	case completed && e.state != StateStopping:
		e.state = StateComplete
	default:
		e.state = StateStopped
	}
	final := e.state
	if ferr != nil {
		e.errc <- ferr
	}
	close(e.errc)
	e.mu.Unlock()

	if ferr != nil {
		e.logger.Error(ferr.Error())
	}
	e.logger.Info("sweep finished",
		slog.String("state", final.String()),
		slog.Uint64("sweeps", e.sweepNumber()),
		slog.Uint64("blocksDropped", e.blocksDropped.Load()),
		slog.Uint64("blocksDiscarded", e.blocksDiscarded.Load()),
		slog.Uint64("segmentsDropped", e.segmentsDropped.Load()),
	)
}
