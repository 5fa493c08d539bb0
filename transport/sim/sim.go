// Package sim implements transport.Transport in software. It synthesizes
// int8 I/Q blocks from a configurable noise floor plus a set of carriers
// at absolute frequencies, honouring whatever center the engine tunes, so
// a full sweep pipeline can run deterministically with no hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrkit/sweep/transport"
)

const (
	defaultSerial     = "sim-0001"
	defaultNoiseFloor = -80.0
)

// ErrCaptureFault is the asynchronous error reported when fault injection
// via Config.FailAfterBlocks trips.
var ErrCaptureFault = errors.New("sim: injected capture fault")

// Carrier is a continuous tone at an absolute frequency. PowerDB is the
// power the transform stage should report for it, referenced to full
// scale; keep it at or below -10 dB to stay clear of int8 clipping.
type Carrier struct {
	FreqHz  uint64
	PowerDB float64
}

// Config describes the simulated device. The zero value is usable: serial
// "sim-0001", a -80 dB noise floor, no carriers, real-time pacing.
type Config struct {
	Serial string
	Seed   uint64 // PRNG seed; 0 means 1

	NoiseFloorDB float64 // per-sample RMS, dB full scale; 0 means -80
	Carriers     []Carrier

	// BlockInterval paces block delivery. 0 derives the real-time rate
	// from the sample rate; negative disables pacing entirely.
	BlockInterval time.Duration

	// Fault injection.
	FailOpen        bool // Open reports ErrDeviceNotFound
	FailAfterBlocks int  // when > 0, streaming dies with ErrCaptureFault after this many blocks
}

// Device is a simulated SDR. Create with New; the zero value is not
// usable.
type Device struct {
	cfg   Config
	sigma float64 // noise RMS in int8 counts

	open      atomic.Bool
	streaming atomic.Bool

	centerHz   atomic.Uint64
	sampleRate atomic.Uint64

	mu   sync.Mutex // guards start/stop transitions
	stop chan struct{}
	done chan struct{}

	lnaGain int
	vgaGain int
	amp     bool
}

var _ transport.Transport = (*Device)(nil)

// New builds a device from cfg. The config is copied; later mutation of
// cfg or its Carriers slice has no effect.
func New(cfg Config) *Device {
	if cfg.Serial == "" {
		cfg.Serial = defaultSerial
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if cfg.NoiseFloorDB == 0 {
		cfg.NoiseFloorDB = defaultNoiseFloor
	}
	cfg.Carriers = append([]Carrier(nil), cfg.Carriers...)

	return &Device{
		cfg:   cfg,
		sigma: math.Pow(10, cfg.NoiseFloorDB/20) * 128,
	}
}

// Serial returns the configured device serial.
func (d *Device) Serial() string { return d.cfg.Serial }

func (d *Device) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.cfg.FailOpen {
		return fmt.Errorf("%w: serial %s", transport.ErrDeviceNotFound, d.cfg.Serial)
	}
	if !d.open.CompareAndSwap(false, true) {
		return errors.New("sim: device already open")
	}
	return nil
}

func (d *Device) Close() error {
	if !d.open.Load() {
		return nil
	}
	if err := d.StopRX(); err != nil {
		return err
	}
	d.open.Store(false)
	return nil
}

// SetCenterFreq retunes the device. Unlike the other setters it is legal
// while streaming; blocks synthesized after it returns use the new center.
func (d *Device) SetCenterFreq(hz uint64) error {
	if !d.open.Load() {
		return transport.ErrNotOpen
	}
	d.centerHz.Store(hz)
	return nil
}

func (d *Device) SetSampleRate(hz uint64) error {
	if !d.open.Load() {
		return transport.ErrNotOpen
	}
	if d.streaming.Load() {
		return transport.ErrStreaming
	}
	if hz == 0 {
		return errors.New("sim: sample rate must not be zero")
	}
	d.sampleRate.Store(hz)
	return nil
}

func (d *Device) SetLNAGain(db int) error {
	return d.setGain(&d.lnaGain, db)
}

func (d *Device) SetVGAGain(db int) error {
	return d.setGain(&d.vgaGain, db)
}

func (d *Device) setGain(field *int, db int) error {
	if !d.open.Load() {
		return transport.ErrNotOpen
	}
	if d.streaming.Load() {
		return transport.ErrStreaming
	}
	d.mu.Lock()
	*field = db
	d.mu.Unlock()
	return nil
}

func (d *Device) SetAmpEnable(on bool) error {
	if !d.open.Load() {
		return transport.ErrNotOpen
	}
	if d.streaming.Load() {
		return transport.ErrStreaming
	}
	d.mu.Lock()
	d.amp = on
	d.mu.Unlock()
	return nil
}

func (d *Device) StartRX(cb transport.RXCallback) (<-chan error, error) {
	if cb == nil {
		return nil, errors.New("sim: nil capture callback")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open.Load() {
		return nil, transport.ErrNotOpen
	}
	if d.stop != nil {
		return nil, transport.ErrStreaming
	}
	if d.sampleRate.Load() == 0 {
		return nil, errors.New("sim: sample rate not set")
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	fatal := make(chan error, 1)
	d.streaming.Store(true)

	go d.run(cb, d.stop, d.done, fatal)

	return fatal, nil
}

// StopRX halts streaming and waits for the generator goroutine to exit.
// It is a no-op when streaming never started or has already ended.
func (d *Device) StopRX() error {
	if !d.open.Load() {
		return transport.ErrNotOpen
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop == nil {
		return nil
	}
	close(d.stop)
	<-d.done
	d.stop = nil
	d.done = nil
	return nil
}

// run is the generator goroutine: synthesize a block under the current
// tuning, hand it to the callback, pace, repeat until stopped or faulted.
func (d *Device) run(cb transport.RXCallback, stop, done chan struct{}, fatal chan error) {
	defer func() {
		d.streaming.Store(false)
		close(fatal)
		close(done)
	}()

	src := rand.New(rand.NewPCG(d.cfg.Seed, d.cfg.Seed^0x9e3779b97f4a7c15))
	block := make([]byte, transport.BlockSize)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	var sampleIdx uint64
	for blocks := 0; ; blocks++ {
		select {
		case <-stop:
			return
		default:
		}

		if d.cfg.FailAfterBlocks > 0 && blocks >= d.cfg.FailAfterBlocks {
			fatal <- ErrCaptureFault
			return
		}

		center := d.centerHz.Load()
		rate := d.sampleRate.Load()
		d.fill(block, center, rate, sampleIdx, src)
		sampleIdx += uint64(len(block) / 2)

		if cb(block, center) != nil {
			return
		}

		interval := d.cfg.BlockInterval
		if interval == 0 {
			interval = time.Duration(float64(len(block)/2) / float64(rate) * float64(time.Second))
		}
		if interval < 0 {
			continue
		}
		timer.Reset(interval)
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

// tone is a carrier translated to baseband for the current tuning.
type tone struct {
	step float64 // phase increment per sample, radians
	amp  float64 // peak amplitude in int8 counts
}

// fill synthesizes one block of interleaved int8 I/Q at the given tuning.
// Carriers outside the tuned bandwidth are silent; noise phase continues
// across blocks through the shared source, carriers through sampleIdx.
func (d *Device) fill(block []byte, centerHz, rateHz uint64, sampleIdx uint64, src *rand.Rand) {
	tones := make([]tone, 0, len(d.cfg.Carriers))
	for _, c := range d.cfg.Carriers {
		cycles := (float64(c.FreqHz) - float64(centerHz)) / float64(rateHz)
		if cycles <= -0.5 || cycles >= 0.5 {
			continue
		}
		tones = append(tones, tone{
			step: 2 * math.Pi * cycles,
			// The Hann window's coherent gain halves the measured peak.
			amp: 2 * math.Pow(10, c.PowerDB/20) * 128,
		})
	}

	n := len(block) / 2
	for i := 0; i < n; i++ {
		re := src.NormFloat64() * d.sigma
		im := src.NormFloat64() * d.sigma
		for _, t := range tones {
			ph := t.step * float64(sampleIdx+uint64(i))
			s, c := math.Sincos(ph)
			re += t.amp * c
			im += t.amp * s
		}
		block[2*i] = quantize(re)
		block[2*i+1] = quantize(im)
	}
}

// quantize rounds to the nearest int8 count, clipping at full scale the
// way a real converter does.
func quantize(v float64) byte {
	r := math.Round(v)
	if r > 127 {
		r = 127
	} else if r < -128 {
		r = -128
	}
	return byte(int8(r))
}
