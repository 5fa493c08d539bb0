// Package dsp turns one segment's raw sample block into a power spectrum.
package dsp

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// PowerFloorDB clamps the reported power so exact-zero bins stay finite.
const PowerFloorDB = -120.0

// ErrShortBlock is returned when a block holds fewer I/Q pairs than the
// transform size. The segment is dropped whole, never partially emitted.
var ErrShortBlock = errors.New("dsp: block shorter than transform size")

// Transform holds everything derived from one configuration: the FFT
// plan, precomputed Hann window values and reusable scratch buffers. It
// is built once per configuration, rebuilt wholesale on reconfiguration,
// and owned by the processing loop; it must not be shared.
type Transform struct {
	size int
	half int

	fft *fourier.CmplxFFT
	win window.Values

	in    []complex128
	out   []complex128
	power []float64
}

// New builds a transform for the given bin count. Supported sizes are
// even; the plan layer only produces sizes divisible by 4.
func New(size int) (*Transform, error) {
	if size < 4 || size%2 != 0 {
		return nil, errors.New("dsp: transform size must be even and at least 4")
	}
	return &Transform{
		size:  size,
		half:  size / 2,
		fft:   fourier.NewCmplxFFT(size),
		win:   window.NewValues(window.Hann, size),
		in:    make([]complex128, size),
		out:   make([]complex128, size),
		power: make([]float64, size),
	}, nil
}

// Size returns the transform bin count.
func (t *Transform) Size() int { return t.size }

// Power computes the windowed power spectrum of one raw block of
// interleaved signed 8-bit I/Q samples. The result is in shifted order:
// bin b maps to center + (b - size/2) * binWidth, so the tuned center
// sits at size/2 and the band edges at 0 and size-1. Power per bin is
// 20*log10(|X|/size), floored at PowerFloorDB.
//
// The returned slice is reused by the next call.
func (t *Transform) Power(block []byte) ([]float64, error) {
	if len(block) < 2*t.size {
		return nil, ErrShortBlock
	}

	for i := 0; i < t.size; i++ {
		t.in[i] = complex(
			float64(int8(block[2*i]))/128,
			float64(int8(block[2*i+1]))/128,
		)
	}
	t.win.TransformComplex(t.in)
	t.fft.Coefficients(t.out, t.in)

	scale := 1 / float64(t.size)
	for b := 0; b < t.size; b++ {
		mag := cmplx.Abs(t.out[(b+t.half)%t.size]) * scale
		db := PowerFloorDB
		if mag > 0 {
			if db = 20 * math.Log10(mag); db < PowerFloorDB {
				db = PowerFloorDB
			}
		}
		t.power[b] = db
	}
	return t.power, nil
}
