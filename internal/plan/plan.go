// Package plan computes the tuning steps that cover a requested frequency
// range and the transform geometry they share. Everything here is pure
// arithmetic on (sample rate, bin width, segment index) so it can be
// tested without hardware.
package plan

import (
	"errors"
	"fmt"
	"math"
)

// Transform sizes the hardware pipeline supports. Sizes are bumped to
// satisfy (size+4) % 8 == 0, so every supported size is divisible by 4.
const (
	MinTransformSize = 4
	MaxTransformSize = 8180
)

var errRange = errors.New("plan: frequency max must be greater than min")

// Span returns the tuning step between segment centers: a quarter of the
// sample rate. Each segment retains two quarter-spans of usable bandwidth
// around its excluded center, so stepping by a quarter leaves no gap.
func Span(sampleRateHz uint64) uint64 { return sampleRateHz / 4 }

// TransformSize derives the transform bin count for a sample rate and a
// requested bin width: the rounded quotient, bumped upward until
// (size+4) % 8 == 0. An out-of-range result is a configuration error.
func TransformSize(sampleRateHz uint64, binWidthHz float64) (int, error) {
	if binWidthHz <= 0 {
		return 0, errors.New("plan: bin width must be positive")
	}

	size := int(math.Round(float64(sampleRateHz) / binWidthHz))
	for (size+4)%8 != 0 {
		size++
	}

	if size < MinTransformSize || size > MaxTransformSize {
		return 0, fmt.Errorf("plan: bin width %.0f Hz yields unsupported transform size %d (supported %d-%d)",
			binWidthHz, size, MinTransformSize, MaxTransformSize)
	}
	return size, nil
}

// EffectiveBinWidth is the resolution actually delivered after the
// transform size is rounded to a supported value.
func EffectiveBinWidth(sampleRateHz uint64, size int) float64 {
	return float64(sampleRateHz) / float64(size)
}

// Plan is the ordered list of segment center frequencies for one sweep,
// with a cursor. It is owned by the processing loop and never shared.
type Plan struct {
	first uint64
	span  uint64
	n     int
	idx   int
}

// New snaps [freqMinHz, freqMaxHz] outward to span multiples and lays out
// one center per span across the widened range, guaranteeing the request
// is covered. freqMaxHz must exceed freqMinHz.
func New(freqMinHz, freqMaxHz, sampleRateHz uint64) (*Plan, error) {
	if freqMaxHz <= freqMinHz {
		return nil, errRange
	}
	span := Span(sampleRateHz)
	if span == 0 {
		return nil, errors.New("plan: sample rate too low for a tuning span")
	}

	first := freqMinHz / span * span
	last := (freqMaxHz + span - 1) / span * span

	return &Plan{
		first: first,
		span:  span,
		n:     int((last - first) / span),
	}, nil
}

// Len returns the number of segments per sweep.
func (p *Plan) Len() int { return p.n }

// Index returns the cursor's sweep-relative segment index.
func (p *Plan) Index() int { return p.idx }

// Current returns the center frequency the cursor points at. Centers
// advance monotonically by one span per segment, wrapping only when
// Advance exhausts the plan.
func (p *Plan) Current() uint64 { return p.first + uint64(p.idx)*p.span }

// Advance moves the cursor to the next segment. It reports true when the
// plan wrapped back to the first segment, which marks a completed sweep.
func (p *Plan) Advance() (wrapped bool) {
	p.idx++
	if p.idx >= p.n {
		p.idx = 0
		return true
	}
	return false
}

// Reset rewinds the cursor to the first segment.
func (p *Plan) Reset() { p.idx = 0 }

// Start returns the snapped lower bound of the covered range.
func (p *Plan) Start() uint64 { return p.first }

// End returns the snapped upper bound of the covered range.
func (p *Plan) End() uint64 { return p.first + uint64(p.n)*p.span }

// Step returns the tuning step used by this plan.
func (p *Plan) Step() uint64 { return p.span }
