package stitch

import (
	"errors"
	"fmt"
)

// Assembler merges the retained bins of every segment in one sweep into a
// single frequency-ascending trace. Segments step by a quarter span while
// half a span is retained, so interior frequencies arrive twice per sweep;
// the assembler deduplicates by grid position, last write wins. Slots left
// unfilled (dropped segments, exclusion holes) are skipped on flush rather
// than emitted as gaps.
type Assembler struct {
	layout   *Layout
	segments int
	f0       float64
	power    []float64
	filled   []bool
	count    int
}

// NewAssembler sizes the merge grid for a plan of the given segment count
// starting at firstCenterHz. One grid slot per effective bin width between
// the lowest retained frequency of the first segment and the highest of
// the last.
func NewAssembler(l *Layout, firstCenterHz uint64, segments int) (*Assembler, error) {
	if segments < 1 {
		return nil, errors.New("stitch: assembler needs at least one segment")
	}
	quarter := l.size / 4
	span := (segments-1)*quarter + (l.bins[len(l.bins)-1] - l.bins[0]) + 1
	return &Assembler{
		layout:   l,
		segments: segments,
		f0:       l.Frequency(firstCenterHz, l.bins[0]),
		power:    make([]float64, span),
		filled:   make([]bool, span),
	}, nil
}

// Add scatters the retained bins of one segment's power buffer into the
// grid. power must be the full shifted-order buffer of the layout's
// transform size. Calling Add twice for overlapping grid positions keeps
// the later value.
func (a *Assembler) Add(segment int, power []float64) error {
	if segment < 0 || segment >= a.segments {
		return fmt.Errorf("stitch: segment %d outside plan of %d", segment, a.segments)
	}
	if len(power) < a.layout.size {
		return fmt.Errorf("stitch: power buffer holds %d bins, need %d", len(power), a.layout.size)
	}
	base := segment*(a.layout.size/4) - a.layout.bins[0]
	for _, b := range a.layout.bins {
		g := base + b
		if !a.filled[g] {
			a.filled[g] = true
			a.count++
		}
		a.power[g] = power[b]
	}
	return nil
}

// Filled returns the number of distinct grid slots written since the last
// flush.
func (a *Assembler) Filled() int { return a.count }

// Flush emits every filled slot in ascending frequency order and clears
// the grid for the next sweep. It returns the number of samples emitted.
func (a *Assembler) Flush(fn func(freqHz, powerDB float64)) int {
	n := a.count
	for g, ok := range a.filled {
		if !ok {
			continue
		}
		fn(a.f0+float64(g)*a.layout.binWidth, a.power[g])
		a.filled[g] = false
	}
	a.count = 0
	return n
}

// Reset discards any accumulated segments without emitting them.
func (a *Assembler) Reset() {
	if a.count == 0 {
		return
	}
	for g := range a.filled {
		a.filled[g] = false
	}
	a.count = 0
}
