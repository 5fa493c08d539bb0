// Package stitch maps retained transform bins onto absolute frequencies
// and assembles per-segment output into whole-sweep traces. Like the
// plan, it is pure arithmetic over (transform size, sample rate, segment
// index) and carries no hardware state.
package stitch

import (
	"errors"
	"fmt"
)

// RetentionPolicy names the quarter-span boundaries as eighths of the
// transform size. The defaults skip the central half of each segment
// (which straddles the tuned center and its artifact) and the extreme
// band edges, keeping the quarter starting at 1/8 below center and the
// quarter starting at 5/8 above it. The boundaries reflect observed
// artifact spread, not a physical law, so they are tunable.
type RetentionPolicy struct {
	LowerEighth int
	UpperEighth int
}

// DefaultRetention is the policy used when the zero value is supplied.
var DefaultRetention = RetentionPolicy{LowerEighth: 1, UpperEighth: 5}

// IsZero reports whether the policy was left unset.
func (p RetentionPolicy) IsZero() bool { return p.LowerEighth == 0 && p.UpperEighth == 0 }

// Layout is the per-configuration stitching geometry: the retained
// shifted bin indices (exclusion already applied) in increasing-frequency
// order, and the mapping from (center, bin) to absolute frequency. Built
// once per configuration and reused for every segment.
type Layout struct {
	size     int
	binWidth float64
	bins     []int
}

// NewLayout derives the retained bins for a transform size under a
// retention policy and an artifact exclusion width. Exclusion drops bins
// within width of the tuned center (shifted index size/2) and of the band
// edges (shifted index 0, wrapping); width 0 disables it.
func NewLayout(size int, sampleRateHz uint64, pol RetentionPolicy, exclusionWidth int) (*Layout, error) {
	if size < 4 || size%4 != 0 {
		return nil, errors.New("stitch: transform size must be divisible by 4")
	}
	if pol.IsZero() {
		pol = DefaultRetention
	}
	if exclusionWidth < 0 {
		return nil, errors.New("stitch: exclusion width must not be negative")
	}

	quarter := size / 4
	starts := [2]int{size * pol.LowerEighth / 8, size * pol.UpperEighth / 8}
	for _, s := range starts {
		if s < 0 || s+quarter > size {
			return nil, fmt.Errorf("stitch: retention quarter [%d, %d) outside transform of %d bins", s, s+quarter, size)
		}
	}
	if starts[1] < starts[0]+quarter {
		return nil, errors.New("stitch: retention quarters overlap")
	}

	l := Layout{
		size:     size,
		binWidth: float64(sampleRateHz) / float64(size),
		bins:     make([]int, 0, 2*quarter),
	}
	for _, s := range starts {
		for b := s; b < s+quarter; b++ {
			if l.excluded(b, exclusionWidth) {
				continue
			}
			l.bins = append(l.bins, b)
		}
	}
	if len(l.bins) == 0 {
		return nil, errors.New("stitch: exclusion leaves no retained bins")
	}
	return &l, nil
}

// excluded reports whether shifted bin b falls within width of the band
// edge (index 0, wrap-around) or of the tuned center (index size/2).
func (l *Layout) excluded(b, width int) bool {
	if width == 0 {
		return false
	}
	edge := b
	if l.size-b < edge {
		edge = l.size - b
	}
	center := b - l.size/2
	if center < 0 {
		center = -center
	}
	return edge < width || center < width
}

// Size returns the transform size the layout was built for.
func (l *Layout) Size() int { return l.size }

// BinWidth returns the effective per-bin resolution in Hz.
func (l *Layout) BinWidth() float64 { return l.binWidth }

// Bins returns the retained shifted bin indices in increasing-frequency
// order. Callers must not mutate the slice.
func (l *Layout) Bins() []int { return l.bins }

// Frequency maps a shifted bin of a segment tuned to centerHz onto its
// absolute frequency.
func (l *Layout) Frequency(centerHz uint64, bin int) float64 {
	return float64(centerHz) + (float64(bin)-float64(l.size)/2)*l.binWidth
}
