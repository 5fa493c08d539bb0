package sweep

import "time"

// MergedSegment is the Segment value of a Result that covers a whole
// sweep rather than a single tuning step.
const MergedSegment = -1

// Sample is one power measurement at an absolute frequency.
type Sample struct {
	FrequencyHz float64
	PowerDB     float64
}

// Result is one delivery unit: the retained spectrum of a single segment,
// or of a whole sweep when Segment is MergedSegment. Samples are ordered
// by strictly increasing frequency. The receiver owns the Result; the
// engine never reuses its backing storage.
type Result struct {
	Sweep     uint64    // sweep sequence number, starting at 0
	Segment   int       // index within the sweep, or MergedSegment
	Timestamp time.Time // capture time of the contributing block(s)

	// Covered band in Hz. EndHz is exclusive: one bin width past the
	// last sample, so (StartHz+EndHz)/2 tracks the tuned center.
	StartHz float64
	EndHz   float64

	Samples []Sample
}

// CenterHz returns the middle of the covered band. For a segment result
// it matches the tuned center frequency to within half a bin.
func (r *Result) CenterHz() float64 { return (r.StartHz + r.EndHz) / 2 }

// DeliveryMode selects how Start hands results to the callback.
type DeliveryMode int

const (
	// DeliverPerSegment emits one Result per tuning step as soon as its
	// block is transformed.
	DeliverPerSegment DeliveryMode = iota

	// DeliverPerSweep accumulates segments and emits one merged,
	// deduplicated Result when the sweep wraps.
	DeliverPerSweep
)

func (m DeliveryMode) String() string {
	switch m {
	case DeliverPerSegment:
		return "per-segment"
	case DeliverPerSweep:
		return "per-sweep"
	default:
		return "unknown"
	}
}

// ResultCallback receives results synchronously from the processing loop
// and must return quickly; a slow callback stalls consumption and shows
// up as ring overruns.
type ResultCallback func(Result)
