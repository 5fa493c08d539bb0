package sweep

// State is the engine lifecycle phase.
type State int

const (
	// StateIdle is the initial state: no configuration armed.
	StateIdle State = iota

	// StateConfiguring holds a validated configuration, ready to start.
	StateConfiguring

	// StateRunning streams, transforms and delivers.
	StateRunning

	// StateStopping is the transient teardown phase entered by Stop.
	StateStopping

	// StateStopped is reached after an explicit Stop or a fatal error.
	StateStopped

	// StateComplete is reached when OneShot or SweepCount is satisfied.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of a run. Counters are cumulative
// since Start.
type Status struct {
	State State

	Sweep    uint64 // current sweep sequence number
	Segment  int    // current segment index within the sweep
	CenterHz uint64 // current tuned center, 0 before the first tune

	BlocksDropped   uint64 // ring overruns in the capture callback
	BlocksDiscarded uint64 // stale blocks: settling or mislabeled center
	SegmentsDropped uint64 // transform failures

	SweepsPerSec float64 // smoothed over recent sweeps, 0 until the first wrap

	Err error // fatal error that forced StateStopped, if any
}
