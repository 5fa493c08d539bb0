package sweep

import (
	"time"

	"github.com/sdrkit/sweep/internal/plan"
	"github.com/sdrkit/sweep/internal/stitch"
)

// Hardware and transform bounds. Frequency and gain limits follow the
// HackRF front end; bin width limits are those of the transform stage.
const (
	DefaultSampleRateHz uint64 = 20_000_000
	MinSampleRateHz     uint64 = 2_000_000
	MaxSampleRateHz     uint64 = 20_000_000

	MaxFrequencyHz uint64 = 7_250_000_000

	MinBinWidthHz = 245_000.0
	MaxBinWidthHz = 5_000_000.0

	MaxLNAGainDB  = 40
	LNAGainStepDB = 8
	MaxVGAGainDB  = 62
	VGAGainStepDB = 2

	MaxExclusionWidthBins = 10
)

// RetentionPolicy positions the two retained quarter-spans of each
// segment, expressed in eighths of the transform size. The zero value
// selects DefaultRetention.
type RetentionPolicy struct {
	LowerEighth int
	UpperEighth int
}

// DefaultRetention keeps the quarter starting one eighth below the tuned
// center and the quarter starting five eighths up, skipping the artifact
// zones around the center and the band edges.
var DefaultRetention = RetentionPolicy{LowerEighth: 1, UpperEighth: 5}

// SweepConfig describes one sweep run. It is validated and frozen by
// Configure; changing it afterwards has no effect on a running engine.
type SweepConfig struct {
	// Requested frequency range in Hz. The effective range snaps outward
	// to whole tuning spans (sample rate / 4).
	FreqMinHz uint64
	FreqMaxHz uint64

	// BinWidthHz is the requested resolution. The effective value is
	// sampleRate/size for the derived transform size and is reported in
	// results.
	BinWidthHz float64

	// SampleRateHz is fixed for the run. 0 selects DefaultSampleRateHz.
	SampleRateHz uint64

	LNAGainDB  int  // 0-40 dB in 8 dB steps
	VGAGainDB  int  // 0-62 dB in 2 dB steps
	AmpEnabled bool // RF front-end amplifier

	// OneShot completes the run after the first full sweep. SweepCount
	// limits the number of sweeps, 0 meaning unbounded; OneShot takes
	// precedence when both are set.
	OneShot    bool
	SweepCount uint64

	// NormalizeTimestamps stamps a merged per-sweep result with the
	// sweep-start capture time instead of the last segment's.
	NormalizeTimestamps bool

	// ExclusionWidthBins drops bins within this distance of the tuned
	// center and of the band edges, where converter artifacts
	// concentrate. 0 disables exclusion.
	ExclusionWidthBins int

	// SettleDelay discards blocks captured within this window after a
	// retune. 0 disables settling.
	SettleDelay time.Duration

	// Retention overrides the retained quarter positions.
	Retention RetentionPolicy
}

// sanitized returns a copy with defaults applied.
func (c *SweepConfig) sanitized() SweepConfig {
	s := *c
	if s.SampleRateHz == 0 {
		s.SampleRateHz = DefaultSampleRateHz
	}
	if s.Retention == (RetentionPolicy{}) {
		s.Retention = DefaultRetention
	}
	if s.OneShot {
		s.SweepCount = 1
	}
	return s
}

// Validate checks every field against the hardware and transform bounds.
// Violations are reported as a *ConfigError wrapping ErrInvalidConfig.
func (c *SweepConfig) Validate() error {
	s := c.sanitized()

	if s.SampleRateHz < MinSampleRateHz || s.SampleRateHz > MaxSampleRateHz {
		return configErrorf("SampleRateHz", "sample rate must be between %d and %d Hz: %d given",
			MinSampleRateHz, MaxSampleRateHz, s.SampleRateHz)
	}

	// Frequency range validation
	if s.FreqMaxHz > MaxFrequencyHz {
		return configErrorf("FreqMaxHz", "frequency must be at most %d Hz: %d given", MaxFrequencyHz, s.FreqMaxHz)
	}
	if s.FreqMinHz >= s.FreqMaxHz {
		return configErrorf("FreqMinHz", "frequency max must be greater than frequency min")
	}

	// Bin width validation, including the derived transform size
	if s.BinWidthHz < MinBinWidthHz || s.BinWidthHz > MaxBinWidthHz {
		return configErrorf("BinWidthHz", "bin width must be between %.0f and %.0f Hz: %.0f given",
			MinBinWidthHz, MaxBinWidthHz, s.BinWidthHz)
	}
	size, err := plan.TransformSize(s.SampleRateHz, s.BinWidthHz)
	if err != nil {
		return configErrorf("BinWidthHz", "no supported transform size: %v", err)
	}

	// LNA gain validation (0-40 dB in 8 dB steps)
	if s.LNAGainDB < 0 || s.LNAGainDB > MaxLNAGainDB {
		return configErrorf("LNAGainDB", "LNA gain must be between 0 and %d dB: %d given", MaxLNAGainDB, s.LNAGainDB)
	}
	if s.LNAGainDB%LNAGainStepDB != 0 {
		return configErrorf("LNAGainDB", "LNA gain must be a multiple of %d dB", LNAGainStepDB)
	}

	// VGA gain validation (0-62 dB in 2 dB steps)
	if s.VGAGainDB < 0 || s.VGAGainDB > MaxVGAGainDB {
		return configErrorf("VGAGainDB", "VGA gain must be between 0 and %d dB: %d given", MaxVGAGainDB, s.VGAGainDB)
	}
	if s.VGAGainDB%VGAGainStepDB != 0 {
		return configErrorf("VGAGainDB", "VGA gain must be a multiple of %d dB", VGAGainStepDB)
	}

	if s.ExclusionWidthBins < 0 || s.ExclusionWidthBins > MaxExclusionWidthBins {
		return configErrorf("ExclusionWidthBins", "exclusion width must be between 0 and %d bins: %d given",
			MaxExclusionWidthBins, s.ExclusionWidthBins)
	}

	if s.SettleDelay < 0 {
		return configErrorf("SettleDelay", "settle delay cannot be negative: %s given", s.SettleDelay)
	}

	if _, err := stitch.NewLayout(size, s.SampleRateHz, stitch.RetentionPolicy(s.Retention), s.ExclusionWidthBins); err != nil {
		return configErrorf("Retention", "%v", err)
	}

	return nil
}
