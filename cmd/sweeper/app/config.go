package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sdrkit/sweep"
	"github.com/sdrkit/sweep/transport/sim"
)

const (
	DeliverySegment = "segment"
	DeliverySweep   = "sweep"
)

const (
	defaultStatsIntervalSec = 10.0
	defaultExclusionWidth   = 1
)

// Config is the sweeper configuration file.
type Config struct {
	Settings Settings      `yaml:"settings"`
	Device   DeviceConfig  `yaml:"device"`
	Sweep    SweepSettings `yaml:"sweep"`
	Storage  StorageConfig `yaml:"storage"`
}

// Settings represents global application settings. Intervals are in
// seconds; yaml cannot express time.Duration directly.
type Settings struct {
	LogLevel         string  `yaml:"logLevel"`
	StatsIntervalSec float64 `yaml:"statsInterval"`
}

// StatsInterval returns the progress logging period.
func (s *Settings) StatsInterval() time.Duration {
	return time.Duration(s.StatsIntervalSec * float64(time.Second))
}

// Level parses the configured log level, defaulting to info.
func (s *Settings) Level() (slog.Level, error) {
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level '%s': %w", s.LogLevel, err)
	}
	return level, nil
}

// DeviceConfig describes the simulated device to sweep with. A negative
// block interval disables pacing; zero derives the real-time rate.
type DeviceConfig struct {
	Serial          string          `yaml:"serial"`
	Seed            uint64          `yaml:"seed"`
	NoiseFloorDB    float64         `yaml:"noiseFloorDB"`
	Carriers        []CarrierConfig `yaml:"carriers"`
	BlockIntervalMs float64         `yaml:"blockIntervalMs"`
}

// CarrierConfig is one injected tone at an absolute frequency.
type CarrierConfig struct {
	FreqHz  uint64  `yaml:"freqHz"`
	PowerDB float64 `yaml:"powerDB"`
}

// SweepSettings mirrors sweep.SweepConfig plus the delivery mode.
type SweepSettings struct {
	FreqMinHz           uint64        `yaml:"freqMinHz"`
	FreqMaxHz           uint64        `yaml:"freqMaxHz"`
	BinWidthHz          float64       `yaml:"binWidthHz"`
	SampleRateHz        uint64        `yaml:"sampleRateHz"`
	LNAGainDB           int           `yaml:"lnaGainDB"`
	VGAGainDB           int           `yaml:"vgaGainDB"`
	AmpEnabled          bool          `yaml:"ampEnabled"`
	OneShot             bool          `yaml:"oneShot"`
	SweepCount          uint64        `yaml:"sweepCount"`
	Delivery            string        `yaml:"delivery"`
	NormalizeTimestamps bool    `yaml:"normalizeTimestamps"`
	ExclusionWidthBins  *int    `yaml:"exclusionWidthBins"`
	SettleDelayMs       float64 `yaml:"settleDelayMs"`
}

// StorageConfig represents recording settings. An empty data directory
// disables recording entirely.
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// LoadConfig reads, defaults and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	config.applyDefaults()
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.StatsIntervalSec == 0 {
		c.Settings.StatsIntervalSec = defaultStatsIntervalSec
	}
	if c.Sweep.Delivery == "" {
		c.Sweep.Delivery = DeliverySegment
	}
	if c.Sweep.ExclusionWidthBins == nil {
		w := defaultExclusionWidth
		c.Sweep.ExclusionWidthBins = &w
	}
}

// Validate checks application-level settings. Sweep parameters are
// validated by the engine itself through SweepConfig.
func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if c.Sweep.Delivery != DeliverySegment && c.Sweep.Delivery != DeliverySweep {
		return fmt.Errorf("invalid delivery mode '%s', must be '%s' or '%s'",
			c.Sweep.Delivery, DeliverySegment, DeliverySweep)
	}
	sc := c.SweepConfig()
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid sweep settings: %w", err)
	}
	return nil
}

// SweepConfig builds the engine configuration.
func (c *Config) SweepConfig() sweep.SweepConfig {
	exclusion := defaultExclusionWidth
	if c.Sweep.ExclusionWidthBins != nil {
		exclusion = *c.Sweep.ExclusionWidthBins
	}

	return sweep.SweepConfig{
		FreqMinHz:           c.Sweep.FreqMinHz,
		FreqMaxHz:           c.Sweep.FreqMaxHz,
		BinWidthHz:          c.Sweep.BinWidthHz,
		SampleRateHz:        c.Sweep.SampleRateHz,
		LNAGainDB:           c.Sweep.LNAGainDB,
		VGAGainDB:           c.Sweep.VGAGainDB,
		AmpEnabled:          c.Sweep.AmpEnabled,
		OneShot:             c.Sweep.OneShot,
		SweepCount:          c.Sweep.SweepCount,
		NormalizeTimestamps: c.Sweep.NormalizeTimestamps,
		ExclusionWidthBins:  exclusion,
		SettleDelay:         time.Duration(c.Sweep.SettleDelayMs * float64(time.Millisecond)),
	}
}

// DeliveryMode returns the configured engine delivery mode.
func (c *Config) DeliveryMode() sweep.DeliveryMode {
	if c.Sweep.Delivery == DeliverySweep {
		return sweep.DeliverPerSweep
	}
	return sweep.DeliverPerSegment
}

// SimConfig builds the simulated device configuration.
func (c *Config) SimConfig() sim.Config {
	carriers := make([]sim.Carrier, len(c.Device.Carriers))
	for i, carrier := range c.Device.Carriers {
		carriers[i] = sim.Carrier{FreqHz: carrier.FreqHz, PowerDB: carrier.PowerDB}
	}

	interval := time.Duration(c.Device.BlockIntervalMs * float64(time.Millisecond))
	if c.Device.BlockIntervalMs < 0 {
		interval = -1
	}

	return sim.Config{
		Serial:        c.Device.Serial,
		Seed:          c.Device.Seed,
		NoiseFloorDB:  c.Device.NoiseFloorDB,
		Carriers:      carriers,
		BlockInterval: interval,
	}
}
