package sweep

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("sweep: invalid configuration")

	// ErrInvalidState is returned when an operation is not legal in the
	// engine's current state, e.g. Configure while Running.
	ErrInvalidState = errors.New("sweep: operation not valid in current state")

	// ErrStart wraps failures while arming the device: open, rate, gains,
	// first tune, RX start.
	ErrStart = errors.New("sweep: start failed")

	// ErrTransport wraps fatal device failures reported mid-sweep.
	ErrTransport = errors.New("sweep: transport failure")
)

// ConfigError reports the SweepConfig field that failed validation. It
// unwraps to ErrInvalidConfig.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
