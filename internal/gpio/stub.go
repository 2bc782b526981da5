//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// DefaultChip is the Raspberry Pi header GPIO controller.
const DefaultChip = "gpiochip0"

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pins Pins) (*RealOutput, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetLine is not implemented on non-Linux platforms.
func (r *RealOutput) SetLine(ch waveform.Channel, on bool) error {
	return errors.New("gpio: not supported")
}

// SetDuty is not implemented on non-Linux platforms.
func (r *RealOutput) SetDuty(ch waveform.Channel, pct float64) error {
	return errors.New("gpio: not supported")
}

// Duty always reports zero on non-Linux platforms.
func (r *RealOutput) Duty(ch waveform.Channel) float64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (r *RealOutput) Close() error {
	return nil
}
