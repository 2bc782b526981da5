// Package gpio drives the LED output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Output drives channel lines. Implementations are owned by one session at
// a time and are not safe for concurrent use.
type Output interface {
	// SetLine drives the digital level of a channel.
	SetLine(ch waveform.Channel, on bool) error

	// SetDuty sets the analog duty of a channel in percent (0-100).
	SetDuty(ch waveform.Channel, pct float64) error

	// Close drives all lines low and releases resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinA = 13 // Green LED
	DefaultPinB = 27 // Red LED
)

// Pins maps each channel to a BCM line offset.
type Pins map[waveform.Channel]int

// DefaultPins returns the wiring of the lab board.
func DefaultPins() Pins {
	return Pins{
		waveform.ChannelA: DefaultPinA,
		waveform.ChannelB: DefaultPinB,
	}
}

// Off drives a channel fully off: line low and zero duty.
func Off(out Output, ch waveform.Channel) error {
	return multierr.Append(
		wrapErr(ch, "set line", out.SetLine(ch, false)),
		wrapErr(ch, "set duty", out.SetDuty(ch, 0)),
	)
}

// On drives a channel fully on: line high and full duty.
func On(out Output, ch waveform.Channel) error {
	return multierr.Append(
		wrapErr(ch, "set line", out.SetLine(ch, true)),
		wrapErr(ch, "set duty", out.SetDuty(ch, 100)),
	)
}

// AllOff forces every listed channel off, attempting all of them even if
// some fail.
func AllOff(out Output, channels []waveform.Channel) error {
	var err error
	for _, ch := range channels {
		err = multierr.Append(err, Off(out, ch))
	}
	return err
}

// AllOn forces every listed channel on.
func AllOn(out Output, channels []waveform.Channel) error {
	var err error
	for _, ch := range channels {
		err = multierr.Append(err, On(out, ch))
	}
	return err
}

func wrapErr(ch waveform.Channel, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s channel %s: %w", op, ch, err)
}
