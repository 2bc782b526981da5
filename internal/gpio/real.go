//go:build linux

package gpio

import (
	"fmt"
	"sort"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// DefaultChip is the Raspberry Pi header GPIO controller.
const DefaultChip = "gpiochip0"

const consumer = "pwm-recorder"

// RealOutput drives LED lines on actual hardware using the Linux GPIO
// character device.
//
// A chardev line has no PWM register, so the duty is kept for reporting
// and a zero duty drives the line low; the level itself follows SetLine.
type RealOutput struct {
	chip  *gpiocdev.Chip
	lines map[waveform.Channel]*gpiocdev.Line
	duty  map[waveform.Channel]float64
}

// NewRealOutput requests every pin as an output, initially low.
func NewRealOutput(chipName string, pins Pins) (*RealOutput, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealOutput{
		chip:  chip,
		lines: make(map[waveform.Channel]*gpiocdev.Line),
		duty:  make(map[waveform.Channel]float64),
	}

	channels := make([]waveform.Channel, 0, len(pins))
	for ch := range pins {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	for _, ch := range channels {
		line, err := chip.RequestLine(pins[ch], gpiocdev.AsOutput(0))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request channel %s pin %d: %w", ch, pins[ch], err)
		}
		r.lines[ch] = line
	}
	return r, nil
}

// SetLine drives the channel's line.
func (r *RealOutput) SetLine(ch waveform.Channel, on bool) error {
	line, ok := r.lines[ch]
	if !ok {
		return fmt.Errorf("channel %s: no line requested", ch)
	}
	v := 0
	if on {
		v = 1
	}
	return line.SetValue(v)
}

// SetDuty records the duty; zero also drives the line low.
func (r *RealOutput) SetDuty(ch waveform.Channel, pct float64) error {
	if _, ok := r.lines[ch]; !ok {
		return fmt.Errorf("channel %s: no line requested", ch)
	}
	r.duty[ch] = pct
	if pct == 0 {
		return r.SetLine(ch, false)
	}
	return nil
}

// Duty returns the last duty written for ch.
func (r *RealOutput) Duty(ch waveform.Channel) float64 {
	return r.duty[ch]
}

// Close releases GPIO resources.
// Drives lines low, then reconfigures them to input with pull-down (matching
// Pi boot defaults) so nothing is left energized after exit.
func (r *RealOutput) Close() error {
	var err error
	for ch, line := range r.lines {
		if e := line.SetValue(0); e != nil {
			err = multierr.Append(err, fmt.Errorf("drive channel %s low: %w", ch, e))
		}
		if e := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); e != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure channel %s: %w", ch, e))
		}
		if e := line.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close channel %s: %w", ch, e))
		}
	}
	r.lines = map[waveform.Channel]*gpiocdev.Line{}
	if r.chip != nil {
		if e := r.chip.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", e))
		}
		r.chip = nil
	}
	return err
}
