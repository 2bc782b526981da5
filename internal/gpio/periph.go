package gpio

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// DefaultPWMFrequency matches a soft PWM with a range of 100 steps of 100µs.
const DefaultPWMFrequency = 100 * physic.Hertz

// PinOutput drives channels through periph.io pins, using the pin's PWM for
// intermediate duties and a plain level for 0% and 100%.
type PinOutput struct {
	pins map[waveform.Channel]pgpio.PinOut
	freq physic.Frequency
}

// NewPinOutput wraps already-resolved periph pins.
func NewPinOutput(pins map[waveform.Channel]pgpio.PinOut, freq physic.Frequency) *PinOutput {
	if freq <= 0 {
		freq = DefaultPWMFrequency
	}
	return &PinOutput{pins: pins, freq: freq}
}

// SetLine drives the channel's pin level.
func (p *PinOutput) SetLine(ch waveform.Channel, on bool) error {
	pin, ok := p.pins[ch]
	if !ok {
		return fmt.Errorf("channel %s: no pin", ch)
	}
	return pin.Out(pgpio.Level(on))
}

// SetDuty sets the pin's PWM duty.
func (p *PinOutput) SetDuty(ch waveform.Channel, pct float64) error {
	pin, ok := p.pins[ch]
	if !ok {
		return fmt.Errorf("channel %s: no pin", ch)
	}
	switch {
	case pct <= 0:
		return pin.Out(pgpio.Low)
	case pct >= 100:
		return pin.Out(pgpio.High)
	}
	return pin.PWM(ToDuty(pct), p.freq)
}

// OpenPeriph initialises the periph host drivers and resolves each
// channel's BCM line by name.
func OpenPeriph(pins Pins, freq physic.Frequency) (*PinOutput, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	resolved := make(map[waveform.Channel]pgpio.PinOut, len(pins))
	for ch, line := range pins {
		name := fmt.Sprintf("GPIO%d", line)
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("channel %s: no pin %s", ch, name)
		}
		if err := pin.Out(pgpio.Low); err != nil {
			return nil, fmt.Errorf("channel %s: configure %s: %w", ch, name, err)
		}
		resolved[ch] = pin
	}
	return NewPinOutput(resolved, freq), nil
}

// Close drives every pin low.
func (p *PinOutput) Close() error {
	var err error
	for ch, pin := range p.pins {
		if e := pin.Out(pgpio.Low); e != nil {
			err = multierr.Append(err, fmt.Errorf("drive channel %s low: %w", ch, e))
		}
	}
	return err
}

// ToDuty converts a percentage to a periph duty.
func ToDuty(pct float64) pgpio.Duty {
	pct = math.Max(0, math.Min(100, pct))
	return pgpio.Duty(math.Round(pct / 100 * float64(pgpio.DutyMax)))
}
