package gpio

import (
	"fmt"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Write is one recorded call on a FakeOutput.
type Write struct {
	Channel waveform.Channel
	Line    bool    // set by SetLine
	Duty    float64 // set by SetDuty
	IsDuty  bool
}

// FakeOutput is a test double that records every write.
type FakeOutput struct {
	// Writes contains every call in order.
	Writes []Write

	// Lines and Duties hold the last value written per channel.
	Lines  map[waveform.Channel]bool
	Duties map[waveform.Channel]float64

	// Closed tracks if Close was called
	Closed bool

	// FailAfter, if > 0, makes every write after that many succeed fail
	// with WriteError.
	FailAfter  int
	WriteError error
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{
		Lines:  make(map[waveform.Channel]bool),
		Duties: make(map[waveform.Channel]float64),
	}
}

// SetLine records the line level.
func (f *FakeOutput) SetLine(ch waveform.Channel, on bool) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.Writes = append(f.Writes, Write{Channel: ch, Line: on})
	f.Lines[ch] = on
	return nil
}

// SetDuty records the duty.
func (f *FakeOutput) SetDuty(ch waveform.Channel, pct float64) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.Writes = append(f.Writes, Write{Channel: ch, Duty: pct, IsDuty: true})
	f.Duties[ch] = pct
	return nil
}

func (f *FakeOutput) fail() error {
	if f.FailAfter <= 0 {
		return nil
	}
	if len(f.Writes) < f.FailAfter {
		return nil
	}
	if f.WriteError != nil {
		return f.WriteError
	}
	return fmt.Errorf("fake write %d failed", len(f.Writes))
}

// Energized reports whether any channel is left with a high line or a
// non-zero duty.
func (f *FakeOutput) Energized() bool {
	for _, on := range f.Lines {
		if on {
			return true
		}
	}
	for _, d := range f.Duties {
		if d != 0 {
			return true
		}
	}
	return false
}

// LineToggles counts line level changes written for ch.
func (f *FakeOutput) LineToggles(ch waveform.Channel) int {
	n := 0
	last := false
	for _, w := range f.Writes {
		if w.Channel != ch || w.IsDuty {
			continue
		}
		if w.Line != last {
			n++
		}
		last = w.Line
	}
	return n
}

// Close marks the output as closed and drives everything low.
func (f *FakeOutput) Close() error {
	for ch := range f.Lines {
		f.Lines[ch] = false
	}
	for ch := range f.Duties {
		f.Duties[ch] = 0
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeOutput) Reset() {
	f.Writes = nil
	f.Lines = make(map[waveform.Channel]bool)
	f.Duties = make(map[waveform.Channel]float64)
	f.Closed = false
	f.FailAfter = 0
	f.WriteError = nil
}
