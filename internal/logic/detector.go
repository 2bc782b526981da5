package logic

import (
	"time"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Detector tracks one channel and detects debounced level changes.
type Detector struct {
	debounce time.Duration
	ch       ChannelState
	counts   EdgeCounts
}

// NewDetector creates a detector that only accepts a level once it has
// been held for debounce. Zero accepts every change.
func NewDetector(debounce time.Duration) *Detector {
	return &Detector{debounce: debounce}
}

// Process takes a new sample and returns the edge it completes, if any.
// The first stable level is the baseline and is never an edge.
func (d *Detector) Process(in Input) *Edge {
	state := boolToState(in.On)
	ch := &d.ch

	// First time seeing this channel
	if !ch.Baselined {
		if ch.Pending != state {
			// Start observing, or restart after a change
			ch.Pending = state
			ch.PendingSince = in.Elapsed
		}
		if in.Elapsed-ch.PendingSince >= d.debounce {
			ch.Stable = state
			ch.Baselined = true
			ch.Pending = ""
		}
		return nil
	}

	// Already baselined - detect transitions
	if state == ch.Stable {
		// No change from stable state, clear any pending
		ch.Pending = ""
		return nil
	}

	if ch.Pending != state {
		ch.Pending = state
		ch.PendingSince = in.Elapsed
	}
	if in.Elapsed-ch.PendingSince < d.debounce {
		return nil
	}

	ch.Stable = state
	ch.Pending = ""
	edge := &Edge{Elapsed: ch.PendingSince, Type: EdgeFalling}
	if state == StateOn {
		edge.Type = EdgeRising
		d.counts.Rising++
	} else {
		d.counts.Falling++
	}
	return edge
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.ch.Baselined
}

// CurrentState returns the current stable state.
func (d *Detector) CurrentState() State {
	return d.ch.Stable
}

// Counts returns the edges seen so far.
func (d *Detector) Counts() EdgeCounts {
	return d.counts
}

// Measure runs a detector over a channel's samples.
func Measure(ch waveform.Channel, samples []waveform.Sample, debounce time.Duration) Measurement {
	d := NewDetector(debounce)
	m := Measurement{Channel: ch, Samples: len(samples)}

	for _, s := range samples {
		if s.On {
			m.OnSamples++
		}
		if e := d.Process(Input{On: s.On, Elapsed: s.Elapsed}); e != nil {
			m.Edges = append(m.Edges, *e)
		}
	}
	m.Counts = d.Counts()

	if m.Samples > 0 {
		m.DutyCyclePct = 100 * float64(m.OnSamples) / float64(m.Samples)
	}

	var first, last time.Duration
	rising := 0
	for _, e := range m.Edges {
		if e.Type != EdgeRising {
			continue
		}
		if rising == 0 {
			first = e.Elapsed
		}
		last = e.Elapsed
		rising++
	}
	if rising >= 2 && last > first {
		m.FrequencyHz = float64(rising-1) / (last - first).Seconds()
	}
	return m
}
