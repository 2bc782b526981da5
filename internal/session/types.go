// Package session runs one blink session: a single-threaded busy loop that
// advances every channel's waveform, samples it, and hands the finished
// sample buffers to a sink.
package session

import (
	"errors"
	"time"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// State is a session lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateDraining State = "DRAINING"
	StateDone     State = "DONE"
	StateAborted  State = "ABORTED"
)

// Reason explains why the Running state ended.
type Reason string

const (
	// ReasonDuration: the duration cap was reached.
	ReasonDuration Reason = "DURATION"
	// ReasonCapacity: a sample buffer filled up first. Not an error.
	ReasonCapacity Reason = "CAPACITY"
)

var (
	// ErrHardware wraps output line failures. The session aborts.
	ErrHardware = errors.New("hardware output failed")
	// ErrSink wraps failures handing buffers to the sink.
	ErrSink = errors.New("sample sink failed")
	// ErrNotIdle is returned when Run is called twice.
	ErrNotIdle = errors.New("session is not idle")
	// ErrChannels rejects an empty, oversized or duplicated channel set.
	ErrChannels = errors.New("session needs one or two distinct channels")
)

// Default limits, taken from the lab exercise: 10ms samples for one minute.
const (
	DefaultDuration = 60 * time.Second
	DefaultCadence  = 10 * time.Millisecond
	DefaultCapacity = 6000
)

// Options configure the loop. They are fixed for the session's lifetime.
type Options struct {
	// Duration caps the Running state. Zero drains immediately.
	Duration time.Duration
	// Cadence is the sampling interval, independent of the toggle cadence.
	Cadence time.Duration
	// Capacity bounds each channel's sample buffer.
	Capacity   int
	Resolution clock.Resolution
	Timing     waveform.Timing
	// MaxFrequencyHz bounds accepted frequencies (<= 0: unbounded).
	MaxFrequencyHz float64

	// PinCPU locks the loop to one OS thread bound to CPU.
	PinCPU bool
	CPU    int

	// Observer, if set, is called on every state transition from the
	// session's goroutine.
	Observer Observer
}

// DefaultOptions returns the lab defaults.
func DefaultOptions() Options {
	return Options{
		Duration:       DefaultDuration,
		Cadence:        DefaultCadence,
		Capacity:       DefaultCapacity,
		Resolution:     clock.Millisecond,
		Timing:         waveform.TimingSymmetric,
		MaxFrequencyHz: waveform.DefaultMaxFrequencyHz,
	}
}

// Transition describes a state change.
type Transition struct {
	From    State
	To      State
	Elapsed time.Duration
	// Channels lists the session's configurations.
	Channels []waveform.Config
	// Result is set when entering Done.
	Result *Result
	// Err is set when entering Aborted.
	Err error
}

// Observer receives state transitions.
type Observer func(Transition)

// ChannelResult is one channel's finished recording.
type ChannelResult struct {
	Config  waveform.Config
	Samples []waveform.Sample
	// Toggles counts output level changes, including the initial turn-on.
	Toggles int
}

// OnSamples counts samples recorded with the output ON.
func (c ChannelResult) OnSamples() int {
	n := 0
	for _, s := range c.Samples {
		if s.On {
			n++
		}
	}
	return n
}

// Result is the outcome of a completed session. Its buffers are owned by
// whoever holds the Result; the session keeps no reference.
type Result struct {
	Reason     Reason
	Elapsed    time.Duration
	Resolution clock.Resolution
	Channels   []ChannelResult
}

// Samples returns the largest per-channel sample count.
func (r *Result) Samples() int {
	n := 0
	for _, c := range r.Channels {
		if len(c.Samples) > n {
			n = len(c.Samples)
		}
	}
	return n
}

// Sink accepts a finished session. It takes ownership of the buffers.
type Sink interface {
	WriteSession(res *Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(res *Result) error

// WriteSession calls f.
func (f SinkFunc) WriteSession(res *Result) error {
	return f(res)
}
