package waveform

import (
	"errors"
	"fmt"
	"time"
)

// MaxCapacity bounds a single sample buffer (10 minutes at 1ms cadence).
const MaxCapacity = 600_000

var (
	// ErrBufferAlloc means a sample buffer could not be allocated.
	ErrBufferAlloc = errors.New("sample buffer allocation failed")
	// ErrInvalidCadence means the sampling cadence is not positive.
	ErrInvalidCadence = errors.New("sampling cadence must be positive")
)

// Recorder captures channel state at a fixed cadence into a bounded buffer.
// Not safe for concurrent use; a recorder belongs to one session channel.
type Recorder struct {
	buf     []Sample
	cadence time.Duration
	start   time.Duration
	next    time.Duration
}

// NewRecorder allocates a buffer for capacity samples. The first sample is
// due at start, and Elapsed is measured from start.
func NewRecorder(capacity int, cadence, start time.Duration) (*Recorder, error) {
	if capacity < 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d outside [0, %d]", ErrBufferAlloc, capacity, MaxCapacity)
	}
	if cadence <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCadence, cadence)
	}
	return &Recorder{
		buf:     make([]Sample, 0, capacity),
		cadence: cadence,
		start:   start,
		next:    start,
	}, nil
}

// MaybeSample appends a sample if the next deadline has been reached and
// the buffer has room. It reports whether a sample was taken.
func (r *Recorder) MaybeSample(cfg Config, s ChannelState, now time.Duration) bool {
	if now < r.next || r.Full() {
		return false
	}
	r.buf = append(r.buf, Sample{
		Elapsed:      now - r.start,
		FrequencyHz:  cfg.FrequencyHz,
		DutyCyclePct: cfg.DutyCyclePct,
		On:           s.On,
	})
	r.next += r.cadence
	return true
}

// Full reports whether the buffer has reached capacity. A full buffer is
// the normal early-stop signal, not an error.
func (r *Recorder) Full() bool {
	return len(r.buf) == cap(r.buf)
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	return len(r.buf)
}

// Cap returns the buffer capacity.
func (r *Recorder) Cap() int {
	return cap(r.buf)
}

// NextDeadline returns the offset at which the next sample is due.
func (r *Recorder) NextDeadline() time.Duration {
	return r.next
}

// Samples returns the recorded samples. The slice is owned by the recorder
// until Release is called.
func (r *Recorder) Samples() []Sample {
	return r.buf
}

// Release hands the buffer to the caller. The recorder keeps no reference
// and records nothing afterwards.
func (r *Recorder) Release() []Sample {
	buf := r.buf
	r.buf = make([]Sample, 0)
	return buf
}
