// Package status provides a thread-safe status tracker for the recorder.
// The session goroutine writes to it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Config contains the recorder configuration for display.
type Config struct {
	Backend    string
	Duration   time.Duration
	Cadence    time.Duration
	Capacity   int
	Resolution string
	CSVPath    string
	Broker     string
	HTTPAddr   string
}

// Outcome describes the most recently finished session.
type Outcome struct {
	State   session.State // DONE or ABORTED
	Reason  session.Reason
	Elapsed time.Duration
	Samples int
	Err     string
	At      time.Time
}

// Snapshot is a point-in-time view of recorder state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         session.State
	Channels      []waveform.Config
	SessionStart  time.Time
	Last          *Outcome
	Completed     int
	Aborted       int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the recorder started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Active reports whether a session currently owns the outputs.
func (s Snapshot) Active() bool {
	return s.State == session.StateRunning || s.State == session.StateDraining
}

// Tracker holds mutable recorder state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     session.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Observe records a session state transition. It matches session.Observer
// and is called from the session's goroutine, so it never blocks for long.
func (t *Tracker) Observe(tr session.Transition) {
	at := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.State = tr.To
	switch tr.To {
	case session.StateRunning:
		t.snap.SessionStart = at
		t.snap.Channels = append([]waveform.Config(nil), tr.Channels...)
	case session.StateDraining:
		if tr.From == session.StateIdle {
			t.snap.SessionStart = at
			t.snap.Channels = append([]waveform.Config(nil), tr.Channels...)
		}
	case session.StateDone, session.StateAborted:
		out := &Outcome{State: tr.To, Elapsed: tr.Elapsed, At: at}
		if tr.Result != nil {
			out.Reason = tr.Result.Reason
			out.Samples = tr.Result.Samples()
		}
		if tr.Err != nil {
			out.Err = tr.Err.Error()
		}
		t.snap.Last = out
		if tr.To == session.StateDone {
			t.snap.Completed++
		} else {
			t.snap.Aborted++
		}
	}
}

// SetIdle marks the recorder as waiting for the next session.
func (t *Tracker) SetIdle() {
	t.mu.Lock()
	t.snap.State = session.StateIdle
	t.snap.Channels = nil
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the recorder state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	s.Channels = append([]waveform.Config(nil), s.Channels...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
