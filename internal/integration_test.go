package internal

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/gpio"
	"github.com/sweeney/pwm-recorder/internal/logic"
	"github.com/sweeney/pwm-recorder/internal/mqtt"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/status"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// stepClock advances by step on every read after the first two, so the
// session's first tick lands at elapsed zero.
func stepClock(step time.Duration) clock.Func {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := -1
	return func() time.Time {
		if n < 0 {
			n = 0
			return start
		}
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type harness struct {
	out      *gpio.FakeOutput
	pub      *mqtt.FakePublisher
	dispatch *mqtt.Dispatcher
	tracker  *status.Tracker
	sink     *csvsink.Writer
	opts     session.Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		out:     gpio.NewFakeOutput(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{Backend: "fake"}),
		sink:    csvsink.New(filepath.Join(t.TempDir(), "displayPlot.csv"), csvsink.DefaultLabels(), nil),
	}
	h.dispatch = mqtt.NewDispatcher(h.pub, 8, nil)

	h.opts = session.DefaultOptions()
	h.opts.Duration = time.Second
	h.opts.Observer = func(tr session.Transition) {
		h.tracker.Observe(tr)
		if ev, ok := mqtt.EventFromTransition(tr, time.Now()); ok {
			h.dispatch.Send(ev)
		}
	}
	return h
}

func (h *harness) run(t *testing.T, cfgs ...waveform.Config) (*session.Result, error) {
	t.Helper()
	s, err := session.New(cfgs, h.opts, h.out, stepClock(10*time.Millisecond), h.sink, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	res, err := s.Run()
	h.tracker.SetIdle()
	return res, err
}

// TestIntegrationFullFlow drives a dual-channel session through the fake
// output and checks every consumer of its result.
func TestIntegrationFullFlow(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t,
		waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 1, DutyCyclePct: 50},
		waveform.Config{Channel: waveform.ChannelB, FrequencyHz: 5, DutyCyclePct: 20},
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	h.dispatch.Close()

	if res.Reason != session.ReasonDuration {
		t.Errorf("reason: got %s, want DURATION", res.Reason)
	}
	if h.out.Energized() {
		t.Error("outputs left on after session")
	}

	// Recording round-trips through the CSV file
	tbl, err := csvsink.Read(h.sink.Path())
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if len(tbl.Series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(tbl.Series))
	}
	if tbl.Series[0].Label != "Green" || tbl.Series[1].Label != "Red" {
		t.Errorf("labels: got %q %q", tbl.Series[0].Label, tbl.Series[1].Label)
	}
	for i, ch := range res.Channels {
		if got, want := len(tbl.Series[i].Samples), len(ch.Samples); got != want {
			t.Errorf("series %d: got %d samples, want %d", i, got, want)
		}
	}

	// The recorded red LED measures as configured
	m := logic.Measure(waveform.ChannelB, tbl.Series[1].Samples, 0)
	if math.Abs(m.FrequencyHz-5) > 1e-6 {
		t.Errorf("measured frequency: got %v, want 5", m.FrequencyHz)
	}
	if math.Abs(m.DutyCyclePct-20) > 1e-6 {
		t.Errorf("measured duty: got %v, want 20", m.DutyCyclePct)
	}

	// Lifecycle events
	names := h.pub.EventNames()
	if len(names) != 2 || names[0] != mqtt.EventStarted || names[1] != mqtt.EventCompleted {
		t.Fatalf("events: got %v", names)
	}
	for i, payload := range h.pub.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Errorf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Session.Timestamp == "" {
			t.Errorf("payload %d: missing timestamp", i)
		}
		if len(parsed.Session.Channels) != 2 {
			t.Errorf("payload %d: got %d channels", i, len(parsed.Session.Channels))
		}
	}

	// Status
	snap := h.tracker.Snapshot()
	if snap.State != session.StateIdle || snap.Completed != 1 {
		t.Errorf("status: got state=%s completed=%d", snap.State, snap.Completed)
	}
	if snap.Last == nil || snap.Last.Samples != res.Samples() {
		t.Errorf("last outcome: got %+v", snap.Last)
	}
}

// TestIntegrationAppendedSessions checks that a second session with the
// same channels appends to the recording and splits back out.
func TestIntegrationAppendedSessions(t *testing.T) {
	h := newHarness(t)
	cfg := waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 2, DutyCyclePct: 50}

	for i := 0; i < 2; i++ {
		if _, err := h.run(t, cfg); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	h.dispatch.Close()

	tbl, err := csvsink.Read(h.sink.Path())
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	sessions := tbl.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if h.tracker.Snapshot().Completed != 2 {
		t.Errorf("completed: got %d, want 2", h.tracker.Snapshot().Completed)
	}
}

// TestIntegrationMismatchedAppendAborts checks that a session whose
// channels do not match the existing recording is reported as aborted.
func TestIntegrationMismatchedAppendAborts(t *testing.T) {
	h := newHarness(t)

	if _, err := h.run(t, waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 1, DutyCyclePct: 50}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := h.run(t, waveform.Config{Channel: waveform.ChannelB, FrequencyHz: 1, DutyCyclePct: 50})
	h.dispatch.Close()

	if err == nil {
		t.Fatal("expected sink error")
	}
	if res == nil || res.Samples() == 0 {
		t.Error("result should survive a sink failure")
	}
	names := h.pub.EventNames()
	if len(names) != 4 || names[3] != mqtt.EventAborted {
		t.Errorf("events: got %v", names)
	}
	snap := h.tracker.Snapshot()
	if snap.Aborted != 1 || snap.Last == nil || snap.Last.Err == "" {
		t.Errorf("status: got aborted=%d last=%+v", snap.Aborted, snap.Last)
	}
}
