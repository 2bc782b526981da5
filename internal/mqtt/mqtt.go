// Package mqtt publishes session lifecycle events, with abstraction for
// testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Topic is the MQTT topic for session events.
const Topic = "lab/pwm-recorder/sessions"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lab/pwm-recorder/system"

// Session event names.
const (
	EventStarted   = "STARTED"
	EventCompleted = "COMPLETED"
	EventAborted   = "ABORTED"
)

// System event names.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a session event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event SessionEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SessionEvent reports a session starting or finishing.
type SessionEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // DURATION or CAPACITY, completed sessions only
	Channels  []waveform.Config
	Samples   int
	Elapsed   time.Duration
	Err       string
}

// SystemEvent represents a process lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // "STARTUP" or "SHUTDOWN"
	Reason    string // e.g. "SIGTERM", "EXIT" (shutdown only)
	Retained  bool
}

// EventFromTransition maps a session state change to the event it
// announces. Transitions into Draining are not announced.
func EventFromTransition(tr session.Transition, now time.Time) (SessionEvent, bool) {
	ev := SessionEvent{
		Timestamp: now,
		Channels:  tr.Channels,
		Elapsed:   tr.Elapsed,
	}
	switch {
	case tr.To == session.StateRunning:
		ev.Event = EventStarted
	case tr.From == session.StateIdle && tr.To == session.StateDraining:
		// Zero-duration sessions skip Running.
		ev.Event = EventStarted
	case tr.To == session.StateDone:
		ev.Event = EventCompleted
		if tr.Result != nil {
			ev.Reason = string(tr.Result.Reason)
			ev.Samples = tr.Result.Samples()
		}
	case tr.To == session.StateAborted:
		ev.Event = EventAborted
		if tr.Err != nil {
			ev.Err = tr.Err.Error()
		}
	default:
		return SessionEvent{}, false
	}
	return ev, true
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Session SessionPayload `json:"session"`
}

// SessionPayload contains the session event details.
type SessionPayload struct {
	Timestamp string           `json:"timestamp"`
	Event     string           `json:"event"`
	Reason    string           `json:"reason,omitempty"`
	ElapsedMs int64            `json:"elapsed_ms"`
	Samples   int              `json:"samples"`
	Channels  []ChannelPayload `json:"channels"`
	Error     string           `json:"error,omitempty"`
}

// ChannelPayload is one channel's blink configuration.
type ChannelPayload struct {
	Channel      string  `json:"channel"`
	FrequencyHz  float64 `json:"frequency_hz"`
	DutyCyclePct float64 `json:"duty_cycle_pct"`
}

// FormatPayload creates the JSON payload for a session event.
func FormatPayload(event SessionEvent) ([]byte, error) {
	channels := make([]ChannelPayload, 0, len(event.Channels))
	for _, c := range event.Channels {
		channels = append(channels, ChannelPayload{
			Channel:      string(c.Channel),
			FrequencyHz:  c.FrequencyHz,
			DutyCyclePct: c.DutyCyclePct,
		})
	}
	payload := Payload{
		Session: SessionPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			ElapsedMs: event.Elapsed.Milliseconds(),
			Samples:   event.Samples,
			Channels:  channels,
			Error:     event.Err,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(SessionEvent) error { return nil }

// PublishSystem does nothing.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected is always false.
func (NopPublisher) IsConnected() bool { return false }
