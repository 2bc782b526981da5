package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State             string        `json:"state"`
	Channels          []ChannelJSON `json:"channels"`
	SessionStart      string        `json:"session_start,omitempty"`
	LastSession       *OutcomeJSON  `json:"last_session,omitempty"`
	SessionsCompleted int           `json:"sessions_completed"`
	SessionsAborted   int           `json:"sessions_aborted"`
	UptimeSeconds     int64         `json:"uptime_seconds"`
	StartTime         string        `json:"start_time"`
	Timestamp         string        `json:"timestamp"`
	MQTT              MQTTStatus    `json:"mqtt"`
	Config            ConfigJSON    `json:"config"`
}

// ChannelJSON is one active channel.
type ChannelJSON struct {
	Channel      string  `json:"channel"`
	FrequencyHz  float64 `json:"frequency_hz"`
	DutyCyclePct float64 `json:"duty_cycle_pct"`
}

// OutcomeJSON is the JSON representation of the last session.
type OutcomeJSON struct {
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Samples   int    `json:"samples"`
	Error     string `json:"error,omitempty"`
	Finished  string `json:"finished"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of the recorder config.
type ConfigJSON struct {
	Backend    string `json:"backend"`
	DurationMs int64  `json:"duration_ms"`
	CadenceMs  int64  `json:"cadence_ms"`
	Capacity   int    `json:"capacity"`
	Resolution string `json:"resolution"`
	CSVPath    string `json:"csv_path"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:             state,
		Channels:          make([]ChannelJSON, 0, len(snap.Channels)),
		SessionsCompleted: snap.Completed,
		SessionsAborted:   snap.Aborted,
		UptimeSeconds:     int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:         snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:         snap.Now.UTC().Format(time.RFC3339),
		MQTT:              MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Backend:    snap.Config.Backend,
			DurationMs: snap.Config.Duration.Milliseconds(),
			CadenceMs:  snap.Config.Cadence.Milliseconds(),
			Capacity:   snap.Config.Capacity,
			Resolution: snap.Config.Resolution,
			CSVPath:    snap.Config.CSVPath,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	for _, c := range snap.Channels {
		inner.Channels = append(inner.Channels, ChannelJSON{
			Channel:      string(c.Channel),
			FrequencyHz:  c.FrequencyHz,
			DutyCyclePct: c.DutyCyclePct,
		})
	}
	if snap.Active() && !snap.SessionStart.IsZero() {
		inner.SessionStart = snap.SessionStart.UTC().Format(time.RFC3339)
	}
	if l := snap.Last; l != nil {
		inner.LastSession = &OutcomeJSON{
			State:     string(l.State),
			Reason:    string(l.Reason),
			ElapsedMs: l.Elapsed.Milliseconds(),
			Samples:   l.Samples,
			Error:     l.Err,
			Finished:  l.At.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
