// Package logic analyses recorded waveforms the way a logic analyser would:
// it finds debounced edges in a channel's samples and measures the
// frequency and duty cycle the LED actually showed.
// This package has NO external dependencies (no GPIO, MQTT, OS, or clock).
// Time is always the sample's elapsed offset.
package logic

import (
	"time"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// State represents the logical level of a channel.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// EdgeType is the direction of a level change.
type EdgeType string

const (
	EdgeRising  EdgeType = "RISING"
	EdgeFalling EdgeType = "FALLING"
)

// Edge is one debounced level change.
type Edge struct {
	Elapsed time.Duration
	Type    EdgeType
}

// ChannelState tracks debounce state for a single channel.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Offset at which the pending state was first observed
	PendingSince time.Duration
	// Whether we have established a baseline
	Baselined bool
}

// Input is a single observed level.
type Input struct {
	On      bool
	Elapsed time.Duration
}

// EdgeCounts tracks the number of each edge type.
type EdgeCounts struct {
	Rising  int
	Falling int
}

// Measurement summarises one channel of a recording.
type Measurement struct {
	Channel   waveform.Channel
	Samples   int
	OnSamples int
	Edges     []Edge
	Counts    EdgeCounts
	// FrequencyHz is measured between the first and last rising edge. It is
	// zero when fewer than two rising edges were seen.
	FrequencyHz float64
	// DutyCyclePct is the share of samples at ON.
	DutyCyclePct float64
}
