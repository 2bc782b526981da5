// Package waveform contains the pure software-PWM logic: period and duty
// computation, channel toggling and sample recording.
// This package has NO hardware, file or OS dependencies and never sleeps.
// Time is always passed in as a monotonic offset.
package waveform

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Channel identifies one controlled output line.
type Channel string

const (
	ChannelA Channel = "A"
	ChannelB Channel = "B"
)

// Channels lists every channel in column order.
var Channels = []Channel{ChannelA, ChannelB}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelA || c == ChannelB
}

// Other returns the opposite channel.
func (c Channel) Other() Channel {
	if c == ChannelA {
		return ChannelB
	}
	return ChannelA
}

// ParseChannel accepts "A" or "B" in any case.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ConfigError{Field: "channel", Value: s, Reason: "must be A or B"}
	}
	return c, nil
}

// DefaultMaxFrequencyHz is the highest blink frequency accepted by default.
const DefaultMaxFrequencyHz = 10

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid blink configuration")

// ConfigError reports a rejected blink configuration field.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Config is the blink configuration of one channel.
// It must not change once a session has started.
type Config struct {
	Channel      Channel
	FrequencyHz  float64
	DutyCyclePct float64
}

// Validate checks the configuration against maxHz (<= 0 means no upper bound).
// A zero frequency is always rejected here so it never reaches the generator.
func (c Config) Validate(maxHz float64) error {
	if !c.Channel.Valid() {
		return &ConfigError{Field: "channel", Value: c.Channel, Reason: "must be A or B"}
	}
	if math.IsNaN(c.FrequencyHz) || math.IsInf(c.FrequencyHz, 0) || c.FrequencyHz <= 0 {
		return &ConfigError{Field: "frequency", Value: c.FrequencyHz, Reason: "must be greater than 0 Hz"}
	}
	if maxHz > 0 && c.FrequencyHz > maxHz {
		return &ConfigError{Field: "frequency", Value: c.FrequencyHz, Reason: fmt.Sprintf("must be at most %g Hz", maxHz)}
	}
	if math.IsNaN(c.DutyCyclePct) || c.DutyCyclePct < 0 || c.DutyCyclePct > 100 {
		return &ConfigError{Field: "duty cycle", Value: c.DutyCyclePct, Reason: "must be between 0 and 100"}
	}
	return nil
}

// ChannelState is the output state of one channel.
// Only Generator.Advance changes it.
type ChannelState struct {
	On         bool
	LastToggle time.Duration
	// Started is false until the first Advance of a session.
	Started bool
}

// Sample is one recorded observation of a channel.
type Sample struct {
	Elapsed      time.Duration
	FrequencyHz  float64
	DutyCyclePct float64
	On           bool
}
