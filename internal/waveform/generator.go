package waveform

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Timing selects how the duty cycle splits a period into ON and OFF time.
type Timing int

const (
	// TimingSymmetric: ON lasts period*duty, OFF lasts the remainder.
	// Duty 100 never turns off and duty 0 never turns on.
	TimingSymmetric Timing = iota
	// TimingLegacy reproduces the lab exercise formula: the interval is
	// period*duty while ON (or at duty 100) and period*(1-duty) while OFF.
	TimingLegacy
)

func (t Timing) String() string {
	if t == TimingLegacy {
		return "legacy"
	}
	return "symmetric"
}

// ParseTiming accepts "symmetric" or "legacy". Empty means symmetric.
func ParseTiming(s string) (Timing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "symmetric":
		return TimingSymmetric, nil
	case "legacy":
		return TimingLegacy, nil
	}
	return TimingSymmetric, fmt.Errorf("unknown timing %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Timing) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timing) UnmarshalText(b []byte) error {
	v, err := ParseTiming(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Generator decides when a channel toggles.
type Generator struct {
	cfg    Config
	timing Timing
	period time.Duration
	on     time.Duration
	off    time.Duration
}

// NewGenerator validates cfg and precomputes its ON/OFF durations at the
// given resolution unit.
func NewGenerator(cfg Config, unit time.Duration, timing Timing, maxHz float64) (*Generator, error) {
	if err := cfg.Validate(maxHz); err != nil {
		return nil, err
	}
	if unit <= 0 {
		unit = time.Millisecond
	}

	period := nanos(float64(time.Second) / cfg.FrequencyHz).Truncate(unit)
	if period <= 0 {
		return nil, &ConfigError{Field: "frequency", Value: cfg.FrequencyHz, Reason: fmt.Sprintf("period is shorter than %v", unit)}
	}

	g := &Generator{cfg: cfg, timing: timing, period: period}
	duty := cfg.DutyCyclePct / 100
	switch timing {
	case TimingLegacy:
		g.on = nanos(float64(period) * duty).Truncate(unit)
		g.off = nanos(float64(period) * (1 - duty)).Truncate(unit)
	default:
		g.on = nanos(float64(period) * duty).Truncate(unit)
		g.off = period - g.on
	}
	return g, nil
}

// nanos rounds away float error before a duration is truncated to the
// resolution, so 200ms*0.8 is 160ms and not 159.999999ms.
func nanos(f float64) time.Duration {
	return time.Duration(math.Round(f))
}

// Config returns the configuration the generator was built from.
func (g *Generator) Config() Config {
	return g.cfg
}

// Durations returns the ON duration, the OFF duration and the period.
func (g *Generator) Durations() (on, off, period time.Duration) {
	return g.on, g.off, g.period
}

// Advance returns the channel state at time now and whether the output
// changed. It never blocks and has no side effects; calling it twice with
// the same now toggles at most once.
//
// The first call starts the channel: it turns ON immediately unless the
// duty cycle is zero.
func (g *Generator) Advance(s ChannelState, now time.Duration) (ChannelState, bool) {
	if !s.Started {
		s.Started = true
		s.LastToggle = now
		s.On = g.timing == TimingLegacy || g.cfg.DutyCyclePct > 0
		return s, s.On
	}

	if g.timing == TimingSymmetric {
		if s.On && g.cfg.DutyCyclePct >= 100 {
			return s, false
		}
		if !s.On && g.cfg.DutyCyclePct <= 0 {
			return s, false
		}
	}

	if now-s.LastToggle < g.interval(s.On) {
		return s, false
	}

	s.On = !s.On
	s.LastToggle = now
	return s, true
}

// interval is how long the channel stays in its current state.
func (g *Generator) interval(on bool) time.Duration {
	if g.timing == TimingLegacy {
		if on || g.cfg.DutyCyclePct >= 100 {
			return g.on
		}
		return g.off
	}
	if on {
		return g.on
	}
	return g.off
}

// Output returns the analog duty to drive for state s.
func (g *Generator) Output(s ChannelState) float64 {
	if s.On {
		return g.cfg.DutyCyclePct
	}
	return 0
}
