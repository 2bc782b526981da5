// Package clock provides the monotonic time source used for all scheduling
// decisions. Wall time is always injectable so the busy loop can be driven
// by a stepping clock in tests.
package clock

import (
	"fmt"
	"strings"
	"time"

	bclock "github.com/benbjohnson/clock"
)

// Clock reports the current time. Satisfied by github.com/benbjohnson/clock.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// New returns the real system clock.
func New() Clock {
	return bclock.New()
}

// Resolution is the granularity of scheduling decisions.
type Resolution int

const (
	Millisecond Resolution = iota
	Microsecond
)

// Unit returns the duration of one tick of the resolution.
func (r Resolution) Unit() time.Duration {
	if r == Microsecond {
		return time.Microsecond
	}
	return time.Millisecond
}

func (r Resolution) String() string {
	if r == Microsecond {
		return "us"
	}
	return "ms"
}

// ParseResolution accepts "ms", "us" or "µs". Empty means milliseconds.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ms", "millisecond", "milliseconds":
		return Millisecond, nil
	case "us", "µs", "microsecond", "microseconds":
		return Microsecond, nil
	}
	return Millisecond, fmt.Errorf("unknown resolution %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resolution) UnmarshalText(b []byte) error {
	v, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Source reports monotonic offsets from the moment it was created,
// truncated to its resolution.
type Source struct {
	clk    Clock
	res    Resolution
	origin time.Time
}

// NewSource starts a Source at clk's current time.
func NewSource(clk Clock, res Resolution) *Source {
	return &Source{
		clk:    clk,
		res:    res,
		origin: clk.Now(),
	}
}

// Now returns the elapsed time since the source was created.
func (s *Source) Now() time.Duration {
	return s.clk.Now().Sub(s.origin).Truncate(s.res.Unit())
}

// Resolution returns the source's resolution.
func (s *Source) Resolution() Resolution {
	return s.res
}
