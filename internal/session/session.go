package session

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/gpio"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

type channel struct {
	gen     *waveform.Generator
	state   waveform.ChannelState
	rec     *waveform.Recorder
	toggles int
}

// Session owns the output lines and sample buffers of one blink run.
// It is single-use: construct, Run once, discard.
type Session struct {
	opts     Options
	out      gpio.Output
	clk      clock.Clock
	sink     Sink
	logger   *zap.SugaredLogger
	channels []*channel
	state    State
}

// New validates the channel configurations and builds an Idle session.
// Configuration errors are reported here, before anything is driven.
// Channels are ordered A before B regardless of the order given.
func New(configs []waveform.Config, opts Options, out gpio.Output, clk clock.Clock, sink Sink, logger *zap.SugaredLogger) (*Session, error) {
	if len(configs) == 0 || len(configs) > len(waveform.Channels) {
		return nil, fmt.Errorf("%w: got %d", ErrChannels, len(configs))
	}
	if opts.Cadence <= 0 {
		return nil, fmt.Errorf("%w: %v", waveform.ErrInvalidCadence, opts.Cadence)
	}
	if opts.Duration < 0 {
		return nil, fmt.Errorf("negative session duration %v", opts.Duration)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	sorted := append([]waveform.Config(nil), configs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Channel < sorted[j].Channel })

	s := &Session{
		opts:   opts,
		out:    out,
		clk:    clk,
		sink:   sink,
		logger: logger,
		state:  StateIdle,
	}
	seen := make(map[waveform.Channel]bool)
	for _, cfg := range sorted {
		if seen[cfg.Channel] {
			return nil, fmt.Errorf("%w: channel %s twice", ErrChannels, cfg.Channel)
		}
		seen[cfg.Channel] = true

		gen, err := waveform.NewGenerator(cfg, opts.Resolution.Unit(), opts.Timing, opts.MaxFrequencyHz)
		if err != nil {
			return nil, err
		}
		s.channels = append(s.channels, &channel{gen: gen})
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Configs returns the channel configurations in column order.
func (s *Session) Configs() []waveform.Config {
	cfgs := make([]waveform.Config, len(s.channels))
	for i, c := range s.channels {
		cfgs[i] = c.gen.Config()
	}
	return cfgs
}

func (s *Session) ids() []waveform.Channel {
	ids := make([]waveform.Channel, len(s.channels))
	for i, c := range s.channels {
		ids[i] = c.gen.Config().Channel
	}
	return ids
}

// Run executes the session to completion. It busy-waits on the clock and
// does not return until the duration cap or a full buffer ends the run;
// there is no other way to stop it.
//
// On success the Result holds every channel's samples and has already been
// handed to the sink. On failure every output is forced OFF before Run
// returns. A sink failure returns both the Result and the error.
func (s *Session) Run() (*Result, error) {
	if s.state != StateIdle {
		return nil, ErrNotIdle
	}

	release := pinThread(s.opts, s.logger)
	defer release()

	// Offsets from src are measured from the session start.
	src := clock.NewSource(s.clk, s.opts.Resolution)

	for _, c := range s.channels {
		rec, err := waveform.NewRecorder(s.opts.Capacity, s.opts.Cadence, 0)
		if err != nil {
			return nil, s.abort(0, fmt.Errorf("channel %s: %w", c.gen.Config().Channel, err))
		}
		c.rec = rec
	}

	reason := ReasonDuration
	var elapsed time.Duration
	if s.opts.Duration > 0 {
		s.transition(StateRunning, 0, nil, nil)
		var err error
		reason, elapsed, err = s.loop(src)
		if err != nil {
			return nil, s.abort(elapsed, err)
		}
	}

	s.transition(StateDraining, elapsed, nil, nil)
	if err := gpio.AllOff(s.out, s.ids()); err != nil {
		return nil, s.abort(elapsed, fmt.Errorf("%w: %w", ErrHardware, err))
	}

	res := &Result{
		Reason:     reason,
		Elapsed:    elapsed,
		Resolution: s.opts.Resolution,
	}
	for _, c := range s.channels {
		res.Channels = append(res.Channels, ChannelResult{
			Config:  c.gen.Config(),
			Samples: c.rec.Release(),
			Toggles: c.toggles,
		})
	}

	if s.sink != nil {
		if err := s.sink.WriteSession(res); err != nil {
			err = fmt.Errorf("%w: %w", ErrSink, err)
			s.transition(StateAborted, elapsed, nil, err)
			return res, err
		}
	}

	s.transition(StateDone, elapsed, res, nil)
	return res, nil
}

// loop is the Running state. Every tick reads the clock once and, for each
// channel, toggles before sampling so a sample never sees a stale level.
func (s *Session) loop(src *clock.Source) (Reason, time.Duration, error) {
	for {
		now := src.Now()
		if now >= s.opts.Duration {
			return ReasonDuration, now, nil
		}

		full := false
		for _, c := range s.channels {
			next, toggled := c.gen.Advance(c.state, now)
			c.state = next
			if toggled {
				c.toggles++
				if err := s.drive(c); err != nil {
					return "", now, err
				}
			}
			c.rec.MaybeSample(c.gen.Config(), c.state, now)
			if c.rec.Full() {
				full = true
			}
		}
		if full {
			return ReasonCapacity, now, nil
		}
	}
}

func (s *Session) drive(c *channel) error {
	ch := c.gen.Config().Channel
	if err := s.out.SetLine(ch, c.state.On); err != nil {
		return fmt.Errorf("%w: set line channel %s: %w", ErrHardware, ch, err)
	}
	if err := s.out.SetDuty(ch, c.gen.Output(c.state)); err != nil {
		return fmt.Errorf("%w: set duty channel %s: %w", ErrHardware, ch, err)
	}
	return nil
}

// abort forces every output OFF, records the failure and returns it.
// Recorded samples are discarded; nothing partial reaches the sink.
func (s *Session) abort(elapsed time.Duration, cause error) error {
	err := multierr.Append(cause, gpio.AllOff(s.out, s.ids()))
	for _, c := range s.channels {
		if c.rec != nil {
			c.rec.Release()
		}
	}
	s.transition(StateAborted, elapsed, nil, err)
	return err
}

func (s *Session) transition(to State, elapsed time.Duration, res *Result, err error) {
	from := s.state
	s.state = to

	switch {
	case err != nil:
		s.logger.Errorf("session %s -> %s after %v: %v", from, to, elapsed, err)
	case res != nil:
		s.logger.Infof("session %s -> %s after %v: reason=%s samples=%d", from, to, elapsed, res.Reason, res.Samples())
	default:
		s.logger.Debugf("session %s -> %s after %v", from, to, elapsed)
	}

	if s.opts.Observer != nil {
		s.opts.Observer(Transition{
			From:     from,
			To:       to,
			Elapsed:  elapsed,
			Channels: s.Configs(),
			Result:   res,
			Err:      err,
		})
	}
}
