package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/config"
	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/gpio"
	"github.com/sweeney/pwm-recorder/internal/mqtt"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/status"
	"github.com/sweeney/pwm-recorder/internal/waveform"
	"github.com/sweeney/pwm-recorder/internal/web"
)

// Shutdown reasons published on the system topic.
const (
	reasonExit    = "EXIT"
	reasonSigint  = "SIGINT"
	reasonSigterm = "SIGTERM"
)

const eventQueueSize = 16

// recorder owns the outputs and everything that reports on sessions.
type recorder struct {
	cfg      *config.Config
	channels []waveform.Channel
	out      gpio.Output
	clk      clock.Clock
	sink     session.Sink
	pub      mqtt.Publisher
	dispatch *mqtt.Dispatcher
	tracker  *status.Tracker
	srv      *web.Server
	logger   *zap.SugaredLogger
}

func newRecorder(cfg *config.Config, out gpio.Output, pub mqtt.Publisher, clk clock.Clock, logger *zap.SugaredLogger) *recorder {
	channels := make([]waveform.Channel, 0, len(cfg.Channels))
	for ch := range cfg.Channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	r := &recorder{
		cfg:      cfg,
		channels: channels,
		out:      out,
		clk:      clk,
		pub:      pub,
		dispatch: mqtt.NewDispatcher(pub, eventQueueSize, logger),
		tracker: status.NewTracker(time.Now(), status.Config{
			Backend:    cfg.GPIO.Backend,
			Duration:   cfg.Session.Duration,
			Cadence:    cfg.Session.Cadence,
			Capacity:   cfg.Session.Capacity,
			Resolution: cfg.Session.Resolution,
			CSVPath:    cfg.Output.CSV,
			Broker:     cfg.MQTT.Broker,
			HTTPAddr:   cfg.HTTP.Addr,
		}),
		logger: logger,
	}
	if cfg.Output.CSV != "" {
		r.sink = csvsink.New(cfg.Output.CSV, cfg.Labels(), logger)
	}
	r.refreshMQTT()
	return r
}

// openRecorder builds a recorder on real hardware and the configured
// broker, then starts the status server and announces STARTUP.
func openRecorder(cfg *config.Config, logger *zap.SugaredLogger) (*recorder, error) {
	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	var pub mqtt.Publisher = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
		}, logger)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("init mqtt: %w", err)
		}
		pub = p
	}

	r := newRecorder(cfg, out, pub, clock.New(), logger)
	r.start()
	return r, nil
}

func openOutput(cfg *config.Config) (gpio.Output, error) {
	switch cfg.GPIO.Backend {
	case config.BackendFake:
		return gpio.NewFakeOutput(), nil
	case config.BackendPeriph:
		out, err := gpio.OpenPeriph(cfg.Pins(), 0)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return out, nil
	default:
		out, err := gpio.NewRealOutput(cfg.GPIO.Chip, cfg.Pins())
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return out, nil
	}
}

// start brings up the HTTP status server and publishes STARTUP.
func (r *recorder) start() {
	if addr := r.cfg.HTTP.Addr; addr != "" {
		r.srv = web.New(addr, r.tracker, r.cfg.Output.CSV, r.logger)
		go func() {
			if err := r.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Errorf("http server error: %v", err)
			}
		}()
		r.logger.Infof("http status server listening on %s", addr)
	}
	r.publishSystem(mqtt.EventStartup, "")
	r.logger.Infof("started: backend=%s duration=%v cadence=%v capacity=%d",
		r.cfg.GPIO.Backend, r.cfg.Session.Duration, r.cfg.Session.Cadence, r.cfg.Session.Capacity)
}

// blink runs one session to completion. The tracker is back to idle when
// it returns.
func (r *recorder) blink(cfgs []waveform.Config) (*session.Result, error) {
	opts := r.cfg.SessionOptions()
	opts.Observer = r.observe

	s, err := session.New(cfgs, opts, r.out, r.clk, r.sink, r.logger)
	if err != nil {
		return nil, err
	}
	defer r.refreshMQTT()
	defer r.tracker.SetIdle()

	r.logger.Infof("session: %s", describe(cfgs))
	res, err := s.Run()
	if err != nil {
		r.logger.Errorf("session aborted: %v", err)
		return res, err
	}
	r.logger.Infof("session done: reason=%s elapsed=%v samples=%d", res.Reason, res.Elapsed, res.Samples())
	return res, nil
}

// observe runs on the session's goroutine and must not block.
func (r *recorder) observe(tr session.Transition) {
	r.tracker.Observe(tr)
	if ev, ok := mqtt.EventFromTransition(tr, time.Now()); ok {
		r.dispatch.Send(ev)
	}
}

func (r *recorder) allOff() error {
	return gpio.AllOff(r.out, r.channels)
}

func (r *recorder) allOn() error {
	return gpio.AllOn(r.out, r.channels)
}

func (r *recorder) refreshMQTT() {
	if cs, ok := r.pub.(mqtt.ConnectionStatus); ok {
		r.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

func (r *recorder) publishSystem(event, reason string) {
	err := r.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	})
	if err != nil {
		r.logger.Warnf("failed to publish %s event: %v", event, err)
		return
	}
	r.logger.Infof("published %s event", event)
}

// close drives every line low, flushes pending events, announces
// SHUTDOWN and releases the hardware.
func (r *recorder) close(reason string) error {
	err := r.allOff()

	r.dispatch.Close()
	r.refreshMQTT()
	r.publishSystem(mqtt.EventShutdown, reason)
	err = multierr.Append(err, r.pub.Close())

	if r.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = multierr.Append(err, r.srv.Shutdown(ctx))
		cancel()
	}
	return multierr.Append(err, r.out.Close())
}

// loadConfig reads the --config file and applies the global flag
// overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("backend") {
		cfg.GPIO.Backend = c.String("backend")
	}
	if c.IsSet("broker") {
		cfg.MQTT.Broker = c.String("broker")
	}
	if c.IsSet("http") {
		cfg.HTTP.Addr = c.String("http")
	}
	if c.IsSet("csv") {
		cfg.Output.CSV = c.String("csv")
	}
	if c.IsSet("duration") {
		cfg.Session.Duration = c.Duration("duration")
	}
	if c.IsSet("resolution") {
		cfg.Session.Resolution = c.String("resolution")
	}
	if c.IsSet("timing") {
		cfg.Session.Timing = c.String("timing")
	}
	if c.IsSet("cpu") {
		cfg.Session.PinCPU = true
		cfg.Session.CPU = c.Int("cpu")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return reasonSigint
	case syscall.SIGTERM:
		return reasonSigterm
	}
	return "UNKNOWN"
}

func describe(cfgs []waveform.Config) string {
	s := ""
	for i, c := range cfgs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %gHz %.2f%%", c.Channel, c.FrequencyHz, c.DutyCyclePct)
	}
	return s
}
