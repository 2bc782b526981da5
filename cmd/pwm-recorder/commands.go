package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/logic"
	"github.com/sweeney/pwm-recorder/internal/menu"
	"github.com/sweeney/pwm-recorder/internal/plot"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// withRecorder opens the recorder, runs fn and closes the recorder with
// the shutdown reason fn returns. SIGINT and SIGTERM are delivered to fn
// instead of killing the process, so a running session always drains.
func withRecorder(c *cli.Context, fn func(r *recorder, sig <-chan os.Signal) (string, error)) error {
	logger, err := newLogger(c.Bool("debug"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := openRecorder(cfg, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason, err := fn(r, sigCh)
	if reason == "" {
		reason = reasonExit
	}
	return multierr.Append(err, r.close(reason))
}

func menuAction(c *cli.Context) error {
	return withRecorder(c, func(r *recorder, sig <-chan os.Signal) (string, error) {
		m := menu.New(c.App.Reader, c.App.Writer, r.cfg.Labels(), r.cfg.Session.MaxFrequencyHz)
		return runLoop(r, m, sig)
	})
}

type answer struct {
	choice menu.Choice
	err    error
}

// ask reads the next menu choice on its own goroutine so a signal can
// interrupt a blocked prompt.
func ask(m *menu.Menu) <-chan answer {
	ch := make(chan answer, 1)
	go func() {
		c, err := m.Next()
		ch <- answer{choice: c, err: err}
	}()
	return ch
}

// runLoop serves menu choices until Exit, end of input or a signal.
// Signals are only seen between sessions; a session always runs to its
// own end.
func runLoop(r *recorder, m *menu.Menu, sig <-chan os.Signal) (string, error) {
	for {
		var a answer
		select {
		case s := <-sig:
			r.logger.Infof("received %v, shutting down", s)
			return signalName(s), nil
		case a = <-ask(m):
		}

		if errors.Is(a.err, menu.ErrClosed) {
			return reasonExit, nil
		}
		if a.err != nil {
			return reasonExit, a.err
		}

		switch a.choice.Action {
		case menu.ActionOff:
			if err := r.allOff(); err != nil {
				m.Errorf("turn off: %v", err)
			}
		case menu.ActionOn:
			if err := r.allOn(); err != nil {
				m.Errorf("turn on: %v", err)
			}
		case menu.ActionBlink:
			res, err := r.blink(a.choice.Configs)
			if res != nil {
				m.Summary(res)
			}
			if err != nil {
				m.Errorf("session failed: %v", err)
			}
		case menu.ActionExit:
			return reasonExit, nil
		}
	}
}

func blinkAction(c *cli.Context) error {
	cfgs, err := blinkConfigs(c)
	if err != nil {
		return err
	}
	return withRecorder(c, func(r *recorder, sig <-chan os.Signal) (string, error) {
		return runBlink(r, cfgs, c.App.Writer, sig)
	})
}

func blinkConfigs(c *cli.Context) ([]waveform.Config, error) {
	ch, err := waveform.ParseChannel(c.String("channel"))
	if err != nil {
		return nil, err
	}
	cfgs := []waveform.Config{{
		Channel:      ch,
		FrequencyHz:  c.Float64("freq"),
		DutyCyclePct: c.Float64("duty"),
	}}
	if c.IsSet("freq-b") {
		cfgs = append(cfgs, waveform.Config{
			Channel:      ch.Other(),
			FrequencyHz:  c.Float64("freq-b"),
			DutyCyclePct: c.Float64("duty-b"),
		})
	}
	return cfgs, nil
}

// runBlink runs a single session and reports it on w. A signal that
// arrived during the session becomes the shutdown reason.
func runBlink(r *recorder, cfgs []waveform.Config, w io.Writer, sig <-chan os.Signal) (string, error) {
	res, err := r.blink(cfgs)
	if res != nil {
		fmt.Fprintln(w, menu.SummaryTable(res, r.cfg.Labels()))
	}

	reason := reasonExit
	select {
	case s := <-sig:
		r.logger.Infof("received %v during session", s)
		reason = signalName(s)
	default:
	}
	return reason, err
}

func plotAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tbl, err := csvsink.Read(cfg.Output.CSV)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	if !c.Bool("all") {
		sessions := tbl.Sessions()
		if len(sessions) == 0 {
			return plot.ErrEmpty
		}
		tbl = sessions[len(sessions)-1]
	}

	if c.Bool("gnuplot") {
		return plot.RunGnuplot(c.Context, tbl)
	}
	out := cfg.Output.PNG
	if c.IsSet("out") {
		out = c.String("out")
	}
	if err := plot.RenderPNG(tbl, out); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
	return nil
}

// analyzeAction measures every session in the recording.
func analyzeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tbl, err := csvsink.Read(cfg.Output.CSV)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	fmt.Fprintln(c.App.Writer, analysisTable(tbl, c.Duration("debounce")))
	return nil
}

func analysisTable(tbl *csvsink.Table, debounce time.Duration) string {
	t := table.NewWriter()
	t.SetTitle("Recorded sessions")
	t.AppendHeader(table.Row{"Session", "LED", "Samples", "Rising", "Falling", "Frequency", "Duty Cycle"})
	for i, part := range tbl.Sessions() {
		for j, s := range part.Series {
			ch := waveform.ChannelA
			if j < len(waveform.Channels) {
				ch = waveform.Channels[j]
			}
			m := logic.Measure(ch, s.Samples, debounce)
			freq := "-"
			if m.FrequencyHz > 0 {
				freq = fmt.Sprintf("%.2fHz", m.FrequencyHz)
			}
			t.AppendRow(table.Row{
				i + 1,
				s.Label,
				m.Samples,
				m.Counts.Rising,
				m.Counts.Falling,
				freq,
				fmt.Sprintf("%.2f%%", m.DutyCyclePct),
			})
		}
	}
	return t.Render()
}

func initAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	path := c.String("config")
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
