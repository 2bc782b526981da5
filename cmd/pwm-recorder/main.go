// Command pwm-recorder blinks LEDs with a software PWM loop and records the
// waveform it drives to CSV.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultConfigPath = "pwm-recorder.yaml"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pwm-recorder",
		Usage: "blink LEDs with software PWM and record the waveform",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: defaultConfigPath, Usage: "YAML configuration file (missing: defaults)"},
			&cli.StringFlag{Name: "backend", Usage: "GPIO backend: fake, gpiocdev or periph"},
			&cli.StringFlag{Name: "broker", Usage: "MQTT broker address (empty disables)"},
			&cli.StringFlag{Name: "http", Usage: "HTTP status address (empty disables)"},
			&cli.StringFlag{Name: "csv", Usage: "recording file"},
			&cli.DurationFlag{Name: "duration", Usage: "session duration cap"},
			&cli.StringFlag{Name: "resolution", Usage: "scheduling resolution: ms or us"},
			&cli.StringFlag{Name: "timing", Usage: "toggle timing: symmetric or legacy"},
			&cli.IntFlag{Name: "cpu", Usage: "pin the session loop to this CPU"},
			&cli.BoolFlag{Name: "debug", Usage: "development logging"},
		},
		Action: menuAction,
		Commands: []*cli.Command{
			{
				Name:   "menu",
				Usage:  "interactive LED menu (default)",
				Action: menuAction,
			},
			{
				Name:  "blink",
				Usage: "run one session without the menu",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "channel", Value: "A", Usage: "first channel: A or B"},
					&cli.Float64Flag{Name: "freq", Value: 1, Usage: "first channel frequency in Hz"},
					&cli.Float64Flag{Name: "duty", Value: 50, Usage: "first channel duty cycle in percent"},
					&cli.Float64Flag{Name: "freq-b", Usage: "second channel frequency in Hz (unset: one channel)"},
					&cli.Float64Flag{Name: "duty-b", Value: 50, Usage: "second channel duty cycle in percent"},
				},
				Action: blinkAction,
			},
			{
				Name:  "plot",
				Usage: "plot the recording",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "PNG file (default from config)"},
					&cli.BoolFlag{Name: "gnuplot", Usage: "open the plot in gnuplot instead"},
					&cli.BoolFlag{Name: "all", Usage: "plot every appended session, not only the last"},
				},
				Action: plotAction,
			},
			{
				Name:  "analyze",
				Usage: "measure frequency and duty of every recorded session",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "debounce", Usage: "ignore levels held for less than this"},
				},
				Action: analyzeAction,
			},
			{
				Name:   "init",
				Usage:  "write the effective configuration to the --config file",
				Action: initAction,
			},
		},
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Sugar(), nil
}
