// Package menu implements the console prompts of the lab device: turn
// both LEDs off or on, configure a blink session, or exit.
package menu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// ErrClosed is returned when the input ends.
var ErrClosed = errors.New("menu input closed")

// Action is a main menu selection.
type Action int

const (
	ActionOff Action = iota
	ActionOn
	ActionBlink
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionOff:
		return "off"
	case ActionOn:
		return "on"
	case ActionBlink:
		return "blink"
	case ActionExit:
		return "exit"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Choice is what the user asked for. Configs is set for ActionBlink only.
type Choice struct {
	Action  Action
	Configs []waveform.Config
}

const invalidInput = "Invalid Input. Try Again..."

// Menu prompts on out and reads answers line by line from in.
type Menu struct {
	in     *bufio.Scanner
	out    io.Writer
	labels map[waveform.Channel]string
	maxHz  int
	errs   *color.Color
}

// New creates a Menu. labels names the LEDs; maxHz bounds the frequency
// prompt.
func New(in io.Reader, out io.Writer, labels map[waveform.Channel]string, maxHz float64) *Menu {
	if maxHz <= 0 {
		maxHz = waveform.DefaultMaxFrequencyHz
	}
	return &Menu{
		in:     bufio.NewScanner(in),
		out:    out,
		labels: labels,
		maxHz:  int(maxHz),
		errs:   color.New(color.FgRed, color.Bold),
	}
}

// DisableColor turns off ANSI colour codes in error messages.
func (m *Menu) DisableColor() {
	m.errs.DisableColor()
}

func (m *Menu) label(ch waveform.Channel) string {
	if l, ok := m.labels[ch]; ok && l != "" {
		return l + " LED"
	}
	return "LED " + string(ch)
}

// Next shows the main menu until the user makes a complete choice. A
// blink configuration that is not confirmed returns to the main menu.
func (m *Menu) Next() (Choice, error) {
	for {
		sel, err := m.selectMain()
		if err != nil {
			return Choice{}, err
		}
		if sel != ActionBlink {
			return Choice{Action: sel}, nil
		}

		cfgs, ok, err := m.blink()
		if err != nil {
			return Choice{}, err
		}
		if ok {
			return Choice{Action: ActionBlink, Configs: cfgs}, nil
		}
	}
}

func (m *Menu) selectMain() (Action, error) {
	for {
		fmt.Fprintf(m.out, "\n===== LAB STUDENT DEVICE =====\n\n")
		fmt.Fprintf(m.out, "[0] Turn off both LEDs\n")
		fmt.Fprintf(m.out, "[1] Turn on both LEDs\n")
		fmt.Fprintf(m.out, "[2] Blink LED\n")
		fmt.Fprintf(m.out, "[3] Exit\n")
		n, err := m.readInt("\nYour Selection: ")
		if err != nil {
			return 0, err
		}
		if n >= int(ActionOff) && n <= int(ActionExit) {
			return Action(n), nil
		}
		m.invalid()
	}
}

// blink walks the blink prompts. ok is false when the user declines the
// confirmation.
func (m *Menu) blink() ([]waveform.Config, bool, error) {
	fmt.Fprintf(m.out, "\nBlink...\n")

	first, err := m.selectChannel()
	if err != nil {
		return nil, false, err
	}
	cfg, err := m.channelConfig(first)
	if err != nil {
		return nil, false, err
	}
	cfgs := []waveform.Config{cfg}

	both, err := m.selectCount()
	if err != nil {
		return nil, false, err
	}
	if both {
		fmt.Fprintf(m.out, "\nNow configure the %s.\n", m.label(first.Other()))
		other, err := m.channelConfig(first.Other())
		if err != nil {
			return nil, false, err
		}
		cfgs = append(cfgs, other)
	}

	ok, err := m.confirm(cfgs)
	if err != nil {
		return nil, false, err
	}
	return cfgs, ok, nil
}

func (m *Menu) selectChannel() (waveform.Channel, error) {
	for {
		fmt.Fprintf(m.out, "\nSelect LED to blink.\n\n")
		for i, ch := range waveform.Channels {
			fmt.Fprintf(m.out, "[%d] %s\n", i+1, m.label(ch))
		}
		n, err := m.readInt("\nYour Selection: ")
		if err != nil {
			return "", err
		}
		if n >= 1 && n <= len(waveform.Channels) {
			return waveform.Channels[n-1], nil
		}
		m.invalid()
	}
}

func (m *Menu) channelConfig(ch waveform.Channel) (waveform.Config, error) {
	freq, err := m.frequency(ch)
	if err != nil {
		return waveform.Config{}, err
	}
	duty, err := m.duty(ch)
	if err != nil {
		return waveform.Config{}, err
	}
	return waveform.Config{Channel: ch, FrequencyHz: float64(freq), DutyCyclePct: duty}, nil
}

func (m *Menu) frequency(ch waveform.Channel) (int, error) {
	for {
		fmt.Fprintf(m.out, "\nEnter frequency to blink the %s.\n", m.label(ch))
		fmt.Fprintf(m.out, "Enter whole numbers between 1 to %d\n", m.maxHz)
		n, err := m.readInt("\nFrequency (Hz): ")
		if err != nil {
			return 0, err
		}
		if n >= 1 && n <= m.maxHz {
			return n, nil
		}
		m.invalid()
	}
}

func (m *Menu) duty(ch waveform.Channel) (float64, error) {
	for {
		fmt.Fprintf(m.out, "\nSelect %s brightness during blink.\n", m.label(ch))
		fmt.Fprintf(m.out, "Enter any numbers between 0 to 100\n")
		line, err := m.readLine("Brightness (%): ")
		if err != nil {
			return 0, err
		}
		v, perr := strconv.ParseFloat(line, 64)
		if perr == nil && v >= 0 && v <= 100 {
			return v, nil
		}
		m.invalid()
	}
}

func (m *Menu) selectCount() (bool, error) {
	for {
		fmt.Fprintf(m.out, "\nChoose your blink choice.\n\n")
		fmt.Fprintf(m.out, "[1] Blink one LED\n")
		fmt.Fprintf(m.out, "[2] Blink both LEDs\n")
		n, err := m.readInt("\nYour Selection: ")
		if err != nil {
			return false, err
		}
		if n == 1 || n == 2 {
			return n == 2, nil
		}
		m.invalid()
	}
}

func (m *Menu) confirm(cfgs []waveform.Config) (bool, error) {
	for {
		fmt.Fprintf(m.out, "\nConfirm your blink configurations.\n\n")
		fmt.Fprintln(m.out, m.configTable(cfgs))
		fmt.Fprintf(m.out, "[1] Confirm Configuration\n")
		fmt.Fprintf(m.out, "[0] Return to Home\n")
		n, err := m.readInt("\nYour Selection: ")
		if err != nil {
			return false, err
		}
		if n == 0 || n == 1 {
			return n == 1, nil
		}
		m.invalid()
	}
}

func (m *Menu) configTable(cfgs []waveform.Config) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"LED", "Frequency", "Brightness"})
	for _, c := range cfgs {
		t.AppendRow(table.Row{
			m.label(c.Channel),
			fmt.Sprintf("%.0fHz", c.FrequencyHz),
			fmt.Sprintf("%.2f%%", c.DutyCyclePct),
		})
	}
	return t.Render()
}

func (m *Menu) invalid() {
	m.errs.Fprintln(m.out, invalidInput)
}

func (m *Menu) readLine(prompt string) (string, error) {
	fmt.Fprint(m.out, prompt)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", ErrClosed
	}
	return strings.TrimSpace(m.in.Text()), nil
}

// readInt returns -1 for anything that is not an integer, so callers
// treat it as out of range.
func (m *Menu) readInt(prompt string) (int, error) {
	line, err := m.readLine(prompt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// Errorf prints a highlighted error line, e.g. a failed session.
func (m *Menu) Errorf(format string, args ...any) {
	m.errs.Fprintf(m.out, format+"\n", args...)
}
