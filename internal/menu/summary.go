package menu

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sweeney/pwm-recorder/internal/logic"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// SummaryTable renders one row per channel of a finished session, with the
// frequency and duty measured from the samples next to the configured ones.
func SummaryTable(res *session.Result, labels map[waveform.Channel]string) string {
	t := table.NewWriter()
	t.SetTitle("Session %s after %v", res.Reason, res.Elapsed)
	t.AppendHeader(table.Row{"LED", "Frequency", "Duty Cycle", "Samples", "ON Samples", "Toggles", "Measured"})
	for _, c := range res.Channels {
		label := labels[c.Config.Channel]
		if label == "" {
			label = string(c.Config.Channel)
		}
		m := logic.Measure(c.Config.Channel, c.Samples, 0)
		t.AppendRow(table.Row{
			label,
			fmt.Sprintf("%gHz", c.Config.FrequencyHz),
			fmt.Sprintf("%.2f%%", c.Config.DutyCyclePct),
			len(c.Samples),
			c.OnSamples(),
			c.Toggles,
			measured(m),
		})
	}
	return t.Render()
}

// Summary prints the session summary to the menu's output.
func (m *Menu) Summary(res *session.Result) {
	fmt.Fprintln(m.out, SummaryTable(res, m.labels))
}

func measured(m logic.Measurement) string {
	if m.FrequencyHz == 0 {
		return fmt.Sprintf("%.2f%%", m.DutyCyclePct)
	}
	return fmt.Sprintf("%.2fHz %.2f%%", m.FrequencyHz, m.DutyCyclePct)
}
