package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pwm-recorder/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s string) string {
		switch s {
		case "RUNNING", "DRAINING":
			return "on"
		case "ABORTED":
			return "unknown"
		}
		return "off"
	},
	"orNone": func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PWM Recorder</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
img { max-width: 100%; }
</style>
</head>
<body>
<h1>PWM Recorder</h1>

<h2>Session</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateClass (printf "%s" .State)}}">{{.State}}</td></tr>
{{range .Channels}}<tr><th>Channel {{.Channel}}</th><td>{{printf "%g" .FrequencyHz}}Hz at {{printf "%.2f" .DutyCyclePct}}%</td></tr>
{{end}}</table>

<h2>Last Session</h2>
<table>
{{with .Last}}<tr><th>Outcome</th><td class="{{stateClass (printf "%s" .State)}}">{{.State}}{{if .Reason}} ({{.Reason}}){{end}}</td></tr>
<tr><th>Elapsed</th><td>{{.Elapsed}}</td></tr>
<tr><th>Samples</th><td>{{.Samples}}</td></tr>
{{if .Err}}<tr><th>Error</th><td>{{.Err}}</td></tr>{{end}}
<tr><th>Finished</th><td>{{.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Outcome</th><td class="off">none</td></tr>
{{end}}<tr><th>Completed</th><td>{{.Completed}}</td></tr>
<tr><th>Aborted</th><td>{{.Aborted}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orNone .Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Duration</th><td>{{.Config.Duration}}</td></tr>
<tr><th>Cadence</th><td>{{.Config.Cadence}}</td></tr>
<tr><th>Capacity</th><td>{{.Config.Capacity}}</td></tr>
<tr><th>CSV</th><td>{{orNone .Config.CSVPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

{{if .Plot}}<h2>Waveform</h2>
<p><img src="/plot.png" alt="last recorded waveform"></p>
{{end}}<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, withPlot bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Plot   bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Plot:     withPlot,
	}
	return indexTmpl.Execute(w, data)
}
