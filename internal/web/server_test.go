package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/status"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

var testCfg = waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 2, DutyCyclePct: 25}

func newTestServer(t *testing.T, csvPath string) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Backend:  "fake",
		Duration: time.Minute,
		Cadence:  10 * time.Millisecond,
		Capacity: 6000,
		CSVPath:  csvPath,
		Broker:   "tcp://192.168.1.200:1883",
		HTTPAddr: ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, csvPath, zaptest.NewLogger(t).Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func writeRecording(t *testing.T, path string) {
	t.Helper()
	res := &session.Result{
		Reason:     session.ReasonDuration,
		Resolution: clock.Millisecond,
		Channels: []session.ChannelResult{{
			Config: testCfg,
			Samples: []waveform.Sample{
				{Elapsed: 0, FrequencyHz: 2, DutyCyclePct: 25, On: true},
				{Elapsed: 10 * time.Millisecond, FrequencyHz: 2, DutyCyclePct: 25, On: false},
			},
		}},
	}
	if err := csvsink.New(path, nil, nil).WriteSession(res); err != nil {
		t.Fatalf("write recording: %v", err)
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, "")
	tr.Observe(session.Transition{From: session.StateIdle, To: session.StateRunning, Channels: []waveform.Config{testCfg}})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.State != "RUNNING" {
		t.Errorf("State: got %q, want RUNNING", sj.Status.State)
	}
	if len(sj.Status.Channels) != 1 || sj.Status.Channels[0].FrequencyHz != 2 {
		t.Errorf("Channels: got %+v", sj.Status.Channels)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.Capacity != 6000 {
		t.Errorf("Config.Capacity: got %d, want 6000", sj.Status.Config.Capacity)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, "")
	tr.Observe(session.Transition{From: session.StateRunning, To: session.StateAborted, Err: errors.New("line busy")})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"PWM Recorder", "ABORTED", "line busy", "tcp://192.168.1.200:1883"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(string(body), "/plot.png") {
		t.Error("plot should not be linked without a CSV path")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, "")

	for _, path := range []string{"/nonexistent", "/plot.png"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 404 {
			t.Errorf("%s: got %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestPlotEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "displayPlot.csv")
	ts, tr := newTestServer(t, path)

	resp, err := http.Get(ts.URL + "/plot.png")
	if err != nil {
		t.Fatalf("GET /plot.png: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("before recording: got %d, want 404", resp.StatusCode)
	}

	writeRecording(t, path)

	resp, err = http.Get(ts.URL + "/plot.png")
	if err != nil {
		t.Fatalf("GET /plot.png: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type: got %q, want image/png", ct)
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	tr.Observe(session.Transition{From: session.StateIdle, To: session.StateRunning})
	resp, err = http.Get(ts.URL + "/plot.png")
	if err != nil {
		t.Fatalf("GET /plot.png: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("during session: got %d, want 503", resp.StatusCode)
	}
}

func TestPlotEndpointUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "displayPlot.csv")
	if err := os.WriteFile(path, []byte("not,a,recording\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts, _ := newTestServer(t, path)

	resp, err := http.Get(ts.URL + "/plot.png")
	if err != nil {
		t.Fatalf("GET /plot.png: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 500 {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, "")

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE initially", sj1.Status.State)
	}
	if sj1.Status.LastSession != nil {
		t.Error("expected no last session initially")
	}

	tr.Observe(session.Transition{
		From:    session.StateDraining,
		To:      session.StateDone,
		Elapsed: time.Second,
		Result:  &session.Result{Reason: session.ReasonCapacity, Channels: []session.ChannelResult{{Samples: make([]waveform.Sample, 100)}}},
	})
	tr.SetIdle()
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.SessionsCompleted != 1 {
		t.Errorf("SessionsCompleted: got %d, want 1", sj2.Status.SessionsCompleted)
	}
	if sj2.Status.LastSession == nil || sj2.Status.LastSession.Reason != "CAPACITY" {
		t.Errorf("LastSession: got %+v", sj2.Status.LastSession)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
