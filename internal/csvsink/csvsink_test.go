package csvsink

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

func samples(cfg waveform.Config, n int, step time.Duration, onFor int) []waveform.Sample {
	out := make([]waveform.Sample, n)
	for i := range out {
		out[i] = waveform.Sample{
			Elapsed:      time.Duration(i) * step,
			FrequencyHz:  cfg.FrequencyHz,
			DutyCyclePct: cfg.DutyCyclePct,
			On:           i < onFor,
		}
	}
	return out
}

func singleResult() *session.Result {
	cfg := waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 1, DutyCyclePct: 50}
	return &session.Result{
		Reason:     session.ReasonDuration,
		Elapsed:    time.Second,
		Resolution: clock.Millisecond,
		Channels: []session.ChannelResult{
			{Config: cfg, Samples: samples(cfg, 4, 10*time.Millisecond, 2)},
		},
	}
}

func TestHeader(t *testing.T) {
	got := Header(DefaultLabels(), []waveform.Channel{waveform.ChannelA, waveform.ChannelB}, clock.Millisecond)
	want := []string{
		"Green Elapsed (ms)", "Green Frequency", "Green Duty Cycle", "Green State",
		"Red Elapsed (ms)", "Red Frequency", "Red Duty Cycle", "Red State",
	}
	assert.Equal(t, want, got)

	got = Header(Labels{}, []waveform.Channel{waveform.ChannelB}, clock.Microsecond)
	assert.Equal(t, "Channel B Elapsed (us)", got[0])
}

func TestWriteSessionNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	w := New(path, nil, zaptest.NewLogger(t).Sugar())

	require.NoError(t, w.WriteSession(singleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "Green Elapsed (ms),Green Frequency,Green Duty Cycle,Green State\n" +
		"0,1,50,1\n" +
		"10,1,50,1\n" +
		"20,1,50,0\n" +
		"30,1,50,0\n"
	assert.Equal(t, want, string(data))
}

func TestWriteSessionAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.csv")
	w := New(path, nil, nil)

	require.NoError(t, w.WriteSession(singleResult()))
	require.NoError(t, w.WriteSession(singleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 9)
	assert.Equal(t, 1, strings.Count(string(data), "Elapsed"))
}

func TestWriteSessionHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.csv")
	require.NoError(t, os.WriteFile(path, []byte("Iterations,Frequency\n1,2\n"), 0o644))

	err := New(path, nil, nil).WriteSession(singleResult())
	assert.True(t, errors.Is(err, ErrHeaderMismatch))

	data, _ := os.ReadFile(path)
	assert.Equal(t, "Iterations,Frequency\n1,2\n", string(data), "file untouched")
}

func TestWriteSessionEmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, New(path, nil, nil).WriteSession(singleResult()))
	tbl, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Rows())
}

func TestWriteSessionUnwritableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "plot.csv")
	err := New(path, nil, nil).WriteSession(singleResult())
	assert.Error(t, err)
}

func TestRoundTripDualChannel(t *testing.T) {
	a := waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 1, DutyCyclePct: 50}
	b := waveform.Config{Channel: waveform.ChannelB, FrequencyHz: 2.5, DutyCyclePct: 33.33}
	res := &session.Result{
		Reason:     session.ReasonCapacity,
		Resolution: clock.Microsecond,
		Channels: []session.ChannelResult{
			{Config: a, Samples: samples(a, 5, 1500*time.Microsecond, 3)},
			{Config: b, Samples: samples(b, 3, 1500*time.Microsecond, 1)},
		},
	}

	path := filepath.Join(t.TempDir(), "plot.csv")
	require.NoError(t, New(path, nil, nil).WriteSession(res))

	tbl, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, clock.Microsecond, tbl.Resolution)
	require.Len(t, tbl.Series, 2)
	assert.Equal(t, "Green", tbl.Series[0].Label)
	assert.Equal(t, "Red", tbl.Series[1].Label)

	assert.Equal(t, res.Channels[0].Samples, tbl.Series[0].Samples)
	assert.Equal(t, res.Channels[1].Samples, tbl.Series[1].Samples, "short channel leaves blank cells")
	assert.Equal(t, 5, tbl.Rows())
}

func TestRoundTripPreservesDutyPrecision(t *testing.T) {
	for _, duty := range []float64{33.333, 100.0 / 3, 12.5, 0.001} {
		cfg := waveform.Config{Channel: waveform.ChannelA, FrequencyHz: 7, DutyCyclePct: duty}
		res := &session.Result{
			Reason:     session.ReasonDuration,
			Resolution: clock.Millisecond,
			Channels: []session.ChannelResult{
				{Config: cfg, Samples: samples(cfg, 3, 10*time.Millisecond, 1)},
			},
		}

		path := filepath.Join(t.TempDir(), "plot.csv")
		require.NoError(t, New(path, nil, nil).WriteSession(res))

		tbl, err := Read(path)
		require.NoError(t, err)
		require.Len(t, tbl.Series, 1)
		assert.Equal(t, res.Channels[0].Samples, tbl.Series[0].Samples, "duty %v", duty)
	}
}

func TestRoundTripTruncatesToResolution(t *testing.T) {
	res := singleResult()
	res.Channels[0].Samples[1].Elapsed = 10*time.Millisecond + 700*time.Microsecond

	path := filepath.Join(t.TempDir(), "plot.csv")
	require.NoError(t, New(path, nil, nil).WriteSession(res))

	tbl, err := Read(path)
	require.NoError(t, err)
	got := tbl.Series[0].Samples[1].Elapsed
	assert.InDelta(t, float64(res.Channels[0].Samples[1].Elapsed), float64(got), float64(time.Millisecond))
}

func TestSessionsSplitsAppendedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.csv")
	w := New(path, nil, nil)
	require.NoError(t, w.WriteSession(singleResult()))
	require.NoError(t, w.WriteSession(singleResult()))

	tbl, err := Read(path)
	require.NoError(t, err)
	parts := tbl.Sessions()
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.Equal(t, 4, p.Rows())
		assert.Equal(t, time.Duration(0), p.Series[0].Samples[0].Elapsed)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong column count", "a,b,c\n"},
		{"not elapsed", "Green,Green Frequency,Green Duty Cycle,Green State\n"},
		{"bad unit", "Green Elapsed (s),Green Frequency,Green Duty Cycle,Green State\n"},
		{"bad state", "Green Elapsed (ms),Green Frequency,Green Duty Cycle,Green State\n0,1,50.00,2\n"},
		{"bad number", "Green Elapsed (ms),Green Frequency,Green Duty Cycle,Green State\nx,1,50.00,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}
