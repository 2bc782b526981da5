package plot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/csvsink"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

func series(label string, states ...bool) csvsink.Series {
	s := csvsink.Series{Label: label}
	for i, on := range states {
		s.Samples = append(s.Samples, waveform.Sample{
			Elapsed:      time.Duration(i) * 10 * time.Millisecond,
			FrequencyHz:  1,
			DutyCyclePct: 50,
			On:           on,
		})
	}
	return s
}

func dualTable() *csvsink.Table {
	return &csvsink.Table{
		Resolution: clock.Millisecond,
		Series: []csvsink.Series{
			series("Green", true, true, false, false),
			series("Red", true, false, false),
		},
	}
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestGnuplotScript(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GnuplotScript(&buf, dualTable()))
	script := buf.String()

	assert.True(t, strings.HasPrefix(script, "set multiplot layout 2, 1\n"))
	assert.True(t, strings.HasSuffix(script, "e\nunset multiplot\n"))
	assert.Contains(t, script, "set title 'Green'\n")
	assert.Contains(t, script, "set title 'Red'\n")
	assert.Equal(t, 2, strings.Count(script, "set yrange [-0.5:1.5]\n"))
	assert.Equal(t, 1, strings.Count(script, "unset xtics\n"), "only the top panel hides X tics")
	assert.Contains(t, script, "0 1\n10 1\n20 0\n30 0\ne\n")
	assert.Contains(t, script, "0 1\n10 0\n20 0\ne\n")
	assert.Contains(t, script, "set xlabel 'Elapsed (ms)'\n")
}

func TestGnuplotScriptSingleSeries(t *testing.T) {
	tbl := &csvsink.Table{Resolution: clock.Microsecond, Series: []csvsink.Series{series("Green", true, false)}}

	var buf bytes.Buffer
	require.NoError(t, GnuplotScript(&buf, tbl))
	script := buf.String()

	assert.Contains(t, script, "set multiplot layout 1, 1\n")
	assert.Contains(t, script, "set tmargin at screen 0.85\nset bmargin at screen 0.10\n")
	assert.Contains(t, script, "10000 0\n", "elapsed in microseconds")
	assert.NotContains(t, script, "unset xtics")
}

func TestGnuplotScriptQuotesLabel(t *testing.T) {
	tbl := &csvsink.Table{Resolution: clock.Millisecond, Series: []csvsink.Series{series("Bob's LED", true, false)}}

	var buf bytes.Buffer
	require.NoError(t, GnuplotScript(&buf, tbl))
	assert.Contains(t, buf.String(), "set title 'Bob''s LED'\n")
}

func TestEmptyTable(t *testing.T) {
	empty := &csvsink.Table{Series: []csvsink.Series{{Label: "Green"}}}

	assert.ErrorIs(t, GnuplotScript(&bytes.Buffer{}, empty), ErrEmpty)
	assert.ErrorIs(t, WritePNG(&bytes.Buffer{}, nil), ErrEmpty)
	assert.ErrorIs(t, RunGnuplot(context.Background(), empty), ErrEmpty)
}

func TestPlotsShareXRange(t *testing.T) {
	plots, err := Plots(dualTable())
	require.NoError(t, err)
	require.Len(t, plots, 2)

	for _, p := range plots {
		assert.Equal(t, 0.0, p.X.Min)
		assert.Equal(t, 30.0, p.X.Max)
		assert.Equal(t, -0.5, p.Y.Min)
		assert.Equal(t, 1.5, p.Y.Max)
	}
	assert.Equal(t, "Green", plots[0].Title.Text)
	assert.Empty(t, plots[0].X.Label.Text)
	assert.Equal(t, "Elapsed (ms)", plots[1].X.Label.Text)
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, dualTable()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestRenderPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.png")
	require.NoError(t, RenderPNG(dualTable(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

func TestRunGnuplotPipesScript(t *testing.T) {
	out := filepath.Join(t.TempDir(), "script.gp")
	saved := GnuplotCommand
	GnuplotCommand = []string{"sh", "-c", "cat > " + out}
	t.Cleanup(func() { GnuplotCommand = saved })

	require.NoError(t, RunGnuplot(context.Background(), dualTable()))

	var want bytes.Buffer
	require.NoError(t, GnuplotScript(&want, dualTable()))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(got))
}

func TestRunGnuplotMissingBinary(t *testing.T) {
	saved := GnuplotCommand
	GnuplotCommand = []string{"definitely-not-gnuplot-binary"}
	t.Cleanup(func() { GnuplotCommand = saved })

	assert.Error(t, RunGnuplot(context.Background(), dualTable()))
}
