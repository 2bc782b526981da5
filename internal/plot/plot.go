// Package plot draws recorded sessions as stacked step plots, either to a
// PNG with gonum/plot or through an external gnuplot process.
package plot

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"

	"go.uber.org/multierr"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/sweeney/pwm-recorder/internal/csvsink"
)

// ErrEmpty is returned for a table without any samples.
var ErrEmpty = errors.New("nothing to plot")

// Y axis bounds around the 0/1 state levels.
const (
	yMin = -0.5
	yMax = 1.5
)

// Size of one panel in the PNG.
var (
	PanelWidth  = 8 * vg.Inch
	PanelHeight = 2.5 * vg.Inch
)

var palette = []color.Color{
	color.RGBA{G: 160, A: 255},
	color.RGBA{R: 200, A: 255},
}

func check(t *csvsink.Table) error {
	if t == nil || len(t.Series) == 0 || t.Rows() == 0 {
		return ErrEmpty
	}
	return nil
}

// Plots builds one step plot per series, sharing the X range.
func Plots(t *csvsink.Table) ([]*gplot.Plot, error) {
	if err := check(t); err != nil {
		return nil, err
	}
	unit := float64(t.Resolution.Unit())

	var xmax float64
	for _, s := range t.Series {
		if n := len(s.Samples); n > 0 {
			if x := float64(s.Samples[n-1].Elapsed) / unit; x > xmax {
				xmax = x
			}
		}
	}

	plots := make([]*gplot.Plot, len(t.Series))
	for i, s := range t.Series {
		p := gplot.New()
		p.Title.Text = s.Label
		p.Y.Min, p.Y.Max = yMin, yMax
		p.Y.Tick.Marker = gplot.ConstantTicks([]gplot.Tick{{Value: 0, Label: "0"}, {Value: 1, Label: "1"}})
		p.X.Min, p.X.Max = 0, xmax
		if i == len(t.Series)-1 {
			p.X.Label.Text = fmt.Sprintf("Elapsed (%s)", t.Resolution)
		}

		pts := make(plotter.XYs, len(s.Samples))
		for j, smp := range s.Samples {
			pts[j].X = float64(smp.Elapsed) / unit
			if smp.On {
				pts[j].Y = 1
			}
		}
		if len(pts) > 0 {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", s.Label, err)
			}
			line.StepStyle = plotter.PostStep
			line.LineStyle.Width = vg.Points(1)
			line.LineStyle.Color = palette[i%len(palette)]
			p.Add(line)
		}
		plots[i] = p
	}
	return plots, nil
}

// WritePNG renders the table as stacked panels and writes a PNG to w.
func WritePNG(w io.Writer, t *csvsink.Table) error {
	plots, err := Plots(t)
	if err != nil {
		return err
	}

	img := vgimg.New(PanelWidth, PanelHeight*vg.Length(len(plots)))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}

	grid := make([][]*gplot.Plot, len(plots))
	for i, p := range plots {
		grid[i] = []*gplot.Plot{p}
	}
	canvases := gplot.Align(grid, tiles, dc)
	for i, p := range plots {
		p.Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// RenderPNG writes the table to a PNG file at path.
func RenderPNG(t *csvsink.Table, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	bw := bufio.NewWriter(f)
	if err := WritePNG(bw, t); err != nil {
		return err
	}
	return bw.Flush()
}
