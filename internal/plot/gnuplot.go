package plot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sweeney/pwm-recorder/internal/csvsink"
)

// GnuplotCommand is the program RunGnuplot starts.
var GnuplotCommand = []string{"gnuplot", "-persistent"}

// Screen fractions for the multiplot panels.
const (
	screenTop    = 0.85
	screenBottom = 0.1
)

// GnuplotScript writes a multiplot script with one step panel per series
// and inline data. Only the bottom panel carries X tics.
func GnuplotScript(w io.Writer, t *csvsink.Table) error {
	if err := check(t); err != nil {
		return err
	}
	unit := float64(t.Resolution.Unit())
	n := len(t.Series)
	height := (screenTop - screenBottom) / float64(n)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "set multiplot layout %d, 1\n", n)
	for i, s := range t.Series {
		top := screenTop - float64(i)*height
		last := i == n-1

		fmt.Fprintf(bw, "set title '%s'\n", quote(s.Label))
		if last {
			fmt.Fprintf(bw, "set border 3\n")
		} else {
			fmt.Fprintf(bw, "set border 2\n")
		}
		fmt.Fprintf(bw, "set tmargin at screen %.2f\n", top)
		fmt.Fprintf(bw, "set bmargin at screen %.2f\n", top-height)
		fmt.Fprintf(bw, "set yrange [%.1f:%.1f]\n", yMin, yMax)
		fmt.Fprintf(bw, "set ytics 0,1\n")
		if last {
			fmt.Fprintf(bw, "set xtics auto\n")
			fmt.Fprintf(bw, "set tics nomirror\n")
			fmt.Fprintf(bw, "set xlabel 'Elapsed (%s)'\n", t.Resolution)
		} else {
			fmt.Fprintf(bw, "unset xtics\n")
		}
		fmt.Fprintf(bw, "plot '-' with steps notitle\n")
		for _, smp := range s.Samples {
			state := 0
			if smp.On {
				state = 1
			}
			fmt.Fprintf(bw, "%s %d\n", strconv.FormatFloat(float64(smp.Elapsed)/unit, 'f', -1, 64), state)
		}
		fmt.Fprintf(bw, "e\n")
	}
	fmt.Fprintf(bw, "unset multiplot\n")
	return bw.Flush()
}

// quote escapes s for a single-quoted gnuplot string, where a quote is
// written twice.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// RunGnuplot pipes the script for t into a gnuplot process and waits for
// it to exit.
func RunGnuplot(ctx context.Context, t *csvsink.Table) error {
	if err := check(t); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, GnuplotCommand[0], GnuplotCommand[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("gnuplot stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start gnuplot: %w", err)
	}

	werr := GnuplotScript(stdin, t)
	if cerr := stdin.Close(); werr == nil {
		werr = cerr
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("gnuplot: %w", err)
	}
	if werr != nil {
		return fmt.Errorf("write gnuplot script: %w", werr)
	}
	return nil
}
