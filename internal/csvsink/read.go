package csvsink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// Series is one channel's column group read back from a file.
type Series struct {
	Label   string
	Samples []waveform.Sample
}

// Table is a parsed CSV file. Files that had several sessions appended
// hold them back to back; Sessions splits them.
type Table struct {
	Resolution clock.Resolution
	Series     []Series
}

// Rows returns the longest series length.
func (t *Table) Rows() int {
	n := 0
	for _, s := range t.Series {
		if len(s.Samples) > n {
			n = len(s.Samples)
		}
	}
	return n
}

// Sessions splits the table wherever elapsed time goes backwards.
func (t *Table) Sessions() []*Table {
	var out []*Table
	start := 0
	rows := t.Rows()
	for i := 1; i <= rows; i++ {
		if i < rows && !t.restartsAt(i) {
			continue
		}
		part := &Table{Resolution: t.Resolution}
		for _, s := range t.Series {
			lo, hi := clamp(start, len(s.Samples)), clamp(i, len(s.Samples))
			part.Series = append(part.Series, Series{Label: s.Label, Samples: s.Samples[lo:hi]})
		}
		out = append(out, part)
		start = i
	}
	return out
}

func (t *Table) restartsAt(i int) bool {
	for _, s := range t.Series {
		if i < len(s.Samples) && s.Samples[i].Elapsed < s.Samples[i-1].Elapsed {
			return true
		}
	}
	return false
}

func clamp(i, n int) int {
	if i > n {
		return n
	}
	return i
}

// Read parses a file written by Writer.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads a table from r.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 || len(header)%columnsPerChannel != 0 {
		return nil, fmt.Errorf("header has %d columns, want a multiple of %d", len(header), columnsPerChannel)
	}

	t := &Table{}
	for i := 0; i < len(header); i += columnsPerChannel {
		label, res, err := parseElapsedColumn(header[i])
		if err != nil {
			return nil, err
		}
		if i == 0 {
			t.Resolution = res
		} else if res != t.Resolution {
			return nil, fmt.Errorf("column %q: mixed resolutions", header[i])
		}
		t.Series = append(t.Series, Series{Label: label})
	}

	unit := t.Resolution.Unit()
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for j := range t.Series {
			cells := rec[j*columnsPerChannel : (j+1)*columnsPerChannel]
			if cells[0] == "" {
				continue
			}
			s, err := parseSample(cells, unit)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			t.Series[j].Samples = append(t.Series[j].Samples, s)
		}
	}
	return t, nil
}

// parseElapsedColumn splits "Green Elapsed (ms)" into its label and unit.
func parseElapsedColumn(col string) (string, clock.Resolution, error) {
	col = strings.TrimSpace(col)
	i := strings.LastIndex(col, " Elapsed (")
	if i < 0 || !strings.HasSuffix(col, ")") {
		return "", 0, fmt.Errorf("column %q is not an elapsed column", col)
	}
	unit := col[i+len(" Elapsed (") : len(col)-1]
	res, err := clock.ParseResolution(unit)
	if err != nil {
		return "", 0, fmt.Errorf("column %q: %w", col, err)
	}
	return col[:i], res, nil
}

func parseSample(cells []string, unit time.Duration) (waveform.Sample, error) {
	var s waveform.Sample
	elapsed, err := strconv.ParseInt(strings.TrimSpace(cells[0]), 10, 64)
	if err != nil {
		return s, fmt.Errorf("elapsed %q: %w", cells[0], err)
	}
	s.Elapsed = time.Duration(elapsed) * unit
	if s.FrequencyHz, err = strconv.ParseFloat(strings.TrimSpace(cells[1]), 64); err != nil {
		return s, fmt.Errorf("frequency %q: %w", cells[1], err)
	}
	if s.DutyCyclePct, err = strconv.ParseFloat(strings.TrimSpace(cells[2]), 64); err != nil {
		return s, fmt.Errorf("duty cycle %q: %w", cells[2], err)
	}
	switch strings.TrimSpace(cells[3]) {
	case "1":
		s.On = true
	case "0":
	default:
		return s, fmt.Errorf("state %q is not 0 or 1", cells[3])
	}
	return s, nil
}
