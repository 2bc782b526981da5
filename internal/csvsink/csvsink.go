// Package csvsink persists finished sessions as a CSV table that the
// plotting tools read back.
package csvsink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/pwm-recorder/internal/clock"
	"github.com/sweeney/pwm-recorder/internal/session"
	"github.com/sweeney/pwm-recorder/internal/waveform"
)

// DefaultPath is the file the plotting tools look for.
const DefaultPath = "displayPlot.csv"

const columnsPerChannel = 4

// ErrHeaderMismatch is returned when appending to a file whose header
// describes different channels or units.
var ErrHeaderMismatch = errors.New("csv header does not match session")

// Labels names each channel's column group.
type Labels map[waveform.Channel]string

// DefaultLabels returns the LED colours of the lab board.
func DefaultLabels() Labels {
	return Labels{
		waveform.ChannelA: "Green",
		waveform.ChannelB: "Red",
	}
}

func (l Labels) label(ch waveform.Channel) string {
	if name, ok := l[ch]; ok && name != "" {
		return name
	}
	return "Channel " + string(ch)
}

// Header returns the column names for the given channels.
func Header(labels Labels, channels []waveform.Channel, res clock.Resolution) []string {
	var h []string
	for _, ch := range channels {
		name := labels.label(ch)
		h = append(h,
			fmt.Sprintf("%s Elapsed (%s)", name, res),
			name+" Frequency",
			name+" Duty Cycle",
			name+" State",
		)
	}
	return h
}

// Writer writes sessions to a CSV file. It implements session.Sink.
type Writer struct {
	path   string
	labels Labels
	logger *zap.SugaredLogger
}

// New creates a Writer for path. An empty path means DefaultPath.
func New(path string, labels Labels, logger *zap.SugaredLogger) *Writer {
	if path == "" {
		path = DefaultPath
	}
	if labels == nil {
		labels = DefaultLabels()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Writer{path: path, labels: labels, logger: logger}
}

// Path returns the target file.
func (w *Writer) Path() string {
	return w.path
}

// WriteSession appends one row per sample index. The header is written
// only when the file is new or empty.
func (w *Writer) WriteSession(res *session.Result) (err error) {
	channels := make([]waveform.Channel, len(res.Channels))
	for i, c := range res.Channels {
		channels[i] = c.Config.Channel
	}
	header := Header(w.labels, channels, res.Resolution)

	existing, err := readHeader(w.path)
	if err != nil {
		return err
	}
	if existing != nil && !equal(existing, header) {
		return fmt.Errorf("%w: %s has %q, session needs %q", ErrHeaderMismatch, w.path, existing, header)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	cw := csv.NewWriter(f)
	if existing == nil {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	unit := res.Resolution.Unit()
	rows := res.Samples()
	row := make([]string, len(header))
	for i := 0; i < rows; i++ {
		for j, c := range res.Channels {
			cells := row[j*columnsPerChannel : (j+1)*columnsPerChannel]
			if i >= len(c.Samples) {
				for k := range cells {
					cells[k] = ""
				}
				continue
			}
			formatSample(cells, c.Samples[i], unit)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}

	w.logger.Infof("Wrote %d rows for %d channel(s) to %s", rows, len(channels), w.path)
	return nil
}

func formatSample(cells []string, s waveform.Sample, unit time.Duration) {
	cells[0] = strconv.FormatInt(int64(s.Elapsed/unit), 10)
	cells[1] = strconv.FormatFloat(s.FrequencyHz, 'f', -1, 64)
	cells[2] = strconv.FormatFloat(s.DutyCyclePct, 'f', -1, 64)
	if s.On {
		cells[3] = "1"
	} else {
		cells[3] = "0"
	}
}

// readHeader returns nil when the file does not exist or is empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return h, nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != b[i] {
			return false
		}
	}
	return true
}
