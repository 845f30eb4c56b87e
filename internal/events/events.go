// Package events records scalar training curves as JSON lines, one file
// per writer, in a run's tensorboard directory.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("event writer closed")

const filePrefix = "events."

// Scalar is one recorded value.
type Scalar struct {
	WallTime float64 `json:"wall_time"`
	Tag      string  `json:"tag"`
	Step     int     `json:"step"`
	Value    float64 `json:"value"`
}

// Writer appends scalars to an event file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// Open creates dir if needed and a fresh event file inside it.
func Open(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create event directory %q", dir)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := fmt.Sprintf("%s%d.%s.%s.pypots", filePrefix, time.Now().Unix(), host, uuid.NewString())
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open event file %q", path)
	}
	w := bufio.NewWriter(f)
	return &Writer{path: path, f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Path returns the event file location.
func (w *Writer) Path() string { return w.path }

// AddScalar records value under tag at step.
func (w *Writer) AddScalar(tag string, value float64, step int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return ErrClosed
	}
	s := Scalar{
		WallTime: float64(time.Now().UnixNano()) / 1e9,
		Tag:      tag,
		Step:     step,
		Value:    value,
	}
	return errors.Wrapf(w.enc.Encode(s), "write scalar %q", tag)
}

// Logged reports whether a result named name is written by LogResults.
func Logged(name string) bool {
	return strings.Contains(name, "loss") || strings.Contains(name, "error")
}

// LogResults writes every loss or error item of results under
// "<stage>/<name>". Other items are skipped.
func (w *Writer) LogResults(step int, stage string, results map[string]float64) error {
	names := make([]string, 0, len(results))
	for name := range results {
		if Logged(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.AddScalar(stage+"/"+name, results[name], step); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered records to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return ErrClosed
	}
	return errors.Wrap(w.w.Flush(), "flush event file")
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush event file")
	}
	return errors.Wrap(closeErr, "close event file")
}

// ReadScalars loads every event file in dir into one series per tag,
// ordered by step.
func ReadScalars(dir string) (map[string][]Scalar, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.pypots"))
	if err != nil {
		return nil, errors.Wrapf(err, "list event files in %q", dir)
	}
	out := make(map[string][]Scalar)
	for _, path := range matches {
		if err := readFile(path, out); err != nil {
			return nil, err
		}
	}
	for tag := range out {
		series := out[tag]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Step < series[j].Step })
	}
	return out, nil
}

func readFile(path string, out map[string][]Scalar) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open event file %q", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var s Scalar
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		out[s.Tag] = append(out[s.Tag], s)
	}
	return errors.Wrapf(sc.Err(), "read event file %q", path)
}
