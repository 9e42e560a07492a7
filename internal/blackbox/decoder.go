package blackbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/droneworks/pidtune/internal/flight"
)

// ErrDecoderNotFound is returned when no blackbox_decode binary could be
// located and a raw log needs decoding.
var ErrDecoderNotFound = errors.New("blackbox_decode binary not found in PATH")

// decoderNames are the binary names probed in PATH, in order.
var decoderNames = []string{"blackbox_decode", "blackbox-decode"}

// Decoder reads Betaflight logs, shelling out to blackbox_decode for raw
// binary logs.
type Decoder struct {
	binary   string // explicit decoder path, empty means probe PATH
	logIndex int    // flight index within a multi-flight .bbl, 1-based
	logger   *slog.Logger
}

// WithLogger sets the logger for the decoder.
func WithLogger(logger *slog.Logger) func(d *Decoder) {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithBinary sets an explicit blackbox_decode path instead of probing PATH.
func WithBinary(path string) func(d *Decoder) {
	return func(d *Decoder) {
		d.binary = path
	}
}

// WithLogIndex selects which flight of a multi-flight log to decode.
func WithLogIndex(index int) func(d *Decoder) {
	return func(d *Decoder) {
		d.logIndex = index
	}
}

// NewDecoder creates a Decoder with a discard logger.
func NewDecoder(options ...func(d *Decoder)) *Decoder {
	d := Decoder{
		logIndex: 1,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Decode reads the log at path into a TimeSeries. Files ending in .csv are
// treated as pre-decoded output and parsed directly; anything else goes
// through blackbox_decode.
func (d *Decoder) Decode(ctx context.Context, path string) (*flight.TimeSeries, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening log: %w", err)
		}
		defer f.Close()

		return parseCSV(f, path)
	}
	return d.decodeRaw(ctx, path)
}

// decodeRaw runs blackbox_decode with --stdout and parses the CSV stream
// as it arrives. Decoder warnings on stderr are logged, not fatal: the
// tool routinely complains about corrupt frames in otherwise usable logs.
func (d *Decoder) decodeRaw(ctx context.Context, path string) (*flight.TimeSeries, error) {
	bin, err := d.resolveBinary()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, bin,
		"--stdout",
		"--index", fmt.Sprint(d.logIndex),
		path)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting %s: %w", bin, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.logStderr(stderr)
	}()

	ts, parseErr := parseCSV(stdout, path)

	// Drain before Wait so the pipe readers see EOF, not a closed fd.
	io.Copy(io.Discard, stdout)
	wg.Wait()

	if err := cmd.Wait(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return nil, fmt.Errorf("%s exited with error: %w", bin, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return ts, nil
}

func (d *Decoder) resolveBinary() (string, error) {
	if d.binary != "" {
		return d.binary, nil
	}
	for _, name := range decoderNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrDecoderNotFound
}

func (d *Decoder) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.logger.Warn(fmt.Sprintf("blackbox_decode >> %s", line))
	}
}
