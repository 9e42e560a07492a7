package blackbox

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/droneworks/pidtune/internal/flight"
)

// columns maps the CSV fields the pipeline needs to their indices in one
// particular log. PID term columns are optional; the rest are required.
type columns struct {
	time     int
	throttle int
	setpoint [flight.NumAxes]int
	gyro     [flight.NumAxes]int

	pterm, iterm, dterm [flight.NumAxes]int
	hasPID              bool
}

func mapColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	var c columns
	var missing []string

	find := func(name string) int {
		i, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	c.time = find(colTime)
	c.throttle = find(colThrottle)
	for a := 0; a < flight.NumAxes; a++ {
		c.setpoint[a] = find(colSetpoint(a))
		c.gyro[a] = find(colGyro(a))
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	c.hasPID = true
	for a := 0; a < flight.NumAxes; a++ {
		var ok [3]bool
		c.pterm[a], ok[0] = idx[colPTerm(a)]
		c.iterm[a], ok[1] = idx[colITerm(a)]
		c.dterm[a], ok[2] = idx[colDTerm(a)]
		if !ok[0] || !ok[1] || !ok[2] {
			c.hasPID = false
		}
	}
	return c, nil
}

// parseCSV reads a decoded log stream into a TimeSeries. Time is converted
// from microseconds to seconds relative to the first sample. A time column
// that runs backwards or repeats a timestamp is fatal: segment detection
// and all spectral math assume strictly increasing samples.
func parseCSV(r io.Reader, path string) (*flight.TimeSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // blackbox_decode pads some rows

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &InputError{Path: path, Reason: "empty file"}
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, &InputError{Path: path, Reason: err.Error()}
	}

	ts := &flight.TimeSeries{}
	if cols.hasPID {
		for a := range flight.Axes {
			ts.PTerm[a] = []float64{}
			ts.ITerm[a] = []float64{}
			ts.DTerm[a] = []float64{}
		}
	}

	var t0 float64
	var prev float64
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", row, err)
		}
		if len(rec) < len(header) {
			continue // truncated tail row
		}

		us, err := field(rec, cols.time)
		if err != nil {
			return nil, &InputError{Path: path,
				Reason: fmt.Sprintf("row %d: bad time value: %s", row, err)}
		}
		if ts.Len() == 0 {
			t0 = us
		} else if us < prev {
			return nil, &InputError{Path: path,
				Reason: fmt.Sprintf("row %d: time runs backwards", row)}
		} else if us == prev {
			return nil, &InputError{Path: path,
				Reason: fmt.Sprintf("row %d: duplicate timestamp", row)}
		}
		prev = us
		ts.Time = append(ts.Time, (us-t0)/1e6)

		thr, err := field(rec, cols.throttle)
		if err != nil {
			return nil, &InputError{Path: path,
				Reason: fmt.Sprintf("row %d: bad throttle value: %s", row, err)}
		}
		ts.Throttle = append(ts.Throttle, thr)

		for _, a := range flight.Axes {
			sp, err := field(rec, cols.setpoint[a])
			if err != nil {
				return nil, &InputError{Path: path,
					Reason: fmt.Sprintf("row %d: bad setpoint[%d]: %s", row, a, err)}
			}
			gy, err := field(rec, cols.gyro[a])
			if err != nil {
				return nil, &InputError{Path: path,
					Reason: fmt.Sprintf("row %d: bad gyroADC[%d]: %s", row, a, err)}
			}
			ts.Setpoint[a] = append(ts.Setpoint[a], sp)
			ts.Gyro[a] = append(ts.Gyro[a], gy)

			if cols.hasPID {
				p, _ := field(rec, cols.pterm[a])
				i, _ := field(rec, cols.iterm[a])
				d, _ := field(rec, cols.dterm[a])
				ts.PTerm[a] = append(ts.PTerm[a], p)
				ts.ITerm[a] = append(ts.ITerm[a], i)
				ts.DTerm[a] = append(ts.DTerm[a], d)
			}
		}
	}

	if ts.Len() < 2 {
		return nil, &InputError{Path: path, Reason: "no data rows"}
	}

	ts.SampleRate = ts.DeriveSampleRate()
	return ts, nil
}

func field(rec []string, i int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
}
