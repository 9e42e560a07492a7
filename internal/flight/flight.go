// Package flight defines the decoded telemetry data model shared by every
// analysis stage: time-aligned setpoint, gyro and throttle traces per axis,
// and the flight segments carved out of them.
package flight

import (
	"fmt"
	"sort"
	"time"
)

// Axis identifies one of the three rotational axes of the craft.
type Axis int

const (
	Roll Axis = iota
	Pitch
	Yaw

	// NumAxes is the number of rotational axes in a log.
	NumAxes = 3
)

// Axes lists all axes in canonical order.
var Axes = [NumAxes]Axis{Roll, Pitch, Yaw}

func (a Axis) String() string {
	switch a {
	case Roll:
		return "roll"
	case Pitch:
		return "pitch"
	case Yaw:
		return "yaw"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ParseAxis converts an axis name ("roll", "pitch", "yaw") to an Axis.
func ParseAxis(s string) (Axis, error) {
	for _, a := range Axes {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown axis '%s'", s)
}

// Sample is a read-only view of one log row.
type Sample struct {
	Time     float64           // Seconds since log start
	Setpoint [NumAxes]float64  // Commanded rate in deg/s
	Gyro     [NumAxes]float64  // Measured rate in deg/s
	Throttle float64           // Raw RC throttle units (typically 1000-2000)
	PTerm    *[NumAxes]float64 // Optional PID debug terms, nil when the log
	ITerm    *[NumAxes]float64 // was recorded without debug fields
	DTerm    *[NumAxes]float64
}

// TimeSeries holds a decoded log in column form. Timestamps are strictly
// increasing; the series is immutable once built.
type TimeSeries struct {
	Time     []float64          // Seconds since log start
	Setpoint [NumAxes][]float64 // deg/s per axis
	Gyro     [NumAxes][]float64 // deg/s per axis
	Throttle []float64          // Raw RC units

	// Optional per-axis PID debug terms. A nil slice means the column was
	// absent from the log.
	PTerm [NumAxes][]float64
	ITerm [NumAxes][]float64
	DTerm [NumAxes][]float64

	// SampleRate is the nominal rate in Hz, derived from the median
	// inter-sample interval. Logs may be slightly irregular; per-window
	// computations use this nominal value.
	SampleRate float64
}

// Len returns the number of samples in the series.
func (ts *TimeSeries) Len() int { return len(ts.Time) }

// Duration returns the covered time span in seconds.
func (ts *TimeSeries) Duration() float64 {
	if len(ts.Time) < 2 {
		return 0
	}
	return ts.Time[len(ts.Time)-1] - ts.Time[0]
}

// At returns a Sample view of row i.
func (ts *TimeSeries) At(i int) Sample {
	s := Sample{
		Time:     ts.Time[i],
		Throttle: ts.Throttle[i],
	}
	for _, a := range Axes {
		s.Setpoint[a] = ts.Setpoint[a][i]
		s.Gyro[a] = ts.Gyro[a][i]
	}
	if ts.PTerm[Roll] != nil {
		var p [NumAxes]float64
		for _, a := range Axes {
			p[a] = ts.PTerm[a][i]
		}
		s.PTerm = &p
	}
	if ts.ITerm[Roll] != nil {
		var v [NumAxes]float64
		for _, a := range Axes {
			v[a] = ts.ITerm[a][i]
		}
		s.ITerm = &v
	}
	if ts.DTerm[Roll] != nil {
		var d [NumAxes]float64
		for _, a := range Axes {
			d[a] = ts.DTerm[a][i]
		}
		s.DTerm = &d
	}
	return s
}

// DeriveSampleRate computes the nominal sample rate from the median
// inter-sample interval and stores it on the series. Returns the rate in Hz,
// or 0 if the series is too short.
func (ts *TimeSeries) DeriveSampleRate() float64 {
	if len(ts.Time) < 2 {
		return 0
	}
	dts := make([]float64, 0, len(ts.Time)-1)
	for i := 1; i < len(ts.Time); i++ {
		dts = append(dts, ts.Time[i]-ts.Time[i-1])
	}
	sort.Float64s(dts)
	median := dts[len(dts)/2]
	if median <= 0 {
		return 0
	}
	ts.SampleRate = 1 / median
	return ts.SampleRate
}

// Segment is a half-open index range [Start, End) of a TimeSeries during
// which the craft was actively flying. Segments reference the series they
// slice; they never copy sample data.
type Segment struct {
	Series *TimeSeries
	Start  int // Inclusive sample index
	End    int // Exclusive sample index
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	if s.Len() < 2 {
		return 0
	}
	return s.Series.Time[s.End-1] - s.Series.Time[s.Start]
}

// StartTime returns the segment start in seconds since log start.
func (s Segment) StartTime() float64 { return s.Series.Time[s.Start] }

// EndTime returns the time of the last sample in the segment.
func (s Segment) EndTime() float64 { return s.Series.Time[s.End-1] }

// Time returns the segment's timestamp slice.
func (s Segment) Time() []float64 { return s.Series.Time[s.Start:s.End] }

// Setpoint returns the segment's setpoint trace for one axis, in deg/s.
func (s Segment) Setpoint(a Axis) []float64 { return s.Series.Setpoint[a][s.Start:s.End] }

// Gyro returns the segment's gyro trace for one axis, in deg/s.
func (s Segment) Gyro(a Axis) []float64 { return s.Series.Gyro[a][s.Start:s.End] }

// Error returns the freshly computed tracking error (setpoint - gyro) for
// one axis. The returned slice is owned by the caller.
func (s Segment) Error(a Axis) []float64 {
	sp := s.Setpoint(a)
	gy := s.Gyro(a)
	out := make([]float64, len(sp))
	for i := range sp {
		out[i] = sp[i] - gy[i]
	}
	return out
}

// GoDuration returns the segment duration as a time.Duration, for logging.
func (s Segment) GoDuration() time.Duration {
	return time.Duration(s.Duration() * float64(time.Second))
}
