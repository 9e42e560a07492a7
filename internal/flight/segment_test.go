package flight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSeries builds a series at the given rate with a throttle trace produced
// by fn(t seconds).
func newSeries(t *testing.T, rate, duration float64, fn func(float64) float64) *TimeSeries {
	t.Helper()

	n := int(duration * rate)
	ts := &TimeSeries{
		Time:     make([]float64, n),
		Throttle: make([]float64, n),
	}
	for _, a := range Axes {
		ts.Setpoint[a] = make([]float64, n)
		ts.Gyro[a] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		tt := float64(i) / rate
		ts.Time[i] = tt
		ts.Throttle[i] = fn(tt)
	}
	require.Greater(t, ts.DeriveSampleRate(), 0.0)
	return ts
}

func TestDetectSegments_Basic(t *testing.T) {
	// Throttle up between 2s and 12s, idle elsewhere.
	ts := newSeries(t, 100, 20, func(tt float64) float64 {
		if tt >= 2 && tt < 12 {
			return 1600
		}
		return 1050
	})

	segs := DetectSegments(ts, DefaultSegmentConfig())
	require.Len(t, segs, 1)
	assert.InDelta(t, 2.0, segs[0].StartTime(), 0.05)
	assert.InDelta(t, 10.0, segs[0].Duration(), 0.3)
}

func TestDetectSegments_Invariants(t *testing.T) {
	// Three bursts of activity separated by idle periods, one too short.
	ts := newSeries(t, 100, 60, func(tt float64) float64 {
		switch {
		case tt >= 2 && tt < 12:
			return 1700
		case tt >= 20 && tt < 22: // shorter than MinDuration
			return 1700
		case tt >= 30 && tt < 50:
			return 1500
		default:
			return 1000
		}
	})

	cfg := DefaultSegmentConfig()
	segs := DetectSegments(ts, cfg)
	require.Len(t, segs, 2)

	for i, seg := range segs {
		assert.GreaterOrEqual(t, seg.Duration(), cfg.MinDuration, "segment %d too short", i)
		if i > 0 {
			assert.GreaterOrEqual(t, seg.Start, segs[i-1].End, "segments overlap or are unordered")
		}
		// Union is a subset of above-threshold activity (up to hysteresis
		// and debounce at the boundaries).
		for j := seg.Start; j < seg.End; j++ {
			assert.GreaterOrEqual(t, ts.Throttle[j], cfg.ActivationThreshold-cfg.Hysteresis)
		}
	}
}

func TestDetectSegments_HysteresisFlutter(t *testing.T) {
	// Throttle oscillates tightly around the threshold mid-flight; the
	// debounce must hold the segment together.
	ts := newSeries(t, 100, 20, func(tt float64) float64 {
		if tt < 2 || tt >= 18 {
			return 1000
		}
		if tt >= 9 && tt < 9.1 { // 100ms dip, shorter than debounce
			return 1260
		}
		return 1600
	})

	segs := DetectSegments(ts, DefaultSegmentConfig())
	require.Len(t, segs, 1)
	assert.InDelta(t, 16.0, segs[0].Duration(), 0.5)
}

func TestDetectSegments_GapSplits(t *testing.T) {
	ts := newSeries(t, 100, 30, func(tt float64) float64 { return 1600 })
	// Carve a 1s recording gap at the middle.
	mid := ts.Len() / 2
	for i := mid; i < ts.Len(); i++ {
		ts.Time[i] += 1.0
	}

	segs := DetectSegments(ts, DefaultSegmentConfig())
	require.Len(t, segs, 2)
	assert.Equal(t, mid, segs[0].End)
	assert.Equal(t, mid, segs[1].Start)
}

func TestDetectSegments_NoActivity(t *testing.T) {
	ts := newSeries(t, 100, 30, func(tt float64) float64 { return 1100 })
	segs := DetectSegments(ts, DefaultSegmentConfig())
	assert.Empty(t, segs)
}

func TestSegment_ErrorTrace(t *testing.T) {
	ts := newSeries(t, 100, 10, func(tt float64) float64 { return 1600 })
	for i := range ts.Time {
		ts.Setpoint[Roll][i] = 50
		ts.Gyro[Roll][i] = 45
	}
	seg := Segment{Series: ts, Start: 0, End: ts.Len()}

	errTrace := seg.Error(Roll)
	require.Len(t, errTrace, ts.Len())
	for _, e := range errTrace {
		assert.InDelta(t, 5.0, e, 1e-12)
	}
}
