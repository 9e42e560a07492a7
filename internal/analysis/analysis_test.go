package analysis

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/sysid"
)

// makeSegment builds a single active segment of n samples at fs Hz where
// the roll setpoint and gyro are produced per sample by fill.
func makeSegment(n int, fs float64, fill func(i int) (sp, gy float64)) flight.Segment {
	ts := &flight.TimeSeries{SampleRate: fs}
	for i := 0; i < n; i++ {
		sp, gy := fill(i)
		ts.Time = append(ts.Time, float64(i)/fs)
		ts.Throttle = append(ts.Throttle, 1500)
		for _, a := range flight.Axes {
			ts.Setpoint[a] = append(ts.Setpoint[a], 0)
			ts.Gyro[a] = append(ts.Gyro[a], 0)
		}
		ts.Setpoint[flight.Roll][i] = sp
		ts.Gyro[flight.Roll][i] = gy
	}
	return flight.Segment{Series: ts, Start: 0, End: n}
}

func TestTrackingError_PerfectTracking(t *testing.T) {
	seg := makeSegment(1000, 1000, func(i int) (float64, float64) {
		v := 50 * math.Sin(2*math.Pi*float64(i)/500)
		return v, v
	})

	es := TrackingError(seg, flight.Roll)
	assert.Zero(t, es.Mean)
	assert.Zero(t, es.RMS)
	assert.Zero(t, es.Peak)
}

func TestTrackingError_ConstantOffset(t *testing.T) {
	seg := makeSegment(1000, 1000, func(i int) (float64, float64) {
		return 10, 5
	})

	es := TrackingError(seg, flight.Roll)
	assert.InDelta(t, 5, es.Mean, 1e-9)
	assert.InDelta(t, 5, es.RMS, 1e-9)
	assert.InDelta(t, 5, es.Peak, 1e-9)
}

// firstOrder tracks a setpoint with time constant tau seconds.
func firstOrder(fs, tau float64) func(sp float64) float64 {
	alpha := (1 / fs) / (tau + 1/fs)
	var gy float64
	return func(sp float64) float64 {
		gy += alpha * (sp - gy)
		return gy
	}
}

func TestAnalyzeSteps_SingleStep(t *testing.T) {
	const fs = 1000.0
	plant := firstOrder(fs, 0.03)
	seg := makeSegment(3000, fs, func(i int) (float64, float64) {
		var sp float64
		if i >= 1000 {
			sp = 100
		}
		return sp, plant(sp)
	})

	cfg := DefaultConfig().Step
	steps, agg := AnalyzeSteps(seg, flight.Roll, cfg)

	require.Len(t, steps, 1)
	require.True(t, agg.Valid)
	assert.Equal(t, 1, agg.Count)

	s := steps[0]
	assert.InDelta(t, 100, s.Amplitude, 1)
	// A 30 ms first order plant rises in about 2.2 time constants.
	assert.InDelta(t, 0.066, s.RiseTime, 0.02)
	assert.Less(t, s.Overshoot, 2.0)
	assert.Greater(t, s.SettlingTime, 0.0)
	assert.Less(t, math.Abs(s.SteadyError), 2.0)
}

func TestAnalyzeSteps_NoSteps(t *testing.T) {
	seg := makeSegment(2000, 1000, func(i int) (float64, float64) {
		return 10, 10
	})

	steps, agg := AnalyzeSteps(seg, flight.Roll, DefaultConfig().Step)
	assert.Empty(t, steps)
	assert.False(t, agg.Valid)
	assert.Zero(t, agg.Count)
}

func TestAnalyzeSteps_RespectsMinSpacing(t *testing.T) {
	const fs = 1000.0
	plant := firstOrder(fs, 0.02)
	// Two jumps 100 ms apart, closer than the 250 ms minimum spacing.
	seg := makeSegment(3000, fs, func(i int) (float64, float64) {
		var sp float64
		switch {
		case i >= 1100:
			sp = 200
		case i >= 1000:
			sp = 100
		}
		return sp, plant(sp)
	})

	steps, _ := AnalyzeSteps(seg, flight.Roll, DefaultConfig().Step)
	require.Len(t, steps, 1)
}

func TestAnalyzeSpectrum_Sine(t *testing.T) {
	const (
		fs = 1000.0
		f0 = 20.0
	)
	seg := makeSegment(8192, fs, func(i int) (float64, float64) {
		return 0, 40 * math.Sin(2*math.Pi*f0*float64(i)/fs)
	})

	cfg := DefaultConfig().Spectral
	p := AnalyzeSpectrum(seg, flight.Roll, cfg)
	require.NotNil(t, p)
	require.False(t, p.Skipped)

	df := fs / float64(cfg.WindowSize)
	assert.InDelta(t, f0, p.PeakHz, df)

	// A 20 Hz tone lands in the mid band and should dominate it.
	total := p.GyroBands[LowBand].Energy + p.GyroBands[MidBand].Energy + p.GyroBands[HighBand].Energy
	require.Greater(t, total, 0.0)
	assert.Greater(t, p.GyroBands[MidBand].Energy/total, 0.95)
	assert.InDelta(t, f0, p.GyroBands[MidBand].PeakHz, df)
	assert.Less(t, p.HighBandRatio, 0.05)
}

func TestAnalyzeSpectrum_ShortSegment(t *testing.T) {
	seg := makeSegment(512, 1000, func(i int) (float64, float64) {
		return 0, 0
	})

	p := AnalyzeSpectrum(seg, flight.Roll, DefaultConfig().Spectral)
	require.NotNil(t, p)
	assert.True(t, p.Skipped)
	assert.NotEmpty(t, p.SkipReason)
}

func TestScore_CleanFlight(t *testing.T) {
	const fs = 1000.0
	plant := firstOrder(fs, 0.02)
	seg := makeSegment(4000, fs, func(i int) (float64, float64) {
		var sp float64
		if i >= 1000 {
			sp = 100
		}
		return sp, plant(sp)
	})

	cfg := DefaultConfig()
	es := TrackingError(seg, flight.Roll)
	_, agg := AnalyzeSteps(seg, flight.Roll, cfg.Step)
	p := AnalyzeSpectrum(seg, flight.Roll, cfg.Spectral)

	pi := Score(seg, flight.Roll, es, agg, p, cfg.Perf)

	assert.GreaterOrEqual(t, pi.Tracking, 0.0)
	assert.LessOrEqual(t, pi.Tracking, 100.0)
	assert.Greater(t, pi.Noise, 90.0, "clean signal should barely lose noise points")
	assert.Greater(t, pi.Responsiveness, 50.0)
	assert.GreaterOrEqual(t, pi.Overall, 0.0)
	assert.LessOrEqual(t, pi.Overall, 100.0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_NoActiveFlight(t *testing.T) {
	ts := &flight.TimeSeries{SampleRate: 1000}
	for i := 0; i < 8000; i++ {
		ts.Time = append(ts.Time, float64(i)/1000)
		ts.Throttle = append(ts.Throttle, 1000) // disarmed on the ground
		for _, a := range flight.Axes {
			ts.Setpoint[a] = append(ts.Setpoint[a], 0)
			ts.Gyro[a] = append(ts.Gyro[a], 0)
		}
	}

	r := NewRunner(DefaultConfig(), sysid.DefaultConfig(), WithLogger(testLogger()))
	_, err := r.Run(context.Background(), ts)
	assert.ErrorIs(t, err, flight.ErrNoActiveSegment)
}

func TestRunner_FullPipeline(t *testing.T) {
	const fs = 1000.0
	rng := rand.New(rand.NewSource(7))
	plant := firstOrder(fs, 0.03)

	ts := &flight.TimeSeries{SampleRate: fs}
	for i := 0; i < 10000; i++ {
		var sp float64
		switch {
		case i >= 2000 && i < 4000:
			sp = 150
		case i >= 5000 && i < 7000:
			sp = -120
		}
		gy := plant(sp) + 0.5*rng.NormFloat64()

		ts.Time = append(ts.Time, float64(i)/fs)
		ts.Throttle = append(ts.Throttle, 1500)
		for _, a := range flight.Axes {
			ts.Setpoint[a] = append(ts.Setpoint[a], 0)
			ts.Gyro[a] = append(ts.Gyro[a], 0)
		}
		ts.Setpoint[flight.Roll][i] = sp
		ts.Gyro[flight.Roll][i] = gy
	}

	r := NewRunner(DefaultConfig(), sysid.DefaultConfig(),
		WithLogger(testLogger()),
		WithStages(Stages{Transfer: true, Model: true, Wavelet: true}))

	res, err := r.Run(context.Background(), ts)
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)

	roll := res.Segments[0].Axes[flight.Roll]
	assert.Equal(t, flight.Roll, roll.Axis)
	assert.True(t, roll.Agg.Valid)
	require.NotNil(t, roll.Spectrum)
	assert.False(t, roll.Spectrum.Skipped)
	require.NotNil(t, roll.Transfer)
	require.NotNil(t, roll.Model)
	assert.Greater(t, roll.Model.FitQuality, 50.0)
	require.NotNil(t, roll.Scalogram)

	assert.GreaterOrEqual(t, roll.Performance.Overall, 0.0)
	assert.LessOrEqual(t, roll.Performance.Overall, 100.0)

	// Axes with no commanded motion still produce complete basic results.
	pitch := res.Segments[0].Axes[flight.Pitch]
	assert.False(t, pitch.Agg.Valid)
	assert.Zero(t, pitch.Error.RMS)
}
