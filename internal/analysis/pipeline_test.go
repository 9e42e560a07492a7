package analysis_test

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/recommend"
	"github.com/droneworks/pidtune/internal/sysid"
)

// A well-tuned quad flying three identical clean steps should produce
// consistent step metrics and leave the rule engine with nothing to say.
func TestPipeline_CleanThreeStepsNoRecommendations(t *testing.T) {
	const fs = 1000.0
	rng := rand.New(rand.NewSource(11))

	// First order plant with a 20 ms time constant: rise well inside the
	// 80 ms target, no overshoot, no steady-state error.
	alpha := (1 / fs) / (0.02 + 1/fs)
	var gy float64

	ts := &flight.TimeSeries{SampleRate: fs}
	for i := 0; i < 10000; i++ {
		var sp float64
		switch {
		case i >= 2000 && i < 2600:
			sp = 100
		case i >= 4000 && i < 4600:
			sp = 100
		case i >= 6000 && i < 6600:
			sp = 100
		}
		gy += alpha * (sp - gy)

		ts.Time = append(ts.Time, float64(i)/fs)
		ts.Throttle = append(ts.Throttle, 1500)
		for _, a := range flight.Axes {
			ts.Setpoint[a] = append(ts.Setpoint[a], 0)
			ts.Gyro[a] = append(ts.Gyro[a], 0)
		}
		ts.Setpoint[flight.Roll][i] = sp
		ts.Gyro[flight.Roll][i] = gy + 0.3*rng.NormFloat64()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := analysis.NewRunner(analysis.DefaultConfig(), sysid.DefaultConfig(),
		analysis.WithLogger(logger))

	res, err := r.Run(context.Background(), ts)
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)

	roll := res.Segments[0].Axes[flight.Roll]
	require.True(t, roll.Agg.Valid)
	assert.GreaterOrEqual(t, roll.Agg.Count, 3)

	// Identical steps through the same plant must measure the same.
	assert.Less(t, roll.Agg.RiseStd, 0.01)
	assert.Less(t, roll.Agg.OvershootStd, 3.0)
	assert.Less(t, roll.Agg.SettlingStd, 0.05)

	metrics := recommend.BuildAxisMetrics(res)
	assert.Less(t, metrics[flight.Roll].ErrorRMS, recommend.DefaultConfig().GoodTrackingRMS)

	recs, advs := recommend.Evaluate(metrics, recommend.DefaultConfig())
	assert.Empty(t, recs)
	assert.Empty(t, advs)
}
