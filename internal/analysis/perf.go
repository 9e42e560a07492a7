package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/droneworks/pidtune/internal/flight"
)

// Score computes the per-axis performance index from the basic metrics of
// one segment. Every score is relative to the configured reference values
// and clamped to [0,100].
func Score(seg flight.Segment, axis flight.Axis, errStats ErrorStats, steps StepAggregate, profile *FrequencyProfile, cfg PerfConfig) PerformanceIndex {
	tracking := clampScore(100 - cfg.TrackingErrorScale*errStats.RMS)

	noise := 100.0
	if profile != nil && !profile.Skipped {
		noise = clampScore(100 - cfg.NoiseRatioScale*profile.HighBandRatio)
	}

	responsiveness := responseScore(seg, axis, steps, cfg)

	overall := cfg.TrackingWeight*tracking + cfg.NoiseWeight*noise + cfg.ResponseWeight*responsiveness

	return PerformanceIndex{
		Tracking:       tracking,
		Noise:          noise,
		Responsiveness: responsiveness,
		Overall:        clampScore(overall),
	}
}

// responseScore rates responsiveness against the configured rise and
// settling targets. Axes without step data fall back to the setpoint/gyro
// correlation, so quiet cruising segments still get a meaningful score.
func responseScore(seg flight.Segment, axis flight.Axis, steps StepAggregate, cfg PerfConfig) float64 {
	if steps.Valid {
		risePenalty := excessRatio(steps.RiseMean, cfg.RiseTimeTarget)
		settlePenalty := excessRatio(steps.SettlingMean, cfg.SettlingTimeTarget)
		return clampScore(100 - 50*risePenalty - 50*settlePenalty)
	}

	corr := stat.Correlation(seg.Setpoint(axis), seg.Gyro(axis), nil)
	if math.IsNaN(corr) {
		// Constant traces; nothing to rate against.
		return 100
	}
	return clampScore(corr * 100)
}

// excessRatio returns how far value exceeds target, as a fraction of the
// target; zero when at or below target.
func excessRatio(value, target float64) float64 {
	if target <= 0 || value <= target {
		return 0
	}
	return (value - target) / target
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
