// Package recommend turns per-axis analysis metrics into ordered, justified
// PID tuning recommendations. Rules are declarative and deterministic: the
// same metrics always yield the same recommendations.
package recommend

import (
	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/flight"
)

// Term identifies a PID term.
type Term int

const (
	TermP Term = iota
	TermI
	TermD
)

func (t Term) String() string {
	switch t {
	case TermP:
		return "P"
	case TermI:
		return "I"
	default:
		return "D"
	}
}

// Recommendation is a signed percentage adjustment for one term of one
// axis. Priority ranks which issue to address first; 1 is most urgent.
type Recommendation struct {
	Axis          flight.Axis
	Term          Term
	AdjustmentPct float64
	Priority      int
	Evidence      []string
}

// Advisory flags an issue that cannot be fixed by changing PID gains, such
// as gyro noise that calls for filter changes, or a mechanical problem.
type Advisory struct {
	Axis     flight.Axis
	Kind     string // "filter" or "mechanical"
	Message  string
	Evidence []string
}

// Config holds the rule thresholds and proportionality constants. The
// mapping from oscillation energy to percentages is a calibration choice,
// not a physical law; these defaults are conservative so a pilot applies
// several small corrections rather than one large one.
type Config struct {
	// Band-ratio thresholds above which each band counts as oscillating.
	LowBandThreshold  float64
	MidBandThreshold  float64
	HighBandThreshold float64

	// High-band ratio beyond which the problem is treated as noise and a
	// filter advisory is issued instead of a D-term cut.
	NoiseAdvisoryThreshold float64

	// GoodTrackingRMS is the tracking error RMS, deg/s, below which the
	// axis follows its setpoint well. The low and mid band rules only fire
	// above it: commanded motion concentrates gyro energy in those bands,
	// so the ratio alone cannot tell a clean maneuver from an oscillation.
	GoodTrackingRMS float64

	// GainPerRatio converts excess band ratio into adjustment percent.
	GainPerRatio float64

	// Per-term caps on the absolute total adjustment.
	CapP float64
	CapI float64
	CapD float64

	RiseTimeTarget       float64 // s, above it the axis is sluggish
	SteadyErrorThreshold float64 // deg/s of persistent steady-state error

	// Current D gains from the log header or the flight controller dump.
	// When zero the D-ceiling mechanical check is skipped.
	CurrentD     [flight.NumAxes]float64
	DTermCeiling float64
}

// DefaultConfig returns the rule calibration used when the config file
// does not override it.
func DefaultConfig() Config {
	return Config{
		LowBandThreshold:       0.30,
		MidBandThreshold:       0.25,
		HighBandThreshold:      0.15,
		NoiseAdvisoryThreshold: 0.40,
		GoodTrackingRMS:        10,
		GainPerRatio:           60,
		CapP:                   20,
		CapI:                   15,
		CapD:                   25,
		RiseTimeTarget:         0.08,
		SteadyErrorThreshold:   5,
		DTermCeiling:           50,
	}
}

// AxisMetrics is the cross-segment aggregate the rules evaluate. Marker
// booleans record which stages produced data; rules that depend on a
// missing stage do not fire.
type AxisMetrics struct {
	Axis  flight.Axis
	Valid bool // any analysed segment at all

	ErrorRMS float64

	HasSpectrum bool
	LowRatio    float64 // band share of total gyro energy, [0,1]
	MidRatio    float64
	HighRatio   float64

	HasSteps      bool
	RiseMean      float64
	OvershootMean float64
	SettlingMean  float64
	SteadyErrMean float64
}

// BuildAxisMetrics aggregates an analysis result across segments,
// weighting spectral ratios and error by segment duration so a long
// cruise does not count the same as a two second punch-out.
func BuildAxisMetrics(res *analysis.Result) [flight.NumAxes]AxisMetrics {
	var out [flight.NumAxes]AxisMetrics

	for _, axis := range flight.Axes {
		m := AxisMetrics{Axis: axis}

		var totalDur, specDur float64
		var stepCount int

		for _, sr := range res.Segments {
			ar := sr.Axes[axis]
			dur := sr.Segment.Duration()
			if dur <= 0 {
				continue
			}
			m.Valid = true
			totalDur += dur
			m.ErrorRMS += ar.Error.RMS * dur

			if ar.Spectrum != nil && !ar.Spectrum.Skipped {
				total := ar.Spectrum.GyroBands[analysis.LowBand].Energy +
					ar.Spectrum.GyroBands[analysis.MidBand].Energy +
					ar.Spectrum.GyroBands[analysis.HighBand].Energy
				if total > 0 {
					m.HasSpectrum = true
					specDur += dur
					m.LowRatio += ar.Spectrum.GyroBands[analysis.LowBand].Energy / total * dur
					m.MidRatio += ar.Spectrum.GyroBands[analysis.MidBand].Energy / total * dur
					m.HighRatio += ar.Spectrum.GyroBands[analysis.HighBand].Energy / total * dur
				}
			}

			if ar.Agg.Valid {
				m.HasSteps = true
				n := ar.Agg.Count
				stepCount += n
				m.RiseMean += ar.Agg.RiseMean * float64(n)
				m.OvershootMean += ar.Agg.OvershootMean * float64(n)
				m.SettlingMean += ar.Agg.SettlingMean * float64(n)
				m.SteadyErrMean += ar.Agg.SteadyErrMean * float64(n)
			}
		}

		if totalDur > 0 {
			m.ErrorRMS /= totalDur
		}
		if specDur > 0 {
			m.LowRatio /= specDur
			m.MidRatio /= specDur
			m.HighRatio /= specDur
		}
		if stepCount > 0 {
			m.RiseMean /= float64(stepCount)
			m.OvershootMean /= float64(stepCount)
			m.SettlingMean /= float64(stepCount)
			m.SteadyErrMean /= float64(stepCount)
		}

		out[axis] = m
	}
	return out
}
