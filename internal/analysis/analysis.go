// Package analysis implements the core flight-performance pipeline: tracking
// error statistics, step response characterisation, spectral analysis and the
// per-axis performance index, run per flight segment.
package analysis

import "github.com/droneworks/pidtune/internal/flight"

// StepConfig controls setpoint step detection and response measurement.
type StepConfig struct {
	MinAmplitude   float64 // Smallest setpoint change treated as a step, deg/s
	DetectWindow   float64 // Window over which the change must occur, seconds
	MinSpacing     float64 // Minimum spacing between consecutive steps, seconds
	ResponseWindow float64 // Analysed response duration after each step, seconds
	SettleTolPct   float64 // Settling band around the final value, percent of amplitude
}

// SpectralConfig controls Welch power spectral density estimation.
type SpectralConfig struct {
	WindowSize int     // Samples per Welch window; power of two
	Overlap    float64 // Window overlap fraction in [0,1)
	LowBandHz  float64 // Upper edge of the low band
	MidBandHz  float64 // Upper edge of the mid band; above it is the high band
}

// PerfConfig holds the reference values the 0-100 scores are computed
// against. Scores are relative to these references, not absolute units.
type PerfConfig struct {
	TrackingErrorScale float64 // Score points lost per deg/s of RMS error
	NoiseRatioScale    float64 // Score points lost per unit of high-band energy ratio
	RiseTimeTarget     float64 // Reference rise time, seconds
	SettlingTimeTarget float64 // Reference settling time, seconds
	TrackingWeight     float64
	NoiseWeight        float64
	ResponseWeight     float64
}

// Config bundles the tunables of the basic analysis stages.
type Config struct {
	Segment  flight.SegmentConfig
	Step     StepConfig
	Spectral SpectralConfig
	Perf     PerfConfig

	// Workers bounds the per-segment/axis worker pool. Zero means one
	// worker per CPU. Parallelism is purely an optimisation: results are
	// identical regardless of the worker count.
	Workers int
}

// DefaultConfig returns the analysis defaults calibrated for Betaflight
// rate-mode logs sampled at 1-8 kHz.
func DefaultConfig() Config {
	return Config{
		Segment: flight.DefaultSegmentConfig(),
		Step: StepConfig{
			MinAmplitude:   30,
			DetectWindow:   0.02,
			MinSpacing:     0.25,
			ResponseWindow: 0.5,
			SettleTolPct:   5,
		},
		Spectral: SpectralConfig{
			WindowSize: 1024,
			Overlap:    0.5,
			LowBandHz:  10,
			MidBandHz:  30,
		},
		Perf: PerfConfig{
			TrackingErrorScale: 2.0,
			NoiseRatioScale:    500,
			RiseTimeTarget:     0.08,
			SettlingTimeTarget: 0.25,
			TrackingWeight:     0.5,
			NoiseWeight:        0.3,
			ResponseWeight:     0.2,
		},
	}
}

// ErrorStats summarises the tracking error (setpoint - gyro) of one axis
// over one segment.
type ErrorStats struct {
	Mean float64 // Mean absolute error, deg/s
	RMS  float64 // Root mean square error, deg/s
	Peak float64 // Largest absolute error, deg/s
}

// StepMetrics measures the gyro response to a single detected setpoint step.
type StepMetrics struct {
	StartIndex   int     // Sample index of the step within the segment
	Amplitude    float64 // Signed setpoint change, deg/s
	RiseTime     float64 // 10%-90% rise time, seconds
	Overshoot    float64 // Peak overshoot past the final value, percent, >= 0
	SettlingTime float64 // Time to stay within the settling band, seconds
	SteadyError  float64 // Setpoint minus gyro at the window end, deg/s
}

// StepAggregate summarises all step responses of one axis in one segment.
// Valid is false when no steps were detected; such records must be excluded
// from cross-segment aggregation rather than treated as zeros.
type StepAggregate struct {
	Valid bool
	Count int

	RiseMean, RiseStd           float64
	OvershootMean, OvershootStd float64
	SettlingMean, SettlingStd   float64
	SteadyErrMean               float64 // Mean absolute steady-state error, deg/s
}

// Band identifies one of the three spectral bands.
type Band int

const (
	LowBand  Band = iota // 0 - LowBandHz
	MidBand              // LowBandHz - MidBandHz
	HighBand             // above MidBandHz
)

func (b Band) String() string {
	switch b {
	case LowBand:
		return "low"
	case MidBand:
		return "mid"
	default:
		return "high"
	}
}

// BandEnergy holds the integrated power and the peak frequency of one band.
type BandEnergy struct {
	Energy float64 // Integrated PSD over the band, (deg/s)^2
	PeakHz float64 // Frequency of the strongest bin in the band
}

// FrequencyProfile is the spectral picture of one axis in one segment.
// When Skipped is true the segment was too short for the spectral window
// and every other field is zero.
type FrequencyProfile struct {
	Skipped    bool
	SkipReason string

	Freqs    []float64 // Bin centre frequencies, Hz
	GyroPSD  []float64 // One-sided PSD of the gyro signal
	ErrorPSD []float64 // One-sided PSD of the tracking error

	GyroBands  [3]BandEnergy // Indexed by Band
	ErrorBands [3]BandEnergy

	PeakHz        float64 // Dominant gyro frequency over the whole spectrum
	PeakPower     float64 // PSD value at the dominant frequency
	HighBandRatio float64 // High-band share of total gyro energy, [0,1]
}

// PerformanceIndex scores one axis on a 0-100 scale per category.
type PerformanceIndex struct {
	Tracking       float64
	Noise          float64
	Responsiveness float64
	Overall        float64
}
