// Package sysid implements the optional system-identification stage:
// frequency-response estimation between setpoint and gyro, discrete ARX
// model fitting, and wavelet time-frequency analysis. The three estimators
// are independent functions over the same segment data; callers compose
// them and decide which to run.
package sysid

// TransferConfig controls frequency-response estimation.
type TransferConfig struct {
	WindowSize         int     // Samples per Welch window
	Overlap            float64 // Window overlap fraction in [0,1)
	CoherenceThreshold float64 // Bins with coherence below this are unreliable
	ReferenceMaxHz     float64 // Upper edge of the low-frequency reference region
}

// ARXConfig controls ARX model fitting.
type ARXConfig struct {
	OutputOrder  int     // na: number of past outputs
	InputOrder   int     // nb: number of past inputs
	Delay        int     // nk: input delay in samples, >= 1
	FitThreshold float64 // Fit percentage below which the model is unreliable
	StepLength   int     // Samples in the simulated unit-step response
}

// WaveletConfig controls the continuous wavelet transform.
type WaveletConfig struct {
	NumScales  int     // Number of log-spaced scales
	MinFreqHz  float64 // Lowest analysed frequency
	MaxFreqHz  float64 // Highest analysed frequency
	BurstSigma float64 // k in the mu + k*sigma burst threshold
	MaxColumns int     // Input is decimated so the scalogram has at most this many columns
}

// Config bundles the advanced stage tunables.
type Config struct {
	Transfer TransferConfig
	ARX      ARXConfig
	Wavelet  WaveletConfig
}

// DefaultConfig returns system-identification defaults matched to the
// analysis defaults (1024-sample spectral windows, 2-120 Hz wavelet range).
func DefaultConfig() Config {
	return Config{
		Transfer: TransferConfig{
			WindowSize:         1024,
			Overlap:            0.5,
			CoherenceThreshold: 0.5,
			ReferenceMaxHz:     2,
		},
		ARX: ARXConfig{
			OutputOrder:  3,
			InputOrder:   3,
			Delay:        1,
			FitThreshold: 50,
			StepLength:   200,
		},
		Wavelet: WaveletConfig{
			NumScales:  64,
			MinFreqHz:  2,
			MaxFreqHz:  120,
			BurstSigma: 2,
			MaxColumns: 2000,
		},
	}
}
