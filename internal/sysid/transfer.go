package sysid

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// TransferFunction is the estimated frequency response between setpoint
// (input) and gyro (output) for one axis of one segment.
type TransferFunction struct {
	Freqs       []float64 // Bin centre frequencies, Hz
	MagnitudeDB []float64
	PhaseDeg    []float64 // Unwrapped
	Coherence   []float64 // [0,1] per bin
	Reliable    []bool    // Coherence above the configured threshold

	// BandwidthHz is the frequency where the magnitude first drops 3 dB
	// below its low-frequency reference level, restricted to reliable
	// bins. Zero when it cannot be determined.
	BandwidthHz float64
}

// EstimateTransferFunction computes H(f) = Pxy/Pxx via Welch-averaged
// cross- and auto-spectra of the setpoint (input) and gyro (output) traces.
// Returns an error when the segment is shorter than two spectral windows,
// which is the minimum for a meaningful coherence estimate.
func EstimateTransferFunction(setpoint, gyro []float64, fs float64, cfg TransferConfig) (*TransferFunction, error) {
	nfft := cfg.WindowSize
	step := nfft - int(float64(nfft)*cfg.Overlap)
	if step <= 0 {
		step = nfft
	}
	if len(setpoint) < nfft+step {
		return nil, fmt.Errorf("segment has %d samples, transfer estimation needs at least %d", len(setpoint), nfft+step)
	}

	bins := nfft/2 + 1
	puu := make([]float64, bins)
	pyy := make([]float64, bins)
	puy := make([]complex128, bins)

	win := window.Hann(nfft)
	var count int
	for off := 0; off+nfft <= len(setpoint); off += step {
		u := windowed(setpoint[off:off+nfft], win)
		y := windowed(gyro[off:off+nfft], win)

		fu := fft.FFTReal(u)
		fy := fft.FFTReal(y)

		for k := 0; k < bins; k++ {
			puu[k] += real(fu[k])*real(fu[k]) + imag(fu[k])*imag(fu[k])
			pyy[k] += real(fy[k])*real(fy[k]) + imag(fy[k])*imag(fy[k])
			puy[k] += cmplx.Conj(fu[k]) * fy[k]
		}
		count++
	}

	// Averaging constants cancel in both H and the coherence, so the
	// accumulated sums are used directly.
	tf := &TransferFunction{
		Freqs:       make([]float64, bins),
		MagnitudeDB: make([]float64, bins),
		PhaseDeg:    make([]float64, bins),
		Coherence:   make([]float64, bins),
		Reliable:    make([]bool, bins),
	}

	phase := make([]float64, bins)
	for k := 0; k < bins; k++ {
		tf.Freqs[k] = float64(k) * fs / float64(nfft)

		if puu[k] <= 0 {
			tf.MagnitudeDB[k] = math.Inf(-1)
			continue
		}
		h := puy[k] / complex(puu[k], 0)
		tf.MagnitudeDB[k] = 20 * math.Log10(math.Max(cmplx.Abs(h), 1e-30))
		phase[k] = cmplx.Phase(h)

		if pyy[k] > 0 {
			tf.Coherence[k] = math.Min(1, (real(puy[k])*real(puy[k])+imag(puy[k])*imag(puy[k]))/(puu[k]*pyy[k]))
		}
		tf.Reliable[k] = tf.Coherence[k] >= cfg.CoherenceThreshold
	}

	unwrap(phase)
	for k := range phase {
		tf.PhaseDeg[k] = phase[k] * 180 / math.Pi
	}

	tf.BandwidthHz = estimateBandwidth(tf, cfg)
	return tf, nil
}

// estimateBandwidth finds the -3 dB point relative to the low-frequency
// reference magnitude, considering reliable bins only.
func estimateBandwidth(tf *TransferFunction, cfg TransferConfig) float64 {
	var ref float64
	var n int
	for k, f := range tf.Freqs {
		if f > cfg.ReferenceMaxHz {
			break
		}
		if tf.Reliable[k] && f > 0 {
			ref += tf.MagnitudeDB[k]
			n++
		}
	}
	if n == 0 {
		// No reliable low-frequency reference; fall back to the first
		// reliable bin above DC.
		for k, f := range tf.Freqs {
			if tf.Reliable[k] && f > 0 {
				ref = tf.MagnitudeDB[k]
				n = 1
				break
			}
		}
	}
	if n == 0 {
		return 0
	}
	ref /= float64(n)

	for k, f := range tf.Freqs {
		if f <= cfg.ReferenceMaxHz || !tf.Reliable[k] {
			continue
		}
		if tf.MagnitudeDB[k] <= ref-3 {
			return f
		}
	}
	return 0
}

func windowed(x, win []float64) []float64 {
	out := make([]float64, len(x))
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for i, v := range x {
		out[i] = (v - mean) * win[i]
	}
	return out
}

// unwrap removes 2*pi discontinuities from a phase sequence in place.
func unwrap(phase []float64) {
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		for d > math.Pi {
			phase[i] -= 2 * math.Pi
			d = phase[i] - phase[i-1]
		}
		for d < -math.Pi {
			phase[i] += 2 * math.Pi
			d = phase[i] - phase[i-1]
		}
	}
}
