package analysis

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/spectral"
	"github.com/mjibson/go-dsp/window"

	"github.com/droneworks/pidtune/internal/flight"
)

// AnalyzeSpectrum estimates the one-sided power spectral density of the gyro
// signal and of the tracking error for one axis of a segment, and integrates
// the power into low/mid/high bands. Segments shorter than one spectral
// window are skipped with a reason instead of producing a garbage estimate.
func AnalyzeSpectrum(seg flight.Segment, axis flight.Axis, cfg SpectralConfig) *FrequencyProfile {
	fs := seg.Series.SampleRate
	if seg.Len() < cfg.WindowSize {
		return &FrequencyProfile{
			Skipped: true,
			SkipReason: fmt.Sprintf("segment has %d samples, spectral window needs %d",
				seg.Len(), cfg.WindowSize),
		}
	}

	opts := &spectral.PwelchOptions{
		NFFT:     cfg.WindowSize,
		Noverlap: int(float64(cfg.WindowSize) * cfg.Overlap),
		Window:   window.Hann,
	}

	gyroPSD, freqs := spectral.Pwelch(seg.Gyro(axis), fs, opts)
	errPSD, _ := spectral.Pwelch(seg.Error(axis), fs, opts)

	p := &FrequencyProfile{
		Freqs:    freqs,
		GyroPSD:  gyroPSD,
		ErrorPSD: errPSD,
	}

	p.GyroBands = integrateBands(freqs, gyroPSD, cfg)
	p.ErrorBands = integrateBands(freqs, errPSD, cfg)

	var total float64
	for i, pw := range gyroPSD {
		if pw > p.PeakPower {
			p.PeakPower = pw
			p.PeakHz = freqs[i]
		}
		total += pw
	}
	if total > 0 {
		var high float64
		for i, f := range freqs {
			if f > cfg.MidBandHz {
				high += gyroPSD[i]
			}
		}
		p.HighBandRatio = high / total
	}

	return p
}

// integrateBands sums PSD * df per band and finds each band's peak bin.
func integrateBands(freqs, psd []float64, cfg SpectralConfig) [3]BandEnergy {
	var bands [3]BandEnergy
	if len(freqs) < 2 {
		return bands
	}
	df := freqs[1] - freqs[0]

	peakPower := [3]float64{}
	for i, f := range freqs {
		b := bandOf(f, cfg)
		bands[b].Energy += psd[i] * df
		if psd[i] > peakPower[b] {
			peakPower[b] = psd[i]
			bands[b].PeakHz = f
		}
	}
	return bands
}

func bandOf(f float64, cfg SpectralConfig) Band {
	switch {
	case f <= cfg.LowBandHz:
		return LowBand
	case f <= cfg.MidBandHz:
		return MidBand
	default:
		return HighBand
	}
}

// TotalEnergy returns the summed band energy of a profile side.
func TotalEnergy(bands [3]BandEnergy) float64 {
	return bands[LowBand].Energy + bands[MidBand].Energy + bands[HighBand].Energy
}

// BandRatio returns one band's share of the total energy, or 0 when the
// spectrum carries no power.
func BandRatio(bands [3]BandEnergy, b Band) float64 {
	total := TotalEnergy(bands)
	if total <= 0 || math.IsNaN(total) {
		return 0
	}
	return bands[b].Energy / total
}
