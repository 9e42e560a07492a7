package sysid

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const morletOmega0 = 6.0

// Burst is a connected region of the scalogram whose power exceeds the
// per-column statistical threshold. Bursts localise transient oscillation
// events in both time and frequency.
type Burst struct {
	StartTime float64 // s, relative to segment start
	EndTime   float64
	MinFreqHz float64
	MaxFreqHz float64
	PeakPower float64
}

// Scalogram holds the time-frequency power map of a gyro trace computed
// with a Morlet continuous wavelet transform. Power is indexed
// [scale][column], scales ordered low to high frequency.
type Scalogram struct {
	Times  []float64 // s, relative to segment start, one per column
	Freqs  []float64 // Hz, one per scale row
	Power  [][]float64
	Bursts []Burst

	// Dominant is the argmax frequency of each time column, Hz.
	Dominant []float64

	// DominantHz is the frequency row carrying the most total power.
	DominantHz float64
}

// ComputeScalogram runs a Morlet CWT over the gyro trace. Long traces are
// decimated so the output stays at or below cfg.MaxColumns columns; the
// decimated rate is kept above four times cfg.MaxFreqHz so the top scales
// stay meaningful. The context is checked between scales so a pipeline
// deadline can abandon this stage mid-flight.
func ComputeScalogram(ctx context.Context, gyro []float64, fs float64, cfg WaveletConfig) (*Scalogram, error) {
	if len(gyro) < 16 || fs <= 0 {
		return nil, nil
	}

	x, fs := decimate(gyro, fs, cfg)
	n := len(x)

	freqs := logFreqs(cfg.MinFreqHz, math.Min(cfg.MaxFreqHz, fs/2), cfg.NumScales)

	// One forward FFT of the signal, reused for every scale.
	xf := fft.FFTReal(demean(x))

	sg := &Scalogram{
		Times: make([]float64, n),
		Freqs: freqs,
		Power: make([][]float64, len(freqs)),
	}
	for i := range sg.Times {
		sg.Times[i] = float64(i) / fs
	}

	angular := make([]float64, n)
	for k := range angular {
		// FFT bin angular frequencies, positive then negative.
		if k <= n/2 {
			angular[k] = 2 * math.Pi * float64(k) * fs / float64(n)
		} else {
			angular[k] = -2 * math.Pi * float64(n-k) * fs / float64(n)
		}
	}

	prod := make([]complex128, n)
	for s, f := range freqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scale := morletOmega0 / (2 * math.Pi * f)
		norm := math.Sqrt(2 * math.Pi * scale * fs)
		for k := range prod {
			w := scale * angular[k]
			var psi float64
			if w > 0 {
				psi = norm * math.Exp(-0.5*(w-morletOmega0)*(w-morletOmega0))
			}
			prod[k] = xf[k] * complex(psi, 0)
		}
		coeff := fft.IFFT(prod)

		row := make([]float64, n)
		for i, c := range coeff {
			a := cmplx.Abs(c)
			row[i] = a * a
		}
		sg.Power[s] = row
	}

	sg.DominantHz = dominantFreq(sg)
	sg.Dominant = dominantTrace(sg)
	sg.Bursts = detectBursts(sg, cfg.BurstSigma)
	return sg, nil
}

// dominantTrace returns the argmax frequency of each time column.
func dominantTrace(sg *Scalogram) []float64 {
	out := make([]float64, len(sg.Times))
	for c := range out {
		best, bestPower := 0, -1.0
		for s := range sg.Power {
			if v := sg.Power[s][c]; v > bestPower {
				best, bestPower = s, v
			}
		}
		out[c] = sg.Freqs[best]
	}
	return out
}

// decimate reduces the sample rate by an integer factor so the scalogram
// width stays bounded.
func decimate(x []float64, fs float64, cfg WaveletConfig) ([]float64, float64) {
	maxCols := cfg.MaxColumns
	if maxCols <= 0 || len(x) <= maxCols {
		return x, fs
	}
	factor := (len(x) + maxCols - 1) / maxCols
	// Keep enough rate to represent the highest analysed frequency.
	if minRate := 4 * cfg.MaxFreqHz; minRate > 0 {
		if maxFactor := int(fs / minRate); maxFactor >= 1 && factor > maxFactor {
			factor = maxFactor
		}
	}
	if factor <= 1 {
		return x, fs
	}

	out := make([]float64, 0, len(x)/factor+1)
	for i := 0; i+factor <= len(x); i += factor {
		var sum float64
		for _, v := range x[i : i+factor] {
			sum += v
		}
		out = append(out, sum/float64(factor))
	}
	return out, fs / float64(factor)
}

func logFreqs(lo, hi float64, n int) []float64 {
	if n < 2 {
		n = 2
	}
	if lo <= 0 {
		lo = 1
	}
	if hi <= lo {
		hi = lo * 2
	}
	out := make([]float64, n)
	ratio := math.Log(hi / lo)
	for i := range out {
		out[i] = lo * math.Exp(ratio*float64(i)/float64(n-1))
	}
	return out
}

func dominantFreq(sg *Scalogram) float64 {
	best, bestPower := 0, -1.0
	for s, row := range sg.Power {
		var total float64
		for _, v := range row {
			total += v
		}
		if total > bestPower {
			best, bestPower = s, total
		}
	}
	if bestPower <= 0 {
		return 0
	}
	return sg.Freqs[best]
}

// detectBursts thresholds each time column at mean + sigma*stddev of that
// column, then groups exceeding cells into 8-connected regions. Regions
// smaller than three cells are noise and dropped.
func detectBursts(sg *Scalogram, sigma float64) []Burst {
	rows, cols := len(sg.Power), 0
	if rows > 0 {
		cols = len(sg.Power[0])
	}
	if rows == 0 || cols == 0 {
		return nil
	}

	hot := make([][]bool, rows)
	for s := range hot {
		hot[s] = make([]bool, cols)
	}
	for c := 0; c < cols; c++ {
		var sum, sq float64
		for s := 0; s < rows; s++ {
			v := sg.Power[s][c]
			sum += v
			sq += v * v
		}
		mean := sum / float64(rows)
		variance := sq/float64(rows) - mean*mean
		if variance < 0 {
			variance = 0
		}
		thr := mean + sigma*math.Sqrt(variance)
		if thr <= 0 {
			continue
		}
		for s := 0; s < rows; s++ {
			hot[s][c] = sg.Power[s][c] > thr
		}
	}

	seen := make([][]bool, rows)
	for s := range seen {
		seen[s] = make([]bool, cols)
	}

	var bursts []Burst
	type cell struct{ s, c int }
	for s0 := 0; s0 < rows; s0++ {
		for c0 := 0; c0 < cols; c0++ {
			if !hot[s0][c0] || seen[s0][c0] {
				continue
			}

			// Flood fill one region.
			stack := []cell{{s0, c0}}
			seen[s0][c0] = true
			var cells []cell
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cells = append(cells, cur)
				for ds := -1; ds <= 1; ds++ {
					for dc := -1; dc <= 1; dc++ {
						s, c := cur.s+ds, cur.c+dc
						if s < 0 || s >= rows || c < 0 || c >= cols {
							continue
						}
						if hot[s][c] && !seen[s][c] {
							seen[s][c] = true
							stack = append(stack, cell{s, c})
						}
					}
				}
			}
			if len(cells) < 3 {
				continue
			}

			b := Burst{
				StartTime: sg.Times[cells[0].c],
				EndTime:   sg.Times[cells[0].c],
				MinFreqHz: sg.Freqs[cells[0].s],
				MaxFreqHz: sg.Freqs[cells[0].s],
			}
			for _, cl := range cells {
				b.StartTime = math.Min(b.StartTime, sg.Times[cl.c])
				b.EndTime = math.Max(b.EndTime, sg.Times[cl.c])
				b.MinFreqHz = math.Min(b.MinFreqHz, sg.Freqs[cl.s])
				b.MaxFreqHz = math.Max(b.MaxFreqHz, sg.Freqs[cl.s])
				b.PeakPower = math.Max(b.PeakPower, sg.Power[cl.s][cl.c])
			}
			bursts = append(bursts, b)
		}
	}
	return bursts
}

func demean(x []float64) []float64 {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - mean
	}
	return out
}
