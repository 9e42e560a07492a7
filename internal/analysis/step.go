package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/droneworks/pidtune/internal/flight"
)

// AnalyzeSteps finds setpoint steps on one axis of a segment and measures
// the gyro response to each. The returned aggregate has Valid=false when no
// usable step was found.
func AnalyzeSteps(seg flight.Segment, axis flight.Axis, cfg StepConfig) ([]StepMetrics, StepAggregate) {
	fs := seg.Series.SampleRate
	if fs <= 0 || seg.Len() < 2 {
		return nil, StepAggregate{}
	}

	detectWin := max(1, int(math.Round(cfg.DetectWindow*fs)))
	spacing := max(1, int(math.Round(cfg.MinSpacing*fs)))
	respWin := max(2, int(math.Round(cfg.ResponseWindow*fs)))

	sp := seg.Setpoint(axis)
	gy := seg.Gyro(axis)
	t := seg.Time()

	var events []StepMetrics
	lastStep := -spacing

	for i := 0; i+detectWin < len(sp); i++ {
		delta := sp[i+detectWin] - sp[i]
		if math.Abs(delta) < cfg.MinAmplitude || i-lastStep < spacing {
			continue
		}
		if i+respWin > len(sp) {
			// Not enough post-step data for the fixed response window.
			break
		}

		m := measureStep(t, sp, gy, i, delta, detectWin, respWin, cfg.SettleTolPct)
		events = append(events, m)
		lastStep = i
	}

	return events, aggregateSteps(events)
}

// measureStep computes rise time, overshoot, settling time and steady-state
// error for one step. The gyro trace is normalised so that 0 is the pre-step
// baseline and 1 is baseline+amplitude, which makes the computation
// direction-agnostic.
func measureStep(t, sp, gy []float64, start int, amplitude float64, detectWin, respWin int, settleTolPct float64) StepMetrics {
	baseline := gy[start]
	if start >= detectWin {
		baseline = stat.Mean(gy[start-detectWin:start], nil)
	}

	norm := make([]float64, respWin)
	for j := 0; j < respWin; j++ {
		norm[j] = (gy[start+j] - baseline) / amplitude
	}

	// Final value: mean of the last 10% of the window.
	tail := max(1, respWin/10)
	final := stat.Mean(norm[respWin-tail:], nil)

	windowDur := t[start+respWin-1] - t[start]

	// 10%-90% rise time, measured against the commanded amplitude. Events
	// that never reach 90% get the full window duration as a pessimistic
	// upper bound.
	rise := windowDur
	i10, i90 := -1, -1
	for j, v := range norm {
		if i10 < 0 && v >= 0.1 {
			i10 = j
		}
		if v >= 0.9 {
			i90 = j
			break
		}
	}
	if i10 >= 0 && i90 >= 0 {
		rise = t[start+i90] - t[start+i10]
	}

	// Overshoot past the final value, clipped at zero.
	peak := norm[0]
	for _, v := range norm {
		peak = math.Max(peak, v)
	}
	overshoot := math.Max(0, (peak-final)*100)

	// Settling time: first instant after which the response stays within
	// the tolerance band for the rest of the window.
	tol := settleTolPct / 100
	settleIdx := respWin - 1
	for j := respWin - 1; j >= 0; j-- {
		if math.Abs(norm[j]-final) > tol {
			break
		}
		settleIdx = j
	}
	settling := t[start+settleIdx] - t[start]

	return StepMetrics{
		StartIndex:   start,
		Amplitude:    amplitude,
		RiseTime:     rise,
		Overshoot:    overshoot,
		SettlingTime: settling,
		SteadyError:  sp[start+respWin-1] - gy[start+respWin-1],
	}
}

func aggregateSteps(events []StepMetrics) StepAggregate {
	if len(events) == 0 {
		return StepAggregate{}
	}

	rise := make([]float64, len(events))
	over := make([]float64, len(events))
	settle := make([]float64, len(events))
	steady := make([]float64, len(events))
	for i, e := range events {
		rise[i] = e.RiseTime
		over[i] = e.Overshoot
		settle[i] = e.SettlingTime
		steady[i] = math.Abs(e.SteadyError)
	}

	agg := StepAggregate{
		Valid:         true,
		Count:         len(events),
		RiseMean:      stat.Mean(rise, nil),
		OvershootMean: stat.Mean(over, nil),
		SettlingMean:  stat.Mean(settle, nil),
		SteadyErrMean: stat.Mean(steady, nil),
	}
	if len(events) > 1 {
		agg.RiseStd = stat.StdDev(rise, nil)
		agg.OvershootStd = stat.StdDev(over, nil)
		agg.SettlingStd = stat.StdDev(settle, nil)
	}
	return agg
}

// TrackingError computes the error statistics of one axis over a segment.
func TrackingError(seg flight.Segment, axis flight.Axis) ErrorStats {
	sp := seg.Setpoint(axis)
	gy := seg.Gyro(axis)

	var sumAbs, sumSq, peak float64
	for i := range sp {
		e := sp[i] - gy[i]
		abs := math.Abs(e)
		sumAbs += abs
		sumSq += e * e
		peak = math.Max(peak, abs)
	}
	n := float64(len(sp))
	if n == 0 {
		return ErrorStats{}
	}
	return ErrorStats{
		Mean: sumAbs / n,
		RMS:  math.Sqrt(sumSq / n),
		Peak: peak,
	}
}
