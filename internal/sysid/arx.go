package sysid

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ARXModel is a fitted discrete linear model
//
//	y[n] = sum_i a_i*y[n-i] + sum_j b_j*u[n-nk-j+1]
//
// with setpoint as input u and gyro as output y.
type ARXModel struct {
	OutputOrder int // na
	InputOrder  int // nb
	Delay       int // nk

	A []float64 // a_1..a_na
	B []float64 // b_1..b_nb

	// FitQuality is the percentage of output variance explained by a
	// free-run simulation of the model: 100 for a perfect fit, 0 for a
	// model no better than predicting the mean. Always in [0,100].
	FitQuality float64

	// Reliable is false when FitQuality is below the configured
	// threshold or the regression was numerically singular. Unreliable
	// models are still reported but must not influence recommendations.
	Reliable bool

	// StepResponse is the simulated response to a unit setpoint step.
	StepResponse []float64
	SampleRate   float64 // Hz, for converting StepResponse samples to time
}

// FitARX fits an ARX model by least squares. Numerical failure is not an
// error: it yields a zero-fit, unreliable model, matching the graceful
// degradation the rest of the pipeline expects.
func FitARX(setpoint, gyro []float64, fs float64, cfg ARXConfig) *ARXModel {
	na, nb, nk := cfg.OutputOrder, cfg.InputOrder, cfg.Delay
	if nk < 1 {
		nk = 1
	}

	m := &ARXModel{
		OutputOrder: na,
		InputOrder:  nb,
		Delay:       nk,
		A:           make([]float64, na),
		B:           make([]float64, nb),
		SampleRate:  fs,
	}

	p := max(na, nb+nk-1)
	n := len(gyro)
	rows := n - p
	if rows <= na+nb {
		m.StepResponse = m.simulateStep(cfg.StepLength)
		return m
	}

	// Regressor matrix: past outputs then delayed past inputs.
	phi := mat.NewDense(rows, na+nb, nil)
	rhs := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := p + r
		for i := 0; i < na; i++ {
			phi.Set(r, i, gyro[t-1-i])
		}
		for j := 0; j < nb; j++ {
			phi.Set(r, na+j, setpoint[t-nk-j])
		}
		rhs.SetVec(r, gyro[t])
	}

	var qr mat.QR
	qr.Factorize(phi)
	theta := mat.NewVecDense(na+nb, nil)
	if err := qr.SolveVecTo(theta, false, rhs); err != nil {
		// Singular regression; report the zero model as unreliable.
		m.StepResponse = m.simulateStep(cfg.StepLength)
		return m
	}

	for i := 0; i < na; i++ {
		m.A[i] = theta.AtVec(i)
	}
	for j := 0; j < nb; j++ {
		m.B[j] = theta.AtVec(na + j)
	}

	m.FitQuality = fitQuality(m, setpoint, gyro, p)
	m.Reliable = m.FitQuality >= cfg.FitThreshold
	m.StepResponse = m.simulateStep(cfg.StepLength)
	return m
}

// fitQuality runs the model free of measured outputs and scores the
// normalised residual: 100*(1 - ||y-yhat|| / ||y-mean(y)||), clamped.
func fitQuality(m *ARXModel, u, y []float64, p int) float64 {
	n := len(y)
	yhat := make([]float64, n)
	copy(yhat[:p], y[:p]) // initial conditions from the data

	for t := p; t < n; t++ {
		yhat[t] = m.predict(yhat, u, t)
	}

	var mean float64
	for _, v := range y[p:] {
		mean += v
	}
	mean /= float64(n - p)

	var num, den float64
	for t := p; t < n; t++ {
		num += (y[t] - yhat[t]) * (y[t] - yhat[t])
		den += (y[t] - mean) * (y[t] - mean)
	}
	if den <= 0 || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0
	}

	fit := 100 * (1 - math.Sqrt(num)/math.Sqrt(den))
	return math.Max(0, math.Min(100, fit))
}

// predict evaluates the difference equation at index t against an output
// history yhat and input u.
func (m *ARXModel) predict(yhat, u []float64, t int) float64 {
	var v float64
	for i := 0; i < m.OutputOrder; i++ {
		v += m.A[i] * yhat[t-1-i]
	}
	for j := 0; j < m.InputOrder; j++ {
		idx := t - m.Delay - j
		if idx >= 0 {
			v += m.B[j] * u[idx]
		}
	}
	return v
}

// simulateStep runs the fitted model against a synthetic unit step.
func (m *ARXModel) simulateStep(length int) []float64 {
	if length <= 0 {
		length = 200
	}
	u := make([]float64, length)
	for i := range u {
		u[i] = 1
	}
	y := make([]float64, length)
	p := max(m.OutputOrder, m.InputOrder+m.Delay-1)
	for t := p; t < length; t++ {
		y[t] = m.predict(y, u, t)
	}
	return y
}

// StepInfo measures rise time, overshoot and settling time on the simulated
// unit-step response, in seconds. Returns ok=false when the response never
// reaches a usable steady state.
func (m *ARXModel) StepInfo() (rise, overshoot, settling float64, ok bool) {
	resp := m.StepResponse
	if len(resp) < 20 || m.SampleRate <= 0 {
		return 0, 0, 0, false
	}
	dt := 1 / m.SampleRate

	tail := len(resp) / 10
	var final float64
	for _, v := range resp[len(resp)-tail:] {
		final += v
	}
	final /= float64(tail)
	if math.Abs(final) < 1e-9 || math.IsNaN(final) || math.IsInf(final, 0) {
		return 0, 0, 0, false
	}

	i10, i90 := -1, -1
	for i, v := range resp {
		r := v / final
		if i10 < 0 && r >= 0.1 {
			i10 = i
		}
		if r >= 0.9 {
			i90 = i
			break
		}
	}
	if i10 < 0 || i90 < 0 {
		return 0, 0, 0, false
	}
	rise = float64(i90-i10) * dt

	peak := resp[0]
	for _, v := range resp {
		peak = math.Max(peak, v)
	}
	overshoot = math.Max(0, (peak-final)/math.Abs(final)*100)

	band := 0.05 * math.Abs(final)
	settleIdx := len(resp) - 1
	for i := len(resp) - 1; i >= 0; i-- {
		if math.Abs(resp[i]-final) > band {
			break
		}
		settleIdx = i
	}
	settling = float64(settleIdx) * dt

	return rise, overshoot, settling, true
}
