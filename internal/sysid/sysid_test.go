package sysid

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTransferFunction_Identity(t *testing.T) {
	const fs = 1000.0
	rng := rand.New(rand.NewSource(1))

	x := make([]float64, 8192)
	for i := range x {
		x[i] = rng.NormFloat64()
	}

	cfg := DefaultConfig().Transfer
	tf, err := EstimateTransferFunction(x, x, fs, cfg)
	require.NoError(t, err)
	require.NotNil(t, tf)

	for k, f := range tf.Freqs {
		if f < 5 || f > 400 || !tf.Reliable[k] {
			continue
		}
		assert.InDelta(t, 0, tf.MagnitudeDB[k], 0.5, "magnitude at %.1f Hz", f)
		assert.InDelta(t, 0, tf.PhaseDeg[k], 5, "phase at %.1f Hz", f)
		assert.InDelta(t, 1, tf.Coherence[k], 0.05, "coherence at %.1f Hz", f)
	}
}

func TestEstimateTransferFunction_TooShort(t *testing.T) {
	cfg := DefaultConfig().Transfer
	x := make([]float64, cfg.WindowSize/2)
	_, err := EstimateTransferFunction(x, x, 1000, cfg)
	assert.Error(t, err)
}

func TestEstimateTransferFunction_Gain(t *testing.T) {
	const fs = 1000.0
	rng := rand.New(rand.NewSource(2))

	u := make([]float64, 8192)
	y := make([]float64, len(u))
	for i := range u {
		u[i] = rng.NormFloat64()
		y[i] = 2 * u[i]
	}

	tf, err := EstimateTransferFunction(u, y, fs, DefaultConfig().Transfer)
	require.NoError(t, err)

	want := 20 * math.Log10(2)
	for k, f := range tf.Freqs {
		if f < 5 || f > 400 || !tf.Reliable[k] {
			continue
		}
		assert.InDelta(t, want, tf.MagnitudeDB[k], 0.5, "magnitude at %.1f Hz", f)
	}
}

func TestFitARX_FirstOrder(t *testing.T) {
	// y[n] = 0.9*y[n-1] + 0.1*u[n-1], a stable first order plant.
	const fs = 1000.0
	rng := rand.New(rand.NewSource(3))

	u := make([]float64, 4000)
	y := make([]float64, len(u))
	for i := range u {
		u[i] = rng.NormFloat64()
		if i > 0 {
			y[i] = 0.9*y[i-1] + 0.1*u[i-1]
		}
	}

	cfg := DefaultConfig().ARX
	m := FitARX(u, y, fs, cfg)
	require.NotNil(t, m)

	assert.True(t, m.Reliable)
	assert.Greater(t, m.FitQuality, 95.0)
	assert.InDelta(t, 0.9, m.A[0], 0.01)
	assert.InDelta(t, 0.1, m.B[0], 0.01)

	// Unit step response converges to the analytic value 1 - 0.9^k.
	require.Len(t, m.StepResponse, cfg.StepLength)
	final := m.StepResponse[len(m.StepResponse)-1]
	assert.InDelta(t, 1, final, 0.05)

	rise, overshoot, settling, ok := m.StepInfo()
	require.True(t, ok)
	assert.Greater(t, rise, 0.0)
	assert.Less(t, overshoot, 5.0)
	assert.Greater(t, settling, 0.0)
}

func TestFitARX_DegenerateInput(t *testing.T) {
	u := make([]float64, 500) // all zeros: regression is singular
	y := make([]float64, 500)

	m := FitARX(u, y, 1000, DefaultConfig().ARX)
	require.NotNil(t, m)
	assert.False(t, m.Reliable)
	assert.Equal(t, 0.0, m.FitQuality)
}

func TestFitARX_TooShort(t *testing.T) {
	m := FitARX(make([]float64, 5), make([]float64, 5), 1000, DefaultConfig().ARX)
	require.NotNil(t, m)
	assert.False(t, m.Reliable)
}

func TestComputeScalogram_BurstDetection(t *testing.T) {
	const fs = 1000.0
	n := 4000
	x := make([]float64, n)
	rng := rand.New(rand.NewSource(4))
	for i := range x {
		x[i] = 0.05 * rng.NormFloat64()
	}
	// An 80 Hz burst between t=1s and t=1.5s.
	for i := 1000; i < 1500; i++ {
		x[i] += 5 * math.Sin(2*math.Pi*80*float64(i)/fs)
	}

	cfg := DefaultConfig().Wavelet
	sg, err := ComputeScalogram(context.Background(), x, fs, cfg)
	require.NoError(t, err)
	require.NotNil(t, sg)

	require.Len(t, sg.Freqs, cfg.NumScales)
	require.Len(t, sg.Power, cfg.NumScales)
	require.Len(t, sg.Dominant, len(sg.Times))
	assert.InDelta(t, 80, sg.DominantHz, 15)

	require.NotEmpty(t, sg.Bursts)
	found := false
	for _, b := range sg.Bursts {
		if b.StartTime < 1.6 && b.EndTime > 0.9 && b.MinFreqHz < 100 && b.MaxFreqHz > 60 {
			found = true
		}
	}
	assert.True(t, found, "expected a burst covering the injected oscillation")
}

func TestComputeScalogram_Decimation(t *testing.T) {
	const fs = 8000.0
	x := make([]float64, 40000)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 30 * float64(i) / fs)
	}

	cfg := DefaultConfig().Wavelet
	sg, err := ComputeScalogram(context.Background(), x, fs, cfg)
	require.NoError(t, err)
	require.NotNil(t, sg)

	// The decimation factor is capped so the rate stays above 4x the top
	// analysed frequency, so the width can exceed MaxColumns slightly.
	assert.Less(t, len(sg.Times), len(x)/8)
	assert.InDelta(t, 30, sg.DominantHz, 10)
}

func TestComputeScalogram_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := make([]float64, 1024)
	_, err := ComputeScalogram(ctx, x, 1000, DefaultConfig().Wavelet)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeScalogram_ShortInput(t *testing.T) {
	sg, err := ComputeScalogram(context.Background(), make([]float64, 8), 1000, DefaultConfig().Wavelet)
	require.NoError(t, err)
	assert.Nil(t, sg)
}
