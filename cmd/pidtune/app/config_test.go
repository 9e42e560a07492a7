package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, config.Settings.SlogLevel())
	assert.Equal(t, 1, config.Decoder.LogIndex)
	assert.Equal(t, 30.0, config.Steps.MinAmplitude)
	assert.Equal(t, 1024, config.Spectral.WindowSize)
	assert.True(t, config.Stages.Transfer)
	assert.True(t, config.Stages.Model)
	assert.True(t, config.Stages.Wavelet)
	assert.Equal(t, "pidtune.db", config.Output.Database)
	assert.Equal(t, "report.html", config.Output.ReportHTML)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
settings:
  logLevel: debug
  workers: 2
decoder:
  binary: /opt/blackbox_decode
  logIndex: 3
steps:
  minAmplitude: 50
  detectWindow: 0.03
  minSpacing: 0.4
  settleTolerancePct: 3
spectral:
  bandEdges: [8, 25]
stages:
  wavelet: false
sysid:
  arxOrder: 4
  coherenceThreshold: 0.6
  waveletScales: 48
  burstSigmaK: 2.5
recommend:
  currentD: [42, 40, 0]
  adjustmentCaps:
    p: 10
    d: 15
output:
  database: ""
  reportHtml: out.html
  plotsDir: plots
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, config.Settings.SlogLevel())
	assert.Equal(t, "/opt/blackbox_decode", config.Decoder.Binary)
	assert.Equal(t, 3, config.Decoder.LogIndex)
	assert.Equal(t, 50.0, config.Steps.MinAmplitude)
	assert.False(t, config.Stages.Wavelet)
	assert.Empty(t, config.Output.Database)
	assert.Equal(t, "out.html", config.Output.ReportHTML)
	assert.Equal(t, "plots", config.Output.PlotsDir)

	ana := config.analysisConfig()
	assert.Equal(t, 50.0, ana.Step.MinAmplitude)
	assert.Equal(t, 0.03, ana.Step.DetectWindow)
	assert.Equal(t, 0.4, ana.Step.MinSpacing)
	assert.Equal(t, 3.0, ana.Step.SettleTolPct)
	assert.Equal(t, 8.0, ana.Spectral.LowBandHz)
	assert.Equal(t, 25.0, ana.Spectral.MidBandHz)

	sys := config.sysidConfig()
	assert.Equal(t, 4, sys.ARX.OutputOrder)
	assert.Equal(t, 4, sys.ARX.InputOrder)
	assert.Equal(t, 0.6, sys.Transfer.CoherenceThreshold)
	assert.Equal(t, 48, sys.Wavelet.NumScales)
	assert.Equal(t, 2.5, sys.Wavelet.BurstSigma)

	rec := config.recommendConfig()
	assert.Equal(t, 42.0, rec.CurrentD[0])
	assert.Equal(t, 10.0, rec.CapP)
	assert.Equal(t, 15.0, rec.CapI) // not overridden, default kept
	assert.Equal(t, 15.0, rec.CapD)

	stages := config.stages()
	assert.True(t, stages.Transfer)
	assert.False(t, stages.Wavelet)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
