package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/recommend"
	"github.com/droneworks/pidtune/internal/sysid"
)

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Segments  SegmentConfig   `yaml:"segments"`
	Steps     StepConfig      `yaml:"steps"`
	Spectral  SpectralConfig  `yaml:"spectral"`
	Stages    StagesConfig    `yaml:"stages"`
	Sysid     SysidConfig     `yaml:"sysid"`
	Recommend RecommendConfig `yaml:"recommend"`
	Output    OutputConfig    `yaml:"output"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
	Workers  int    `yaml:"workers"` // 0 uses one worker per CPU
}

// SlogLevel parses the configured log level, defaulting to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DecoderConfig configures the external blackbox_decode invocation
type DecoderConfig struct {
	Binary   string `yaml:"binary"`   // empty probes PATH
	LogIndex int    `yaml:"logIndex"` // flight index in a multi-flight log
}

// SegmentConfig configures active flight detection
type SegmentConfig struct {
	ActivationThreshold float64 `yaml:"activationThreshold"` // raw RC units
	Hysteresis          float64 `yaml:"hysteresis"`          // raw RC units
	MinDuration         float64 `yaml:"minDuration"`         // seconds
	MaxGap              float64 `yaml:"maxGap"`              // seconds
	Debounce            float64 `yaml:"debounce"`            // seconds
}

// StepConfig configures step response detection
type StepConfig struct {
	MinAmplitude       float64 `yaml:"minAmplitude"`       // deg/s
	DetectWindow       float64 `yaml:"detectWindow"`       // seconds
	MinSpacing         float64 `yaml:"minSpacing"`         // seconds
	ResponseWindow     float64 `yaml:"responseWindow"`     // seconds
	SettleTolerancePct float64 `yaml:"settleTolerancePct"` // percent of step amplitude
}

// SpectralConfig configures Welch PSD estimation
type SpectralConfig struct {
	WindowSize int       `yaml:"windowSize"` // samples, power of two
	Overlap    float64   `yaml:"overlap"`    // fraction [0,1)
	BandEdges  []float64 `yaml:"bandEdges"`  // Hz, [low/mid edge, mid/high edge]
}

// SysidConfig tunes the system identification estimators
type SysidConfig struct {
	ArxOrder           int     `yaml:"arxOrder"`           // na and nb
	CoherenceThreshold float64 `yaml:"coherenceThreshold"` // gamma^2 below it is unreliable
	WaveletScales      int     `yaml:"waveletScales"`
	BurstSigmaK        float64 `yaml:"burstSigmaK"`        // k in the mu + k*sigma burst threshold
}

// StagesConfig toggles the system identification stages
type StagesConfig struct {
	Transfer bool `yaml:"transfer"`
	Model    bool `yaml:"model"`
	Wavelet  bool `yaml:"wavelet"`
}

// RecommendConfig carries tuning context the log cannot provide and the
// per-term caps on the total recommended adjustment
type RecommendConfig struct {
	CurrentD       []float64  `yaml:"currentD"` // roll, pitch, yaw D gains
	DTermCeiling   float64    `yaml:"dTermCeiling"`
	AdjustmentCaps CapsConfig `yaml:"adjustmentCaps"`
}

// CapsConfig bounds the absolute adjustment percentage per term
type CapsConfig struct {
	P float64 `yaml:"p"`
	I float64 `yaml:"i"`
	D float64 `yaml:"d"`
}

// OutputConfig selects where results are written. Empty paths disable the
// corresponding output.
type OutputConfig struct {
	Database           string `yaml:"database"`
	ReportHTML         string `yaml:"reportHtml"`
	MetricsCSV         string `yaml:"metricsCsv"`
	RecommendationsCSV string `yaml:"recommendationsCsv"`
	PlotsDir           string `yaml:"plotsDir"`
}

// LoadConfig reads a YAML configuration file. An empty path returns the
// defaults: all stages on, report and database next to the working
// directory.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return config, nil
}

func defaultConfig() *Config {
	seg := flight.DefaultSegmentConfig()
	ana := analysis.DefaultConfig()
	rec := recommend.DefaultConfig()
	sys := sysid.DefaultConfig()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Decoder:  DecoderConfig{LogIndex: 1},
		Segments: SegmentConfig{
			ActivationThreshold: seg.ActivationThreshold,
			Hysteresis:          seg.Hysteresis,
			MinDuration:         seg.MinDuration,
			MaxGap:              seg.MaxGap,
			Debounce:            seg.Debounce,
		},
		Steps: StepConfig{
			MinAmplitude:       ana.Step.MinAmplitude,
			DetectWindow:       ana.Step.DetectWindow,
			MinSpacing:         ana.Step.MinSpacing,
			ResponseWindow:     ana.Step.ResponseWindow,
			SettleTolerancePct: ana.Step.SettleTolPct,
		},
		Spectral: SpectralConfig{
			WindowSize: ana.Spectral.WindowSize,
			Overlap:    ana.Spectral.Overlap,
			BandEdges:  []float64{ana.Spectral.LowBandHz, ana.Spectral.MidBandHz},
		},
		Stages: StagesConfig{
			Transfer: true,
			Model:    true,
			Wavelet:  true,
		},
		Sysid: SysidConfig{
			ArxOrder:           sys.ARX.OutputOrder,
			CoherenceThreshold: sys.Transfer.CoherenceThreshold,
			WaveletScales:      sys.Wavelet.NumScales,
			BurstSigmaK:        sys.Wavelet.BurstSigma,
		},
		Recommend: RecommendConfig{
			DTermCeiling: rec.DTermCeiling,
			AdjustmentCaps: CapsConfig{
				P: rec.CapP,
				I: rec.CapI,
				D: rec.CapD,
			},
		},
		Output: OutputConfig{
			Database:   "pidtune.db",
			ReportHTML: "report.html",
		},
	}
}

// analysisConfig merges the file configuration over the analysis defaults.
func (c *Config) analysisConfig() analysis.Config {
	cfg := analysis.DefaultConfig()

	cfg.Segment.ActivationThreshold = c.Segments.ActivationThreshold
	cfg.Segment.Hysteresis = c.Segments.Hysteresis
	cfg.Segment.MinDuration = c.Segments.MinDuration
	cfg.Segment.MaxGap = c.Segments.MaxGap
	cfg.Segment.Debounce = c.Segments.Debounce

	cfg.Step.MinAmplitude = c.Steps.MinAmplitude
	cfg.Step.DetectWindow = c.Steps.DetectWindow
	cfg.Step.MinSpacing = c.Steps.MinSpacing
	cfg.Step.ResponseWindow = c.Steps.ResponseWindow
	cfg.Step.SettleTolPct = c.Steps.SettleTolerancePct

	cfg.Spectral.WindowSize = c.Spectral.WindowSize
	cfg.Spectral.Overlap = c.Spectral.Overlap
	if len(c.Spectral.BandEdges) == 2 {
		cfg.Spectral.LowBandHz = c.Spectral.BandEdges[0]
		cfg.Spectral.MidBandHz = c.Spectral.BandEdges[1]
	}

	cfg.Workers = c.Settings.Workers
	return cfg
}

// recommendConfig merges the file configuration over the rule defaults.
func (c *Config) recommendConfig() recommend.Config {
	cfg := recommend.DefaultConfig()
	if c.Recommend.DTermCeiling > 0 {
		cfg.DTermCeiling = c.Recommend.DTermCeiling
	}
	caps := c.Recommend.AdjustmentCaps
	if caps.P > 0 {
		cfg.CapP = caps.P
	}
	if caps.I > 0 {
		cfg.CapI = caps.I
	}
	if caps.D > 0 {
		cfg.CapD = caps.D
	}
	for i, d := range c.Recommend.CurrentD {
		if i < flight.NumAxes {
			cfg.CurrentD[i] = d
		}
	}
	return cfg
}

func (c *Config) stages() analysis.Stages {
	return analysis.Stages{
		Transfer: c.Stages.Transfer,
		Model:    c.Stages.Model,
		Wavelet:  c.Stages.Wavelet,
	}
}

// sysidConfig merges the file configuration over the estimator defaults.
func (c *Config) sysidConfig() sysid.Config {
	cfg := sysid.DefaultConfig()
	if c.Sysid.ArxOrder > 0 {
		cfg.ARX.OutputOrder = c.Sysid.ArxOrder
		cfg.ARX.InputOrder = c.Sysid.ArxOrder
	}
	if c.Sysid.CoherenceThreshold > 0 {
		cfg.Transfer.CoherenceThreshold = c.Sysid.CoherenceThreshold
	}
	if c.Sysid.WaveletScales > 0 {
		cfg.Wavelet.NumScales = c.Sysid.WaveletScales
	}
	if c.Sysid.BurstSigmaK > 0 {
		cfg.Wavelet.BurstSigma = c.Sysid.BurstSigmaK
	}
	return cfg
}
