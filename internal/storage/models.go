package storage

import (
	"database/sql"
	"time"
)

// RunData is one analysis run of one log file.
type RunData struct {
	ID         int64
	CreatedAt  time.Time
	LogPath    string
	SampleRate float64
	Segments   int
	Config     sql.NullString // JSON snapshot of the effective configuration
}

// SegmentMetricsData is the flattened per-segment, per-axis metrics row.
// Nullable fields correspond to stages that were skipped or produced no
// data; NULL in the database is the "missing" marker, never zero.
type SegmentMetricsData struct {
	ID        int64
	RunID     int64
	Segment   int
	Axis      string
	StartTime float64
	Duration  float64

	ErrorMean float64
	ErrorRMS  float64
	ErrorPeak float64

	StepCount     int
	RiseMean      sql.NullFloat64
	RiseStd       sql.NullFloat64
	OvershootMean sql.NullFloat64
	OvershootStd  sql.NullFloat64
	SettlingMean  sql.NullFloat64
	SettlingStd   sql.NullFloat64
	SteadyErrMean sql.NullFloat64

	LowEnergy     sql.NullFloat64
	MidEnergy     sql.NullFloat64
	HighEnergy    sql.NullFloat64
	PeakHz        sql.NullFloat64
	HighBandRatio sql.NullFloat64

	BandwidthHz sql.NullFloat64
	FitQuality  sql.NullFloat64

	ScoreTracking float64
	ScoreNoise    float64
	ScoreResponse float64
	ScoreOverall  float64
}

// RecommendationData is one stored PID adjustment.
type RecommendationData struct {
	ID            int64
	RunID         int64
	Axis          string
	Term          string
	AdjustmentPct float64
	Priority      int
	Evidence      []string
}

// AdvisoryData is one stored non-PID advisory.
type AdvisoryData struct {
	ID       int64
	RunID    int64
	Axis     string
	Kind     string
	Message  string
	Evidence []string
}

// ScalogramData is a stored time-frequency grid. Times, Freqs, Power and
// Bursts are kept as JSON so the scalogram tool can re-render without
// re-running the wavelet stage.
type ScalogramData struct {
	ID         int64
	RunID      int64
	Segment    int
	Axis       string
	Times      []float64
	Freqs      []float64
	Power      [][]float64
	Bursts     []BurstData
	DominantHz float64
}

// BurstData is one flagged oscillation burst within a scalogram.
type BurstData struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	MinFreqHz float64 `json:"minFreqHz"`
	MaxFreqHz float64 `json:"maxFreqHz"`
	PeakPower float64 `json:"peakPower"`
}
