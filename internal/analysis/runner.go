package analysis

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/sysid"
)

// AxisResult collects everything the pipeline learned about one axis of
// one segment. The system identification fields are nil when their stage
// is disabled, was abandoned on deadline, or had too little data.
type AxisResult struct {
	Axis flight.Axis

	Error ErrorStats
	Steps []StepMetrics
	Agg   StepAggregate

	Spectrum *FrequencyProfile

	Transfer  *sysid.TransferFunction
	Model     *sysid.ARXModel
	Scalogram *sysid.Scalogram

	Performance PerformanceIndex
}

// SegmentResult is the analysis of one flight segment across all axes.
type SegmentResult struct {
	Segment flight.Segment
	Axes    [flight.NumAxes]AxisResult
}

// Result is the full analysis of one log.
type Result struct {
	SampleRate float64
	Segments   []SegmentResult
}

// Stages selects which system identification stages run on top of the
// always-on basic pipeline.
type Stages struct {
	Transfer bool
	Model    bool
	Wavelet  bool
}

// Runner executes the analysis pipeline over a decoded log.
type Runner struct {
	cfg    Config
	sysCfg sysid.Config
	stages Stages
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStages enables system identification stages.
func WithStages(s Stages) RunnerOption {
	return func(r *Runner) {
		r.stages = s
	}
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg Config, sysCfg sysid.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:    cfg,
		sysCfg: sysCfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run detects flight segments and analyses every segment and axis. Axis
// jobs run on a bounded worker pool; the basic stages always complete for
// every job, while identification stages honour the context and are
// omitted from the result when the deadline cuts them off.
func (r *Runner) Run(ctx context.Context, ts *flight.TimeSeries) (*Result, error) {
	segments := flight.DetectSegments(ts, r.cfg.Segment)
	if len(segments) == 0 {
		return nil, flight.ErrNoActiveSegment
	}

	res := &Result{
		SampleRate: ts.SampleRate,
		Segments:   make([]SegmentResult, len(segments)),
	}
	for i, seg := range segments {
		res.Segments[i].Segment = seg
		r.logger.Info("analysing segment",
			slog.Int("segment", i),
			slog.Float64("start", seg.StartTime()),
			slog.Duration("duration", seg.GoDuration()))
	}

	type job struct {
		seg  int
		axis flight.Axis
	}
	jobs := make(chan job)

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				ar := r.analyseAxis(ctx, segments[j.seg], j.axis)
				res.Segments[j.seg].Axes[j.axis] = ar
			}
		}()
	}

	for i := range segments {
		for _, axis := range flight.Axes {
			jobs <- job{seg: i, axis: axis}
		}
	}
	close(jobs)
	wg.Wait()

	return res, ctx.Err()
}

// analyseAxis runs every stage for one segment and axis. Each job writes
// to its own slot in the result so workers never share state.
func (r *Runner) analyseAxis(ctx context.Context, seg flight.Segment, axis flight.Axis) AxisResult {
	ar := AxisResult{Axis: axis}

	ar.Error = TrackingError(seg, axis)
	ar.Steps, ar.Agg = AnalyzeSteps(seg, axis, r.cfg.Step)
	ar.Spectrum = AnalyzeSpectrum(seg, axis, r.cfg.Spectral)
	ar.Performance = Score(seg, axis, ar.Error, ar.Agg, ar.Spectrum, r.cfg.Perf)

	fs := seg.Series.SampleRate
	sp, gy := seg.Setpoint(axis), seg.Gyro(axis)

	if r.stages.Transfer && ctx.Err() == nil {
		tf, err := sysid.EstimateTransferFunction(sp, gy, fs, r.sysCfg.Transfer)
		if err != nil {
			r.logger.Warn("transfer function skipped",
				slog.String("axis", axis.String()), slog.Any("error", err))
		} else {
			ar.Transfer = tf
		}
	}

	if r.stages.Model && ctx.Err() == nil {
		ar.Model = sysid.FitARX(sp, gy, fs, r.sysCfg.ARX)
		if !ar.Model.Reliable {
			r.logger.Debug("arx model unreliable",
				slog.String("axis", axis.String()),
				slog.Float64("fit", ar.Model.FitQuality))
		}
	}

	if r.stages.Wavelet {
		sg, err := sysid.ComputeScalogram(ctx, gy, fs, r.sysCfg.Wavelet)
		if err != nil {
			r.logger.Warn("scalogram abandoned",
				slog.String("axis", axis.String()), slog.Any("error", err))
		} else {
			ar.Scalogram = sg
		}
	}

	return ar
}
