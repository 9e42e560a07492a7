package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/blackbox"
	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/recommend"
	"github.com/droneworks/pidtune/internal/report"
	"github.com/droneworks/pidtune/internal/storage"
)

// Run executes the whole pipeline for one log: decode, analyse, recommend,
// persist and report.
func Run(ctx context.Context, config *Config, logPath string, logger *slog.Logger) error {
	ts, err := decode(ctx, config, logPath, logger)
	if err != nil {
		return err
	}

	logger.Info("log decoded",
		slog.String("samples", humanize.Comma(int64(ts.Len()))),
		slog.String("duration", fmt.Sprintf("%.1fs", ts.Duration())),
		slog.String("sampleRate", fmt.Sprintf("%.0f Hz", ts.SampleRate)))

	runner := analysis.NewRunner(config.analysisConfig(), config.sysidConfig(),
		analysis.WithLogger(logger),
		analysis.WithStages(config.stages()))

	res, err := runner.Run(ctx, ts)
	if errors.Is(err, flight.ErrNoActiveSegment) {
		logger.Warn("no active flight detected; nothing to analyse")
		return nil
	}
	if err != nil {
		return fmt.Errorf("analysing log: %w", err)
	}

	metrics := recommend.BuildAxisMetrics(res)
	recs, advs := recommend.Evaluate(metrics, config.recommendConfig())

	logRecommendations(logger, recs, advs)

	if config.Output.Database != "" {
		if err = persist(config, logPath, res, recs, advs, logger); err != nil {
			return err
		}
	}

	return writeOutputs(config, logPath, res, recs, advs, logger)
}

func decode(ctx context.Context, config *Config, logPath string, logger *slog.Logger) (*flight.TimeSeries, error) {
	options := []func(*blackbox.Decoder){
		blackbox.WithLogger(logger),
		blackbox.WithLogIndex(config.Decoder.LogIndex),
	}
	if config.Decoder.Binary != "" {
		options = append(options, blackbox.WithBinary(config.Decoder.Binary))
	}

	ts, err := blackbox.NewDecoder(options...).Decode(ctx, logPath)
	if err != nil {
		return nil, fmt.Errorf("decoding log: %w", err)
	}
	return ts, nil
}

func persist(config *Config, logPath string, res *analysis.Result,
	recs []recommend.Recommendation, advs []recommend.Advisory, logger *slog.Logger) (err error) {

	store, err := storage.New(config.Output.Database)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	defer func() {
		if cErr := store.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing storage: %w", cErr)
		}
	}()

	runID, err := store.CreateRun(logPath, res.SampleRate, len(res.Segments), config)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	if err = store.BatchInsertSegmentMetrics(storage.FromResult(runID, res)); err != nil {
		return fmt.Errorf("storing segment metrics: %w", err)
	}

	recRows, advRows := storage.FromRecommendations(runID, recs, advs)
	if err = store.InsertRecommendations(recRows, advRows); err != nil {
		return fmt.Errorf("storing recommendations: %w", err)
	}

	for i, sr := range res.Segments {
		for _, axis := range flight.Axes {
			sg := sr.Axes[axis].Scalogram
			if sg == nil {
				continue
			}
			if _, err = store.InsertScalogram(storage.FromScalogram(runID, i, axis.String(), sg)); err != nil {
				return fmt.Errorf("storing scalogram: %w", err)
			}
		}
	}

	logger.Info("run stored",
		slog.Int64("runId", runID),
		slog.String("database", config.Output.Database))
	return nil
}

func writeOutputs(config *Config, logPath string, res *analysis.Result,
	recs []recommend.Recommendation, advs []recommend.Advisory, logger *slog.Logger) error {

	data := report.Data{
		LogPath:         logPath,
		Result:          res,
		Recommendations: recs,
		Advisories:      advs,
	}

	if path := config.Output.ReportHTML; path != "" {
		if err := report.WriteHTMLFile(path, data); err != nil {
			return fmt.Errorf("writing HTML report: %w", err)
		}
		logger.Info("report written", slog.String("path", path))
	}

	if path := config.Output.MetricsCSV; path != "" {
		if err := writeCSV(path, func(f *os.File) error {
			return report.WriteMetricsCSV(f, data)
		}); err != nil {
			return fmt.Errorf("writing metrics CSV: %w", err)
		}
		logger.Info("metrics exported", slog.String("path", path))
	}

	if path := config.Output.RecommendationsCSV; path != "" {
		if err := writeCSV(path, func(f *os.File) error {
			return report.WriteRecommendationsCSV(f, recs, advs)
		}); err != nil {
			return fmt.Errorf("writing recommendations CSV: %w", err)
		}
		logger.Info("recommendations exported", slog.String("path", path))
	}

	if dir := config.Output.PlotsDir; dir != "" {
		if err := report.SavePlots(dir, res); err != nil {
			return fmt.Errorf("writing plots: %w", err)
		}
		logger.Info("plots written", slog.String("dir", dir))
	}

	return nil
}

func writeCSV(path string, write func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", cErr)
		}
	}()

	return write(f)
}

func logRecommendations(logger *slog.Logger, recs []recommend.Recommendation, advs []recommend.Advisory) {
	if len(recs) == 0 && len(advs) == 0 {
		logger.Info("tune looks healthy; no adjustments recommended")
		return
	}

	for _, r := range recs {
		logger.Info("recommendation",
			slog.String("axis", r.Axis.String()),
			slog.String("term", r.Term.String()),
			slog.String("adjustment", fmt.Sprintf("%+.1f%%", r.AdjustmentPct)),
			slog.Int("priority", r.Priority))
	}
	for _, a := range advs {
		logger.Warn("advisory",
			slog.String("axis", a.Axis.String()),
			slog.String("kind", a.Kind),
			slog.String("message", a.Message))
	}
}
