package app

import (
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/droneworks/pidtune/internal/render"
	"github.com/droneworks/pidtune/internal/storage"
	"github.com/droneworks/pidtune/internal/sysid"
)

// Run loads one stored scalogram and renders it into an image file.
func Run(config *Config, logger *slog.Logger) (err error) {
	if _, err = os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store, err := storage.New(config.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if cErr := store.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing database: %w", cErr)
		}
	}()

	run, err := store.Run(config.RunID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	axis := strings.ToLower(config.Axis)
	data, err := store.Scalogram(config.RunID, config.Segment, axis)
	if err != nil {
		return fmt.Errorf("loading scalogram: %w", err)
	}

	sg := toScalogram(data)

	logger.Info("rendering scalogram",
		slog.Int64("runId", config.RunID),
		slog.Int("segment", config.Segment),
		slog.String("axis", axis),
		slog.Int("columns", len(sg.Times)),
		slog.Int("scales", len(sg.Freqs)),
		slog.Int("bursts", len(sg.Bursts)),
		slog.String("dominant", fmt.Sprintf("%.1f Hz", sg.DominantHz)))

	renderer, err := render.NewRenderer(render.Config{
		ColorTheme:    config.Theme,
		OutlineBursts: !config.NoOutlines,
	})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	img, err := renderer.Render(sg, render.Info{
		LogPath: run.LogPath,
		Axis:    axis,
		Segment: config.Segment,
	})
	if err != nil {
		return fmt.Errorf("rendering scalogram: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cErr)
		}
	}()

	switch config.Format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	logger.Info("scalogram written", slog.String("path", config.OutputFile))
	return nil
}

func toScalogram(data *storage.ScalogramData) *sysid.Scalogram {
	sg := &sysid.Scalogram{
		Times:      data.Times,
		Freqs:      data.Freqs,
		Power:      data.Power,
		DominantHz: data.DominantHz,
	}
	for _, b := range data.Bursts {
		sg.Bursts = append(sg.Bursts, sysid.Burst{
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			MinFreqHz: b.MinFreqHz,
			MaxFreqHz: b.MaxFreqHz,
			PeakPower: b.PeakPower,
		})
	}
	return sg
}
