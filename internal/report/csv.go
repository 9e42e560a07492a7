package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/recommend"
)

// WriteMetricsCSV exports the per-segment, per-axis metrics table. Missing
// stage values are written as empty fields, not zeros.
func WriteMetricsCSV(w io.Writer, data Data) error {
	cw := csv.NewWriter(w)

	header := []string{
		"segment", "axis", "start_s", "duration_s",
		"error_mean", "error_rms", "error_peak",
		"step_count", "rise_mean_s", "overshoot_mean_pct", "settling_mean_s", "steady_err_mean",
		"peak_hz", "high_band_ratio",
		"bandwidth_hz", "fit_quality",
		"score_tracking", "score_noise", "score_response", "score_overall",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, sr := range data.Result.Segments {
		for _, axis := range flight.Axes {
			ar := sr.Axes[axis]
			row := []string{
				strconv.Itoa(i),
				axis.String(),
				num(sr.Segment.StartTime()),
				num(sr.Segment.Duration()),
				num(ar.Error.Mean),
				num(ar.Error.RMS),
				num(ar.Error.Peak),
			}

			if ar.Agg.Valid {
				row = append(row,
					strconv.Itoa(ar.Agg.Count),
					num(ar.Agg.RiseMean),
					num(ar.Agg.OvershootMean),
					num(ar.Agg.SettlingMean),
					num(ar.Agg.SteadyErrMean))
			} else {
				row = append(row, "0", "", "", "", "")
			}

			if sp := ar.Spectrum; sp != nil && !sp.Skipped {
				row = append(row, num(sp.PeakHz), num(sp.HighBandRatio))
			} else {
				row = append(row, "", "")
			}

			if ar.Transfer != nil {
				row = append(row, num(ar.Transfer.BandwidthHz))
			} else {
				row = append(row, "")
			}
			if ar.Model != nil {
				row = append(row, num(ar.Model.FitQuality))
			} else {
				row = append(row, "")
			}

			row = append(row,
				num(ar.Performance.Tracking),
				num(ar.Performance.Noise),
				num(ar.Performance.Responsiveness),
				num(ar.Performance.Overall))

			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing metrics row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRecommendationsCSV exports recommendations and advisories.
func WriteRecommendationsCSV(w io.Writer, recs []recommend.Recommendation, advs []recommend.Advisory) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"type", "axis", "term_or_kind", "adjustment_pct", "priority", "detail"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range recs {
		row := []string{
			"recommendation",
			r.Axis.String(),
			r.Term.String(),
			num(r.AdjustmentPct),
			strconv.Itoa(r.Priority),
			strings.Join(r.Evidence, "; "),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing recommendation row: %w", err)
		}
	}
	for _, a := range advs {
		row := []string{
			"advisory",
			a.Axis.String(),
			a.Kind,
			"",
			"",
			a.Message,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing advisory row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
