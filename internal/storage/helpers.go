package storage

import (
	"database/sql"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/recommend"
	"github.com/droneworks/pidtune/internal/sysid"
)

// FromResult flattens an analysis result into metrics rows. Stage results
// that are absent become NULL columns, preserving the missing marker.
func FromResult(runID int64, res *analysis.Result) []SegmentMetricsData {
	var out []SegmentMetricsData

	for i, sr := range res.Segments {
		for _, ar := range sr.Axes {
			m := SegmentMetricsData{
				RunID:     runID,
				Segment:   i,
				Axis:      ar.Axis.String(),
				StartTime: sr.Segment.StartTime(),
				Duration:  sr.Segment.Duration(),

				ErrorMean: ar.Error.Mean,
				ErrorRMS:  ar.Error.RMS,
				ErrorPeak: ar.Error.Peak,

				ScoreTracking: ar.Performance.Tracking,
				ScoreNoise:    ar.Performance.Noise,
				ScoreResponse: ar.Performance.Responsiveness,
				ScoreOverall:  ar.Performance.Overall,
			}

			if ar.Agg.Valid {
				m.StepCount = ar.Agg.Count
				m.RiseMean = nullFloat(ar.Agg.RiseMean)
				m.RiseStd = nullFloat(ar.Agg.RiseStd)
				m.OvershootMean = nullFloat(ar.Agg.OvershootMean)
				m.OvershootStd = nullFloat(ar.Agg.OvershootStd)
				m.SettlingMean = nullFloat(ar.Agg.SettlingMean)
				m.SettlingStd = nullFloat(ar.Agg.SettlingStd)
				m.SteadyErrMean = nullFloat(ar.Agg.SteadyErrMean)
			}

			if ar.Spectrum != nil && !ar.Spectrum.Skipped {
				m.LowEnergy = nullFloat(ar.Spectrum.GyroBands[analysis.LowBand].Energy)
				m.MidEnergy = nullFloat(ar.Spectrum.GyroBands[analysis.MidBand].Energy)
				m.HighEnergy = nullFloat(ar.Spectrum.GyroBands[analysis.HighBand].Energy)
				m.PeakHz = nullFloat(ar.Spectrum.PeakHz)
				m.HighBandRatio = nullFloat(ar.Spectrum.HighBandRatio)
			}

			if ar.Transfer != nil {
				m.BandwidthHz = nullFloat(ar.Transfer.BandwidthHz)
			}
			if ar.Model != nil {
				m.FitQuality = nullFloat(ar.Model.FitQuality)
			}

			out = append(out, m)
		}
	}
	return out
}

// FromRecommendations converts engine output into storable rows.
func FromRecommendations(runID int64, recs []recommend.Recommendation, advs []recommend.Advisory) ([]RecommendationData, []AdvisoryData) {
	recRows := make([]RecommendationData, 0, len(recs))
	for _, r := range recs {
		recRows = append(recRows, RecommendationData{
			RunID:         runID,
			Axis:          r.Axis.String(),
			Term:          r.Term.String(),
			AdjustmentPct: r.AdjustmentPct,
			Priority:      r.Priority,
			Evidence:      r.Evidence,
		})
	}

	advRows := make([]AdvisoryData, 0, len(advs))
	for _, a := range advs {
		advRows = append(advRows, AdvisoryData{
			RunID:    runID,
			Axis:     a.Axis.String(),
			Kind:     a.Kind,
			Message:  a.Message,
			Evidence: a.Evidence,
		})
	}
	return recRows, advRows
}

// FromScalogram converts a computed scalogram into its storable form.
func FromScalogram(runID int64, segment int, axis string, sg *sysid.Scalogram) ScalogramData {
	data := ScalogramData{
		RunID:      runID,
		Segment:    segment,
		Axis:       axis,
		Times:      sg.Times,
		Freqs:      sg.Freqs,
		Power:      sg.Power,
		DominantHz: sg.DominantHz,
	}
	for _, b := range sg.Bursts {
		data.Bursts = append(data.Bursts, BurstData{
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			MinFreqHz: b.MinFreqHz,
			MaxFreqHz: b.MaxFreqHz,
			PeakPower: b.PeakPower,
		})
	}
	return data
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
