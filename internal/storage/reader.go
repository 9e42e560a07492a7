package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const selectRunSQL = `
SELECT id,
       created_at,
       log_path,
       sample_rate,
       segments,
       config
FROM runs
WHERE id = ?`

// Run returns a run by its ID.
func (s *Store) Run(id int64) (run *RunData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var r RunData
	err = db.QueryRow(selectRunSQL, id).Scan(
		&r.ID, &r.CreatedAt, &r.LogPath, &r.SampleRate, &r.Segments, &r.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return &r, nil
}

const selectRunsSQL = `
SELECT id,
       created_at,
       log_path,
       sample_rate,
       segments,
       config
FROM runs
ORDER BY id`

// Runs returns all stored runs.
func (s *Store) Runs() (runs []RunData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.Query(selectRunsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r RunData
		if err = rows.Scan(&r.ID, &r.CreatedAt, &r.LogPath, &r.SampleRate, &r.Segments, &r.Config); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const selectSegmentMetricsSQL = `
SELECT id,
       run_id,
       segment,
       axis,
       start_time,
       duration,
       error_mean,
       error_rms,
       error_peak,
       step_count,
       rise_mean,
       rise_std,
       overshoot_mean,
       overshoot_std,
       settling_mean,
       settling_std,
       steady_err_mean,
       low_energy,
       mid_energy,
       high_energy,
       peak_hz,
       high_band_ratio,
       bandwidth_hz,
       fit_quality,
       score_tracking,
       score_noise,
       score_response,
       score_overall
FROM segment_metrics
WHERE run_id = ?
ORDER BY segment, axis`

// SegmentMetrics returns every metrics row of a run.
func (s *Store) SegmentMetrics(runID int64) (metrics []SegmentMetricsData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.Query(selectSegmentMetricsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying segment metrics: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m SegmentMetricsData
		err = rows.Scan(
			&m.ID, &m.RunID, &m.Segment, &m.Axis, &m.StartTime, &m.Duration,
			&m.ErrorMean, &m.ErrorRMS, &m.ErrorPeak,
			&m.StepCount, &m.RiseMean, &m.RiseStd, &m.OvershootMean, &m.OvershootStd,
			&m.SettlingMean, &m.SettlingStd, &m.SteadyErrMean,
			&m.LowEnergy, &m.MidEnergy, &m.HighEnergy, &m.PeakHz, &m.HighBandRatio,
			&m.BandwidthHz, &m.FitQuality,
			&m.ScoreTracking, &m.ScoreNoise, &m.ScoreResponse, &m.ScoreOverall,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning segment metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

const selectRecommendationsSQL = `
SELECT id,
       run_id,
       axis,
       term,
       adjustment_pct,
       priority,
       evidence
FROM recommendations
WHERE run_id = ?
ORDER BY priority, axis`

// Recommendations returns the stored recommendations of a run in priority
// order.
func (s *Store) Recommendations(runID int64) (recs []RecommendationData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.Query(selectRecommendationsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r RecommendationData
		var evidence sql.NullString
		if err = rows.Scan(&r.ID, &r.RunID, &r.Axis, &r.Term, &r.AdjustmentPct, &r.Priority, &evidence); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		if r.Evidence, err = unmarshalEvidence(evidence); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

const selectAdvisoriesSQL = `
SELECT id,
       run_id,
       axis,
       kind,
       message,
       evidence
FROM advisories
WHERE run_id = ?
ORDER BY id`

// Advisories returns the stored advisories of a run.
func (s *Store) Advisories(runID int64) (advs []AdvisoryData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.Query(selectAdvisoriesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying advisories: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var a AdvisoryData
		var evidence sql.NullString
		if err = rows.Scan(&a.ID, &a.RunID, &a.Axis, &a.Kind, &a.Message, &evidence); err != nil {
			return nil, fmt.Errorf("scanning advisory: %w", err)
		}
		if a.Evidence, err = unmarshalEvidence(evidence); err != nil {
			return nil, err
		}
		advs = append(advs, a)
	}
	return advs, rows.Err()
}

const selectScalogramSQL = `
SELECT id,
       run_id,
       segment,
       axis,
       times,
       freqs,
       power,
       bursts,
       dominant_hz
FROM scalograms
WHERE run_id = ?
  AND segment = ?
  AND axis = ?`

// Scalogram returns the stored scalogram of one segment and axis.
func (s *Store) Scalogram(runID int64, segment int, axis string) (sg *ScalogramData, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var data ScalogramData
	var times, freqs, power string
	var bursts sql.NullString
	err = db.QueryRow(selectScalogramSQL, runID, segment, axis).Scan(
		&data.ID, &data.RunID, &data.Segment, &data.Axis, &times, &freqs, &power, &bursts, &data.DominantHz)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scalogram run=%d segment=%d axis=%s: %w", runID, segment, axis, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning scalogram: %w", err)
	}

	if err = json.Unmarshal([]byte(times), &data.Times); err != nil {
		return nil, fmt.Errorf("unmarshaling times: %w", err)
	}
	if err = json.Unmarshal([]byte(freqs), &data.Freqs); err != nil {
		return nil, fmt.Errorf("unmarshaling freqs: %w", err)
	}
	if err = json.Unmarshal([]byte(power), &data.Power); err != nil {
		return nil, fmt.Errorf("unmarshaling power: %w", err)
	}
	if bursts.Valid {
		if err = json.Unmarshal([]byte(bursts.String), &data.Bursts); err != nil {
			return nil, fmt.Errorf("unmarshaling bursts: %w", err)
		}
	}
	return &data, nil
}

func unmarshalEvidence(evidence sql.NullString) ([]string, error) {
	if !evidence.Valid {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(evidence.String), &out); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}
	return out, nil
}
