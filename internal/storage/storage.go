// Package storage persists analysis runs to SQLite so reports and the
// scalogram renderer can read results without re-analysing the log.
package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store handles database operations
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a new store. Connections are opened lazily on first use.
func New(dbPath string) (*Store, error) {
	return &Store{dbPath: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", s.dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
		if err != nil {
			s.writeDBErr = err
			return
		}

		if err = initSchema(db); err != nil {
			_ = db.Close()
			s.writeDBErr = err
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// The write connection also serves reads when it is already open,
		// otherwise a read-only run (scalogram rendering) opens in ro mode.
		if s.writeDB != nil {
			s.readDB = s.writeDB
			return
		}

		db, err := sql.Open("sqlite3", s.dbPath+"?mode=ro")
		if err != nil {
			s.readDBErr = err
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

const insertRunSQL = `
INSERT INTO runs (created_at, log_path, sample_rate, segments, config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?)`

// CreateRun creates a new analysis run and returns its ID. The config is
// stored as a JSON snapshot for later inspection.
func (s *Store) CreateRun(logPath string, sampleRate float64, segments int, config any) (runID int64, err error) {
	var configData sql.NullString

	if config != nil {
		p, err := json.Marshal(config)
		if err != nil {
			return 0, fmt.Errorf("marshaling config: %w", err)
		}
		configData.Valid = true
		configData.String = string(p)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.Prepare(insertRunSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.Exec(logPath, sampleRate, segments, configData)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}

	return result.LastInsertId()
}

const insertSegmentMetricsSQL = `
INSERT INTO segment_metrics (run_id,
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
                             score_overall)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// BatchInsertSegmentMetrics inserts all metrics rows of a run in a single
// transaction.
func (s *Store) BatchInsertSegmentMetrics(metrics []SegmentMetricsData) (err error) {
	if len(metrics) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.Prepare(insertSegmentMetricsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, m := range metrics {
		_, err = stmt.Exec(
			m.RunID,
			m.Segment,
			m.Axis,
			m.StartTime,
			m.Duration,
			m.ErrorMean,
			m.ErrorRMS,
			m.ErrorPeak,
			m.StepCount,
			m.RiseMean,
			m.RiseStd,
			m.OvershootMean,
			m.OvershootStd,
			m.SettlingMean,
			m.SettlingStd,
			m.SteadyErrMean,
			m.LowEnergy,
			m.MidEnergy,
			m.HighEnergy,
			m.PeakHz,
			m.HighBandRatio,
			m.BandwidthHz,
			m.FitQuality,
			m.ScoreTracking,
			m.ScoreNoise,
			m.ScoreResponse,
			m.ScoreOverall,
		)
		if err != nil {
			return fmt.Errorf("inserting segment metrics: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return
}

const insertRecommendationSQL = `
INSERT INTO recommendations (run_id, axis, term, adjustment_pct, priority, evidence)
VALUES (?, ?, ?, ?, ?, ?)
`

const insertAdvisorySQL = `
INSERT INTO advisories (run_id, axis, kind, message, evidence)
VALUES (?, ?, ?, ?, ?)
`

// InsertRecommendations stores the recommendations and advisories of a run
// in a single transaction.
func (s *Store) InsertRecommendations(recs []RecommendationData, advs []AdvisoryData) (err error) {
	if len(recs) == 0 && len(advs) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for _, r := range recs {
		evidence, err := marshalEvidence(r.Evidence)
		if err != nil {
			return err
		}
		if _, err = tx.Exec(insertRecommendationSQL,
			r.RunID, r.Axis, r.Term, r.AdjustmentPct, r.Priority, evidence); err != nil {
			return fmt.Errorf("inserting recommendation: %w", err)
		}
	}
	for _, a := range advs {
		evidence, err := marshalEvidence(a.Evidence)
		if err != nil {
			return err
		}
		if _, err = tx.Exec(insertAdvisorySQL,
			a.RunID, a.Axis, a.Kind, a.Message, evidence); err != nil {
			return fmt.Errorf("inserting advisory: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return
}

const insertScalogramSQL = `
INSERT INTO scalograms (run_id, segment, axis, times, freqs, power, bursts, dominant_hz)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertScalogram stores one scalogram grid as JSON.
func (s *Store) InsertScalogram(sg ScalogramData) (scalogramID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	times, err := json.Marshal(sg.Times)
	if err != nil {
		return 0, fmt.Errorf("marshaling times: %w", err)
	}
	freqs, err := json.Marshal(sg.Freqs)
	if err != nil {
		return 0, fmt.Errorf("marshaling freqs: %w", err)
	}
	power, err := json.Marshal(sg.Power)
	if err != nil {
		return 0, fmt.Errorf("marshaling power: %w", err)
	}
	bursts, err := json.Marshal(sg.Bursts)
	if err != nil {
		return 0, fmt.Errorf("marshaling bursts: %w", err)
	}

	result, err := db.Exec(insertScalogramSQL,
		sg.RunID, sg.Segment, sg.Axis, string(times), string(freqs), string(power), string(bursts), sg.DominantHz)
	if err != nil {
		return 0, fmt.Errorf("inserting scalogram: %w", err)
	}

	return result.LastInsertId()
}

func marshalEvidence(evidence []string) (sql.NullString, error) {
	if len(evidence) == 0 {
		return sql.NullString{}, nil
	}
	p, err := json.Marshal(evidence)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling evidence: %w", err)
	}
	return sql.NullString{String: string(p), Valid: true}, nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			if s.readDB == s.writeDB {
				s.readDB = nil
			}
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
