package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runlab/orchestrator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			hypothesis_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_stage TEXT NOT NULL DEFAULT '{}',
			stage_timing TEXT NOT NULL DEFAULT '{}',
			metrics TEXT NOT NULL DEFAULT '{}',
			pod TEXT,
			last_event_seq INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			hidden INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME,
			failed_at DATETIME,
			last_heartbeat_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_hypothesis ON runs(hypothesis_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS stages (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			summary TEXT,
			started_at DATETIME,
			completed_at DATETIME,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS validations (
			validation_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			passed INTEGER NOT NULL,
			score REAL,
			rubric TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validations_run ON validations(run_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			artifact_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			key TEXT NOT NULL,
			uri TEXT NOT NULL,
			content_type TEXT,
			size_bytes INTEGER,
			checksum TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			seq INTEGER,
			payload TEXT,
			occurred_at DATETIME NOT NULL,
			received_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, received_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	currentStage, _ := json.Marshal(run.CurrentStage)
	timing, _ := json.Marshal(orEmptyTiming(run.StageTiming))
	metrics, _ := json.Marshal(orEmptyMetrics(run.Metrics))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, hypothesis_id, status, current_stage, stage_timing, metrics, pod, last_event_seq, error, hidden, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.HypothesisID, run.Status, string(currentStage), string(timing), string(metrics),
		marshalNullable(run.Pod), run.LastEventSeq, marshalNullable(run.Error), run.Hidden, run.CreatedAt, run.UpdatedAt)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, hypothesis_id, status, current_stage, stage_timing, metrics, pod, last_event_seq, error, hidden,
		        created_at, updated_at, started_at, completed_at, failed_at, last_heartbeat_at
		 FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs, newest first, filtered to one hypothesis when
// hypothesisID is non-empty. Hidden runs are excluded.
func (s *SQLiteStore) ListRuns(ctx context.Context, hypothesisID string, limit int) ([]domain.Run, error) {
	query := `SELECT run_id, hypothesis_id, status, current_stage, stage_timing, metrics, pod, last_event_seq, error, hidden,
	                 created_at, updated_at, started_at, completed_at, failed_at, last_heartbeat_at
	          FROM runs WHERE hidden = 0`
	var args []interface{}
	if hypothesisID != "" {
		query += ` AND hypothesis_id = ?`
		args = append(args, hypothesisID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ApplyProjection writes the projected run row and any accompanying records
// in one transaction. The run update is a single conditional statement so
// concurrent deliveries for the same run cannot lose updates.
func (s *SQLiteStore) ApplyProjection(ctx context.Context, upd *ProjectionUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	run := upd.Run
	currentStage, _ := json.Marshal(run.CurrentStage)
	timing, _ := json.Marshal(orEmptyTiming(run.StageTiming))
	metrics, _ := json.Marshal(orEmptyMetrics(run.Metrics))

	var res sql.Result
	if upd.Seq != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, current_stage = ?, stage_timing = ?, metrics = ?, pod = ?, error = ?,
			        updated_at = ?, started_at = ?, completed_at = ?, failed_at = ?, last_heartbeat_at = ?,
			        last_event_seq = ?
			 WHERE run_id = ? AND last_event_seq < ?`,
			run.Status, string(currentStage), string(timing), string(metrics),
			marshalNullable(run.Pod), marshalNullable(run.Error),
			run.UpdatedAt, nullTime(run.StartedAt), nullTime(run.CompletedAt), nullTime(run.FailedAt), nullTime(run.LastHeartbeatAt),
			*upd.Seq, run.RunID, *upd.Seq)
	} else {
		// A seqless event was projected from a read that may already be
		// stale, and there is no sequence to gate on. Writing the full row
		// here could revert state committed by a concurrent delivery, so
		// only the liveness fields are touched.
		res, err = tx.ExecContext(ctx,
			`UPDATE runs SET last_heartbeat_at = COALESCE(?, last_heartbeat_at), updated_at = ?
			 WHERE run_id = ?`,
			nullTime(run.LastHeartbeatAt), run.UpdatedAt, run.RunID)
	}
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Sequence gate rejected the write (or the run vanished). Nothing
		// else from this event may be applied.
		return false, nil
	}

	if upd.Stage != nil {
		st := upd.Stage
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stages (run_id, idx, name, status, progress, summary, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, idx) DO UPDATE SET
			    status = excluded.status,
			    progress = excluded.progress,
			    summary = COALESCE(NULLIF(excluded.summary, ''), stages.summary),
			    started_at = COALESCE(stages.started_at, excluded.started_at),
			    completed_at = COALESCE(excluded.completed_at, stages.completed_at)`,
			st.RunID, st.Index, st.Name, st.Status, st.Progress, st.Summary,
			nullTime(st.StartedAt), nullTime(st.CompletedAt))
		if err != nil {
			return false, err
		}
	}

	if upd.Validation != nil {
		v := upd.Validation
		_, err = tx.ExecContext(ctx,
			`INSERT INTO validations (validation_id, run_id, kind, passed, score, rubric, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ValidationID, v.RunID, v.Kind, v.Passed, v.Score, v.Rubric, v.CreatedAt)
		if err != nil {
			return false, err
		}
	}

	if upd.Artifact != nil {
		a := upd.Artifact
		_, err = tx.ExecContext(ctx,
			`INSERT INTO artifacts (artifact_id, run_id, key, uri, content_type, size_bytes, checksum, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ArtifactID, a.RunID, a.Key, a.URI, a.ContentType, a.SizeBytes, a.Checksum, a.CreatedAt)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateRunStatusIf transitions status only when the current status still
// matches. Terminal transitions stamp the matching timestamp.
func (s *SQLiteStore) UpdateRunStatusIf(ctx context.Context, runID string, from, to domain.RunStatus) (bool, error) {
	now := time.Now().UTC()
	var query string
	switch to {
	case domain.RunStatusFailed:
		query = `UPDATE runs SET status = ?, updated_at = ?, failed_at = ? WHERE run_id = ? AND status = ?`
	case domain.RunStatusCanceled, domain.RunStatusCompleted, domain.RunStatusHumanValidated:
		query = `UPDATE runs SET status = ?, updated_at = ?, completed_at = ? WHERE run_id = ? AND status = ?`
	default:
		query = `UPDATE runs SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?`
		res, err := s.db.ExecContext(ctx, query, to, now, runID, from)
		if err != nil {
			return false, err
		}
		affected, err := res.RowsAffected()
		return affected > 0, err
	}
	res, err := s.db.ExecContext(ctx, query, to, now, now, runID, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// SetRunHidden flips the soft-delete flag.
func (s *SQLiteStore) SetRunHidden(ctx context.Context, runID string, hidden bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET hidden = ?, updated_at = ? WHERE run_id = ?`,
		hidden, time.Now().UTC(), runID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// CreateEvent appends an event to the log. Events are never mutated.
func (s *SQLiteStore) CreateEvent(ctx context.Context, evt *domain.EventRecord) error {
	var seq sql.NullInt64
	if evt.Seq != nil {
		seq = sql.NullInt64{Int64: *evt.Seq, Valid: true}
	}
	payload := ""
	if evt.Payload != nil {
		payload = string(evt.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, type, source, seq, payload, occurred_at, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.EventID, evt.RunID, evt.Type, evt.Source, seq, payload, evt.OccurredAt, evt.ReceivedAt)
	return err
}

// GetEvents retrieves the event log for a run in arrival order.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, limit int) ([]domain.EventRecord, error) {
	query := `SELECT event_id, run_id, type, source, seq, payload, occurred_at, received_at
	          FROM events WHERE run_id = ? ORDER BY received_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.EventRecord
	for rows.Next() {
		var evt domain.EventRecord
		var seq sql.NullInt64
		var payload sql.NullString
		if err := rows.Scan(&evt.EventID, &evt.RunID, &evt.Type, &evt.Source, &seq, &payload, &evt.OccurredAt, &evt.ReceivedAt); err != nil {
			return nil, err
		}
		if seq.Valid {
			v := seq.Int64
			evt.Seq = &v
		}
		if payload.Valid && payload.String != "" {
			evt.Payload = json.RawMessage(payload.String)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// GetStages retrieves the stages of a run ordered by index.
func (s *SQLiteStore) GetStages(ctx context.Context, runID string) ([]domain.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, idx, name, status, progress, summary, started_at, completed_at
		 FROM stages WHERE run_id = ? ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []domain.Stage
	for rows.Next() {
		var st domain.Stage
		var summary sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&st.RunID, &st.Index, &st.Name, &st.Status, &st.Progress, &summary, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if summary.Valid {
			st.Summary = summary.String
		}
		if startedAt.Valid {
			st.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			st.CompletedAt = &completedAt.Time
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// GetValidations retrieves validation records for a run, newest first.
func (s *SQLiteStore) GetValidations(ctx context.Context, runID string) ([]domain.Validation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT validation_id, run_id, kind, passed, score, rubric, created_at
		 FROM validations WHERE run_id = ? ORDER BY created_at DESC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var validations []domain.Validation
	for rows.Next() {
		var v domain.Validation
		var score sql.NullFloat64
		var rubric sql.NullString
		if err := rows.Scan(&v.ValidationID, &v.RunID, &v.Kind, &v.Passed, &score, &rubric, &v.CreatedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v.Score = score.Float64
		}
		if rubric.Valid {
			v.Rubric = rubric.String
		}
		validations = append(validations, v)
	}
	return validations, rows.Err()
}

// GetArtifacts retrieves artifact records for a run.
func (s *SQLiteStore) GetArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, run_id, key, uri, content_type, size_bytes, checksum, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var contentType, checksum sql.NullString
		var sizeBytes sql.NullInt64
		if err := rows.Scan(&a.ArtifactID, &a.RunID, &a.Key, &a.URI, &contentType, &sizeBytes, &checksum, &a.CreatedAt); err != nil {
			return nil, err
		}
		if contentType.Valid {
			a.ContentType = contentType.String
		}
		if sizeBytes.Valid {
			a.SizeBytes = sizeBytes.Int64
		}
		if checksum.Valid {
			a.Checksum = checksum.String
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var currentStage, timing, metrics string
	var pod, errData sql.NullString
	var startedAt, completedAt, failedAt, heartbeatAt sql.NullTime
	err := row.Scan(&run.RunID, &run.HypothesisID, &run.Status, &currentStage, &timing, &metrics,
		&pod, &run.LastEventSeq, &errData, &run.Hidden,
		&run.CreatedAt, &run.UpdatedAt, &startedAt, &completedAt, &failedAt, &heartbeatAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(currentStage), &run.CurrentStage); err != nil {
		return nil, fmt.Errorf("failed to decode current_stage: %w", err)
	}
	if err := json.Unmarshal([]byte(timing), &run.StageTiming); err != nil {
		return nil, fmt.Errorf("failed to decode stage_timing: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &run.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	if pod.Valid {
		run.Pod = &domain.Pod{}
		if err := json.Unmarshal([]byte(pod.String), run.Pod); err != nil {
			return nil, fmt.Errorf("failed to decode pod: %w", err)
		}
	}
	if errData.Valid {
		run.Error = &domain.RunError{}
		if err := json.Unmarshal([]byte(errData.String), run.Error); err != nil {
			return nil, fmt.Errorf("failed to decode error: %w", err)
		}
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		run.FailedAt = &failedAt.Time
	}
	if heartbeatAt.Valid {
		run.LastHeartbeatAt = &heartbeatAt.Time
	}
	return &run, nil
}

func marshalNullable(v interface{}) sql.NullString {
	switch x := v.(type) {
	case *domain.Pod:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.RunError:
		if x == nil {
			return sql.NullString{}
		}
	}
	b, _ := json.Marshal(v)
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func orEmptyTiming(m map[string]domain.StageTiming) map[string]domain.StageTiming {
	if m == nil {
		return map[string]domain.StageTiming{}
	}
	return m
}

func orEmptyMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
