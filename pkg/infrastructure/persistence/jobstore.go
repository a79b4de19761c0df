// Package persistence provides the SQLite-backed job record store. The
// dashboard serves job views from here instead of round-tripping to the
// backend on every page load. Sync events are never persisted — only job
// records, which the retention sweep prunes once terminal and stale.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/syncboard/syncboard/pkg/jobs"
	"github.com/syncboard/syncboard/pkg/logger"
)

// ErrJobNotFound is returned when no record exists for a job id.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists the latest known state of each decomposition job.
type JobStore struct {
	db   *sql.DB
	path string
}

// OpenJobStore opens (creating if needed) the job database under dir.
func OpenJobStore(dir string) (*JobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create job store dir: %w", err)
	}
	path := filepath.Join(dir, "jobs.db")

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open job db: %w", err)
	}

	store := &JobStore{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init job schema: %w", err)
	}

	logger.InfoCF("jobstore", "Job store opened", map[string]interface{}{
		"path": path,
	})
	return store, nil
}

func (s *JobStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id      TEXT PRIMARY KEY,
		job_type    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		plan_id     INTEGER,
		task_id     TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		logs        TEXT NOT NULL DEFAULT '[]',
		created_at  TIMESTAMP NOT NULL,
		started_at  TIMESTAMP,
		finished_at TIMESTAMP,
		updated_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_plan ON jobs(plan_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts a job record.
func (s *JobStore) Save(job *jobs.Job) error {
	logsJSON, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("encode job logs: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (job_id, job_type, status, plan_id, task_id, error, logs, created_at, started_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			job_type = excluded.job_type,
			status = excluded.status,
			plan_id = excluded.plan_id,
			task_id = excluded.task_id,
			error = excluded.error,
			logs = excluded.logs,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at`,
		job.JobID, job.JobType, string(job.Status), job.PlanID, job.TaskID,
		job.Error, string(logsJSON), job.CreatedAt, job.StartedAt, job.FinishedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}

// Get loads a job record by id.
func (s *JobStore) Get(jobID string) (*jobs.Job, error) {
	row := s.db.QueryRow(`
		SELECT job_id, job_type, status, plan_id, task_id, error, logs, created_at, started_at, finished_at
		FROM jobs WHERE job_id = ?`, jobID)
	return scanJob(row)
}

// ApplySnapshot folds a poll snapshot into the stored record, creating the
// record if this is the first observation, and returns the updated job.
// Status monotonicity is enforced by jobs.Job.Apply.
func (s *JobStore) ApplySnapshot(snap jobs.Snapshot, at time.Time) (*jobs.Job, error) {
	job, err := s.Get(snap.JobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		job = jobs.NewJob(snap.JobID, snap.JobType, snap.PlanID, snap.TaskID)
	case err != nil:
		return nil, err
	}

	job.Apply(snap, at)
	if err := s.Save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the most recently updated job records, newest first.
func (s *JobStore) List(limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT job_id, job_type, status, plan_id, task_id, error, logs, created_at, started_at, finished_at
		FROM jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// PurgeFinishedBefore removes terminal jobs that finished before cutoff and
// reports how many were deleted.
func (s *JobStore) PurgeFinishedBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM jobs
		WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		string(jobs.StatusSucceeded), string(jobs.StatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (s *JobStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var (
		job      jobs.Job
		status   string
		planID   sql.NullInt64
		logsJSON string
		started  sql.NullTime
		finished sql.NullTime
	)
	err := row.Scan(&job.JobID, &job.JobType, &status, &planID, &job.TaskID,
		&job.Error, &logsJSON, &job.CreatedAt, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = jobs.Status(status)
	if planID.Valid {
		job.PlanID = &planID.Int64
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(logsJSON), &job.Logs); err != nil {
		// Corrupt log blob should not hide the job record.
		job.Logs = nil
	}
	return &job, nil
}
