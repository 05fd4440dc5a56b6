// Package jobs runs uploaded workbooks through the scorecard engine in the
// background and keeps their state, logs and outputs.
package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/scorecard/scorecard"
	"github.com/tomyedwab/scorecard/workbook"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Job is a processing request for one or more uploaded workbooks.
type Job struct {
	ID            string                      `db:"id" json:"id"`
	Status        Status                      `db:"status" json:"status"`
	Progress      int                         `db:"progress" json:"progress"`
	CreatedAt     int64                       `db:"created_at" json:"created_at"`
	UpdatedAt     int64                       `db:"updated_at" json:"updated_at"`
	FileNamesJson []byte                      `db:"file_names" json:"-"`
	StatsJson     []byte                      `db:"stats" json:"-"`
	SummaryJson   []byte                      `db:"summary" json:"-"`
	Error         string                      `db:"error" json:"error,omitempty"`
	FileNames     []string                    `db:"-" json:"file_names"`
	Stats         *scorecard.Stats            `db:"-" json:"stats,omitempty"`
	Summary       map[string]workbook.Summary `db:"-" json:"summary,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

func (j *Job) decode() error {
	if err := json.Unmarshal(j.FileNamesJson, &j.FileNames); err != nil {
		return fmt.Errorf("job %s: bad file names: %w", j.ID, err)
	}
	if len(j.StatsJson) > 0 {
		j.Stats = &scorecard.Stats{}
		if err := json.Unmarshal(j.StatsJson, j.Stats); err != nil {
			return fmt.Errorf("job %s: bad stats: %w", j.ID, err)
		}
	}
	if len(j.SummaryJson) > 0 {
		if err := json.Unmarshal(j.SummaryJson, &j.Summary); err != nil {
			return fmt.Errorf("job %s: bad summary: %w", j.ID, err)
		}
	}
	return nil
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs_v1 (
	id TEXT PRIMARY KEY NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	file_names BLOB NOT NULL,
	stats BLOB NOT NULL DEFAULT '',
	summary BLOB NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jobs_v1_created_at ON jobs_v1(created_at);

CREATE TABLE IF NOT EXISTS job_outputs_v1 (
	job_id TEXT NOT NULL,
	format TEXT NOT NULL,
	content BLOB NOT NULL,
	PRIMARY KEY (job_id, format)
);
`

const jobColumns = `id, status, progress, created_at, updated_at, file_names, stats, summary, error`

const insertJobV1Sql = `
INSERT INTO jobs_v1 (id, status, progress, created_at, updated_at, file_names)
VALUES ($1, $2, $3, $4, $5, $6);
`

const getJobV1Sql = `SELECT ` + jobColumns + ` FROM jobs_v1 WHERE id = $1;`

const listJobsV1Sql = `SELECT ` + jobColumns + ` FROM jobs_v1 ORDER BY created_at DESC, id LIMIT $1;`

const updateProgressV1Sql = `
UPDATE jobs_v1 SET status = $1, progress = $2, updated_at = $3 WHERE id = $4;
`

const completeJobV1Sql = `
UPDATE jobs_v1 SET status = $1, progress = 100, stats = $2, summary = $3, updated_at = $4 WHERE id = $5;
`

const failJobV1Sql = `
UPDATE jobs_v1 SET status = $1, error = $2, updated_at = $3 WHERE id = $4;
`

const putOutputV1Sql = `
INSERT OR REPLACE INTO job_outputs_v1 (job_id, format, content) VALUES ($1, $2, $3);
`

const getOutputV1Sql = `SELECT content FROM job_outputs_v1 WHERE job_id = $1 AND format = $2;`

const deleteOutputsBeforeV1Sql = `
DELETE FROM job_outputs_v1 WHERE job_id IN (SELECT id FROM jobs_v1 WHERE created_at < $1);
`

const selectJobsBeforeV1Sql = `SELECT id FROM jobs_v1 WHERE created_at < $1;`

const deleteJobsBeforeV1Sql = `DELETE FROM jobs_v1 WHERE created_at < $1;`

var ErrJobNotFound = errors.New("job not found")

func JobsDBInit(db *sqlx.DB) error {
	_, err := db.Exec(jobsSchema)
	return err
}

// Store persists jobs and their outputs in sqlite.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenStore opens (creating if needed) the sqlite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store %s: %w", path, err)
	}
	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps db, creating the job tables. Writes come from job
// goroutines, so the pool is limited to a single sqlite connection.
func NewStore(db *sqlx.DB) (*Store, error) {
	db.SetMaxOpenConns(1)
	if err := JobsDBInit(db); err != nil {
		return nil, fmt.Errorf("failed to initialize job tables: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() int64 {
	return s.now().UnixMilli()
}

// Create inserts a queued job for the given uploads.
func (s *Store) Create(fileNames []string) (*Job, error) {
	names, err := json.Marshal(fileNames)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	job := &Job{
		ID:            uuid.New().String(),
		Status:        StatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
		FileNamesJson: names,
		FileNames:     fileNames,
	}
	_, err = s.db.Exec(insertJobV1Sql, job.ID, job.Status, job.Progress, job.CreatedAt, job.UpdatedAt, names)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns the job or nil when it does not exist.
func (s *Store) Get(id string) (*Job, error) {
	var job Job
	err := s.db.Get(&job, getJobV1Sql, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := job.decode(); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns up to limit jobs, newest first.
func (s *Store) List(limit int) ([]Job, error) {
	var jobs []Job
	if err := s.db.Select(&jobs, listJobsV1Sql, limit); err != nil {
		return nil, err
	}
	for i := range jobs {
		if err := jobs[i].decode(); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *Store) exec(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateProgress marks the job running at the given percentage.
func (s *Store) UpdateProgress(id string, progress int) error {
	return s.exec(updateProgressV1Sql, StatusRunning, progress, s.timestamp(), id)
}

// Complete records the final statistics and per-file summaries.
func (s *Store) Complete(id string, stats scorecard.Stats, summary map[string]workbook.Summary) error {
	statsJson, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	summaryJson, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return s.exec(completeJobV1Sql, StatusDone, statsJson, summaryJson, s.timestamp(), id)
}

// Fail marks the job failed with message.
func (s *Store) Fail(id string, message string) error {
	return s.exec(failJobV1Sql, StatusFailed, message, s.timestamp(), id)
}

// PutOutput stores a rendered result file, replacing any previous one.
func (s *Store) PutOutput(id, format string, content []byte) error {
	_, err := s.db.Exec(putOutputV1Sql, id, format, content)
	return err
}

// GetOutput returns a rendered result file or nil when there is none.
func (s *Store) GetOutput(id, format string) ([]byte, error) {
	var content []byte
	err := s.db.Get(&content, getOutputV1Sql, id, format)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return content, err
}

// DeleteOlderThan removes jobs created before cutoff together with their
// outputs and returns the IDs of the removed jobs.
func (s *Store) DeleteOlderThan(cutoff time.Time) ([]string, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ids []string
	if err := tx.Select(&ids, selectJobsBeforeV1Sql, cutoff.UnixMilli()); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.Exec(deleteOutputsBeforeV1Sql, cutoff.UnixMilli()); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(deleteJobsBeforeV1Sql, cutoff.UnixMilli()); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}
