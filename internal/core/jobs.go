package core

// jobs.go persists import job bookkeeping in the import_jobs table created by the
// store migrations. The dispatcher keeps live jobs in memory; this table is what
// survives restarts and what status lookups fall back to.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/dynatable/internal/store"
)

const jobColumns = "id, table_name, requester, status, inserted, error, error_code, attempts, created_at, started_at, finished_at"

// JobStore reads and writes import_jobs rows.
type JobStore struct {
	db      DBTX
	dialect store.Dialect
}

// NewJobStore creates a job store over db.
func NewJobStore(db DBTX, d store.Dialect) *JobStore {
	return &JobStore{db: db, dialect: d}
}

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job ImportJob) error {
	pb := s.dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"INSERT INTO import_jobs (id, table_name, requester, status, attempts, created_at) VALUES (%s, %s, %s, %s, %s, %s)",
		pb.Add(job.ID), pb.Add(job.Table), pb.Add(job.Requester), pb.Add(string(job.State)),
		pb.Add(job.Attempts), pb.Add(job.CreatedAt.UTC()),
	)
	if _, err := s.db.ExecContext(ctx, query, pb.Params()...); err != nil {
		return storeError(s.dialect, "create job", err)
	}
	return nil
}

// MarkRunning records the start of an attempt.
func (s *JobStore) MarkRunning(ctx context.Context, id string, attempts int, at time.Time) error {
	pb := s.dialect.NewParamBuilder()
	query := fmt.Sprintf("UPDATE import_jobs SET status = %s, attempts = %s, started_at = %s WHERE id = %s",
		pb.Add(string(JobRunning)), pb.Add(attempts), pb.Add(at.UTC()), pb.Add(id))
	if _, err := s.db.ExecContext(ctx, query, pb.Params()...); err != nil {
		return storeError(s.dialect, "mark job running", err)
	}
	return nil
}

// Finish records the terminal state of job.
func (s *JobStore) Finish(ctx context.Context, job ImportJob) error {
	finished := time.Now().UTC()
	if job.FinishedAt != nil {
		finished = job.FinishedAt.UTC()
	}

	pb := s.dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"UPDATE import_jobs SET status = %s, inserted = %s, error = %s, error_code = %s, attempts = %s, finished_at = %s WHERE id = %s",
		pb.Add(string(job.State)), pb.Add(job.Inserted), pb.Add(job.Error), pb.Add(job.ErrorCode),
		pb.Add(job.Attempts), pb.Add(finished), pb.Add(job.ID),
	)
	if _, err := s.db.ExecContext(ctx, query, pb.Params()...); err != nil {
		return storeError(s.dialect, "finish job", err)
	}
	return nil
}

// Get loads one job. found is false when no row has that id.
func (s *JobStore) Get(ctx context.Context, id string) (job ImportJob, found bool, err error) {
	pb := s.dialect.NewParamBuilder()
	query := "SELECT " + jobColumns + " FROM import_jobs WHERE id = " + pb.Add(id)

	job, err = scanJob(s.db.QueryRowContext(ctx, query, pb.Params()...))
	if errors.Is(err, sql.ErrNoRows) {
		return ImportJob{}, false, nil
	}
	if err != nil {
		return ImportJob{}, false, storeError(s.dialect, "get job", err)
	}
	return job, true, nil
}

// ListByTable returns the most recent jobs for table, newest first.
func (s *JobStore) ListByTable(ctx context.Context, table string, limit int) ([]ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	pb := s.dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT %s FROM import_jobs WHERE table_name = %s ORDER BY created_at DESC LIMIT %s",
		jobColumns, pb.Add(table), pb.Add(limit))

	rows, err := s.db.QueryContext(ctx, query, pb.Params()...)
	if err != nil {
		return nil, storeError(s.dialect, "list jobs", err)
	}
	defer rows.Close()

	jobs := []ImportJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeError(s.dialect, "list jobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(s.dialect, "list jobs", err)
	}
	return jobs, nil
}

// DeleteFinishedBefore removes terminal jobs that finished before cutoff.
func (s *JobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pb := s.dialect.NewParamBuilder()
	query := fmt.Sprintf("DELETE FROM import_jobs WHERE finished_at IS NOT NULL AND finished_at < %s AND status IN (%s, %s)",
		pb.Add(cutoff.UTC()), pb.Add(string(JobSucceeded)), pb.Add(string(JobFailed)))

	res, err := s.db.ExecContext(ctx, query, pb.Params()...)
	if err != nil {
		return 0, storeError(s.dialect, "delete old jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError(s.dialect, "delete old jobs", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (ImportJob, error) {
	var (
		job      ImportJob
		status   string
		inserted int64
		attempts int64
		started  sql.NullTime
		finished sql.NullTime
	)
	err := row.Scan(&job.ID, &job.Table, &job.Requester, &status, &inserted,
		&job.Error, &job.ErrorCode, &attempts, &job.CreatedAt, &started, &finished)
	if err != nil {
		return ImportJob{}, err
	}

	job.State = JobState(strings.ToLower(status))
	job.Inserted = int(inserted)
	job.Attempts = int(attempts)
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return job, nil
}
