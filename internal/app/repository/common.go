package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

// PlaceholderFunc generates parameter placeholders for different SQL dialects
type PlaceholderFunc func(n int) string

// Dialect captures what differs between the SQL backends
type Dialect struct {
	Name         string
	Placeholders PlaceholderFunc
	// ClaimLock is appended to the claim subquery, e.g. FOR UPDATE SKIP LOCKED
	ClaimLock string
}

// QuestionMarks is the placeholder style of sqlite
func QuestionMarks(int) string { return "?" }

// DollarNumbers is the placeholder style of postgres
func DollarNumbers(n int) string { return fmt.Sprintf("$%d", n) }

const jobColumns = "id, status, rev, attempts, started_at, doc"

// SQLJobStore keeps jobs in a single table that doubles as the queue:
// pending rows ordered by enqueued_at are the backlog.
type SQLJobStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLJobStore wraps an open database
func NewSQLJobStore(db *sql.DB, dialect Dialect) *SQLJobStore {
	if dialect.Placeholders == nil {
		dialect.Placeholders = QuestionMarks
	}
	return &SQLJobStore{db: db, dialect: dialect}
}

// DB exposes the underlying handle
func (s *SQLJobStore) DB() *sql.DB {
	return s.db
}

// p renders placeholders 1..n joined by commas
func (s *SQLJobStore) p(from, n int) string {
	out := make([]string, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, s.dialect.Placeholders(i))
	}
	return strings.Join(out, ", ")
}

// Migrate creates the jobs table if it does not exist
func (s *SQLJobStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS diarizer_jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			rev BIGINT NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			enqueued_at BIGINT NOT NULL,
			started_at BIGINT,
			doc TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_diarizer_jobs_queue ON diarizer_jobs (status, enqueued_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrapf(err, "migrate %s", s.dialect.Name)
		}
	}
	return nil
}

// Create inserts a pending job. The insert is the enqueue.
func (s *SQLJobStore) Create(ctx context.Context, job *model.Job) error {
	doc, err := EncodeJob(job)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO diarizer_jobs (id, status, rev, attempts, enqueued_at, started_at, doc) VALUES (%s)",
		s.p(1, 7),
	)
	_, err = s.db.ExecContext(ctx, query,
		job.ID, string(job.Status), 0, job.Attempts, job.CreatedAt.UnixNano(), nullTime(job.StartedAt), doc)
	if err != nil {
		return apperrors.Wrap(err, "insert job")
	}
	return nil
}

// Claim atomically flips the oldest pending row to processing
func (s *SQLJobStore) Claim(ctx context.Context, now time.Time) (*model.Job, error) {
	ph := s.dialect.Placeholders
	query := fmt.Sprintf(
		`UPDATE diarizer_jobs SET status = %s, rev = rev + 1, attempts = attempts + 1, started_at = %s
		WHERE status = %s AND id = (SELECT id FROM diarizer_jobs WHERE status = %s ORDER BY enqueued_at, id LIMIT 1%s)
		RETURNING %s`,
		ph(1), ph(2), ph(3), ph(4), s.dialect.ClaimLock, jobColumns,
	)
	row := s.db.QueryRowContext(ctx, query,
		string(model.JobStatusProcessing), now.UnixNano(),
		string(model.JobStatusPending), string(model.JobStatusPending))

	job, _, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "claim job")
	}
	return job, nil
}

// Get returns a job by id
func (s *SQLJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job, _, err := s.get(ctx, id)
	return job, err
}

func (s *SQLJobStore) get(ctx context.Context, id string) (*model.Job, int64, error) {
	query := fmt.Sprintf("SELECT %s FROM diarizer_jobs WHERE id = %s", jobColumns, s.dialect.Placeholders(1))
	job, rev, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "get job")
	}
	return job, rev, nil
}

// Update runs an optimistic read-modify-write keyed on the row revision
func (s *SQLJobStore) Update(ctx context.Context, id string, from model.JobStatus, mutate Mutation) (*model.Job, error) {
	ph := s.dialect.Placeholders
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		current, rev, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		next, requeue, err := ApplyMutation(current, from, mutate)
		if err != nil {
			return nil, err
		}
		doc, err := EncodeJob(next)
		if err != nil {
			return nil, err
		}

		args := []interface{}{string(next.Status), next.Attempts, nullTime(next.StartedAt), doc}
		set := fmt.Sprintf("status = %s, rev = rev + 1, attempts = %s, started_at = %s, doc = %s",
			ph(1), ph(2), ph(3), ph(4))
		if requeue {
			set += fmt.Sprintf(", enqueued_at = %s", ph(len(args)+1))
			args = append(args, time.Now().UnixNano())
		}
		query := fmt.Sprintf("UPDATE diarizer_jobs SET %s WHERE id = %s AND rev = %s",
			set, ph(len(args)+1), ph(len(args)+2))
		args = append(args, id, rev)

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, apperrors.Wrap(err, "update job")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, apperrors.Wrap(err, "update job")
		}
		if n == 1 {
			return next, nil
		}
	}
	return nil, ErrConcurrentUpdate
}

// Delete removes the row regardless of state
func (s *SQLJobStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM diarizer_jobs WHERE id = %s", s.dialect.Placeholders(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return apperrors.Wrap(err, "delete job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "delete job")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatus returns up to limit jobs in queue order
func (s *SQLJobStore) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	query := fmt.Sprintf("SELECT %s FROM diarizer_jobs WHERE status = %s ORDER BY enqueued_at, id LIMIT %s",
		jobColumns, s.dialect.Placeholders(1), s.dialect.Placeholders(2))
	rows, err := s.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, _, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "list jobs")
	}
	return jobs, nil
}

// Ping checks connectivity
func (s *SQLJobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database
func (s *SQLJobStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob decodes a row. Status, attempts and started_at columns are
// authoritative over the document because claims only touch the columns.
func scanJob(row rowScanner) (*model.Job, int64, error) {
	var (
		id, status, doc string
		rev             int64
		attempts        int
		startedAt       sql.NullInt64
	)
	if err := row.Scan(&id, &status, &rev, &attempts, &startedAt, &doc); err != nil {
		return nil, 0, err
	}
	job, err := DecodeJob(doc)
	if err != nil {
		return nil, 0, err
	}
	job.ID = id
	job.Status = model.JobStatus(status)
	job.Attempts = attempts
	job.StartedAt = FromUnixNano(startedAt.Int64)
	return job, rev, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
