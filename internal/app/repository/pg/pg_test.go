package pg

import (
	"context"
	"database/sql"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository/storetest"
)

var columns = []string{"id", "status", "rev", "attempts", "started_at", "doc"}

func newMockStore(t *testing.T) (*repository.SQLJobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func encoded(t *testing.T, job *model.Job) string {
	t.Helper()
	doc, err := repository.EncodeJob(job)
	require.NoError(t, err)
	return doc
}

// TestPostgresStore_Interface verifies the store satisfies JobStore
func TestPostgresStore_Interface(t *testing.T) {
	var _ repository.JobStore = NewPostgresStore(nil)
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	job := storetest.NewPendingJob(time.Now())

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO diarizer_jobs (id, status, rev, attempts, enqueued_at, started_at, doc) VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WithArgs(job.ID, "pending", 0, 0, job.CreatedAt.UnixNano(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Claim(t *testing.T) {
	now := time.Now()
	job := storetest.NewPendingJob(now)

	tests := []struct {
		name      string
		mockSetup func(mock sqlmock.Sqlmock)
		wantID    string
		wantErr   bool
	}{
		{
			name: "claims oldest pending with skip locked",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(columns).
					AddRow(job.ID, "processing", 1, 1, now.UnixNano(), encoded(t, job))
				mock.ExpectQuery(regexp.QuoteMeta("LIMIT 1 FOR UPDATE SKIP LOCKED)")).
					WithArgs("processing", now.UnixNano(), "pending", "pending").
					WillReturnRows(rows)
			},
			wantID: job.ID,
		},
		{
			name: "empty queue",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE diarizer_jobs SET status").
					WillReturnRows(sqlmock.NewRows(columns))
			},
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE diarizer_jobs SET status").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.mockSetup(mock)

			got, err := store.Claim(context.Background(), now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				if tt.wantID == "" {
					assert.Nil(t, got)
				} else {
					require.NotNil(t, got)
					assert.Equal(t, tt.wantID, got.ID)
					assert.Equal(t, model.JobStatusProcessing, got.Status)
					assert.Equal(t, 1, got.Attempts)
					require.NotNil(t, got.StartedAt)
					assert.Equal(t, now.UnixNano(), got.StartedAt.UnixNano())
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status, rev, attempts, started_at, doc FROM diarizer_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, stderrors.Is(err, repository.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRetriesOnRevisionMismatch(t *testing.T) {
	store, mock := newMockStore(t)
	job := storetest.NewPendingJob(time.Now())
	job.Status = model.JobStatusProcessing
	doc := encoded(t, job)
	startedAt := time.Now().UnixNano()

	selectQuery := regexp.QuoteMeta("SELECT id, status, rev, attempts, started_at, doc FROM diarizer_jobs WHERE id = $1")
	updateQuery := regexp.QuoteMeta("WHERE id = $5 AND rev = $6")

	mock.ExpectQuery(selectQuery).WithArgs(job.ID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(job.ID, "processing", 3, 1, startedAt, doc))
	mock.ExpectExec(updateQuery).
		WithArgs("completed", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), job.ID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectQuery).WithArgs(job.ID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(job.ID, "processing", 4, 1, startedAt, doc))
	mock.ExpectExec(updateQuery).
		WithArgs("completed", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), job.ID, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := store.Update(context.Background(), job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusCompleted
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStateConflict(t *testing.T) {
	store, mock := newMockStore(t)
	job := storetest.NewPendingJob(time.Now())
	job.Status = model.JobStatusFailed

	mock.ExpectQuery("SELECT id, status").WithArgs(job.ID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(job.ID, "failed", 5, 1, nil, encoded(t, job)))

	_, err := store.Update(context.Background(), job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusCompleted
		return nil
	})
	var conflict *repository.StateConflictError
	require.True(t, stderrors.As(err, &conflict))
	assert.Equal(t, model.JobStatusFailed, conflict.Current)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Requeue(t *testing.T) {
	store, mock := newMockStore(t)
	job := storetest.NewPendingJob(time.Now())

	mock.ExpectQuery("SELECT id, status").WithArgs(job.ID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(job.ID, "processing", 1, 1, time.Now().UnixNano(), encoded(t, job)))
	mock.ExpectExec(regexp.QuoteMeta("enqueued_at = $5 WHERE id = $6 AND rev = $7")).
		WithArgs("pending", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), job.ID, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.Update(context.Background(), job.ID, model.JobStatusProcessing, func(j *model.Job) error {
		j.Status = model.JobStatusPending
		j.StartedAt = nil
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"existing", 1, nil},
		{"missing", 0, repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM diarizer_jobs WHERE id = $1")).
				WithArgs("job-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := store.Delete(context.Background(), "job-1")
			if tt.wantErr != nil {
				assert.True(t, stderrors.Is(err, tt.wantErr))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS diarizer_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_diarizer_jobs_queue").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
