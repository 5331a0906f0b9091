package pg

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
)

// Dialect is the postgres flavour of the shared SQL store. Workers skip rows
// another claimer holds instead of queueing behind them.
var Dialect = repository.Dialect{
	Name:         "postgres",
	Placeholders: repository.DollarNumbers,
	ClaimLock:    " FOR UPDATE SKIP LOCKED",
}

// NewPostgresStore wraps an open *sql.DB
func NewPostgresStore(db *sql.DB) *repository.SQLJobStore {
	return repository.NewSQLJobStore(db, Dialect)
}

// Open connects and migrates
func Open(ctx context.Context, dsn string) (*repository.SQLJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "ping postgres")
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
