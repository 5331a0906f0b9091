package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
)

// Dialect is the sqlite flavour of the shared SQL store. RETURNING needs
// sqlite 3.35+, which the bundled driver ships.
var Dialect = repository.Dialect{
	Name:         "sqlite3",
	Placeholders: repository.QuestionMarks,
}

// Open opens (creating if needed) the database file and migrates it.
// Writes are serialized through a single connection.
func Open(ctx context.Context, path string) (*repository.SQLJobStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrapf(err, "create database directory %s", dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	store := repository.NewSQLJobStore(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
