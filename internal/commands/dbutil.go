package commands

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

func openDB() (*DB, func(), error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.InitDBWithPath(dbPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

func withDB(fn func(db *DB) error) error {
	db, closeDB, err := openDB()
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	type codedError interface {
		ErrorCode() string
		Context() map[string]string
	}
	var coded codedError
	if errors.As(err, &coded) {
		attrs = append(attrs, "code", coded.ErrorCode())
		for k, v := range coded.Context() {
			if v != "" {
				attrs = append(attrs, k, v)
			}
		}
	}
	slog.Error("command error", attrs...)
	return printedError{err: err}
}
