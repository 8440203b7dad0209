// Package sqlite opens the run store on a local SQLite file.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/sawpanic/rotator/internal/persistence"
)

// Open opens (creating when missing) the database at path and migrates the
// schema. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, timeout time.Duration) (*persistence.Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent saves
	db.SetMaxOpenConns(1)

	store := persistence.NewStore(db,
		persistence.WithTimeout(timeout),
		persistence.WithErrorClassifier(Classify))
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Classify maps constraint violations on keys to persistence.ErrDuplicate.
func Classify(err error) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) &&
		(sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, sqErr.Error())
	}
	return err
}
