// Package postgres opens the run store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/rotator/internal/persistence"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// Open connects, sizes the pool and migrates the schema.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*persistence.Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := New(db, timeout)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing handle.
func New(db *sqlx.DB, timeout time.Duration) *persistence.Store {
	return persistence.NewStore(db,
		persistence.WithTimeout(timeout),
		persistence.WithErrorClassifier(Classify))
}

// Classify maps unique violations to persistence.ErrDuplicate.
func Classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pqErr.Message)
	}
	return err
}
