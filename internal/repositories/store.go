package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/services"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres implementation of services.Store
type Store struct {
	*queries
	db          *sql.DB
	lockTimeout time.Duration
}

// NewStore creates a new Postgres store. A positive lockTimeout is applied
// to every transaction with SET LOCAL lock_timeout.
func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{
		queries:     &queries{q: db},
		db:          db,
		lockTimeout: lockTimeout,
	}
}

var _ services.Store = (*Store)(nil)

// txStore scopes the repository queries to one transaction
type txStore struct {
	*queries
	tx *sql.Tx
}

// InTx runs fn in a read-committed transaction
func (s *Store) InTx(ctx context.Context, fn func(tx services.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classifyError(fmt.Errorf("failed to set lock timeout: %w", err))
		}
	}

	if err := fn(&txStore{queries: &queries{q: tx}, tx: tx}); err != nil {
		return classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Postgres error codes that are safe to retry as a whole call
var transientCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement_timeout)
	"57P01": true, // admin_shutdown
}

// classifyError wraps store transport and transaction failures with
// models.ErrTransientStore. Domain errors pass through untouched.
func classifyError(err error) error {
	if err == nil || errors.Is(err, models.ErrTransientStore) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if transientCodes[pqErr.Code] || pqErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %w", models.ErrTransientStore, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", models.ErrTransientStore, err)
	}

	return err
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
