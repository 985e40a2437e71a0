package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskrelay/src/logger"
)

// Session is a unit of database work owned by a single scope. The first
// statement begins a transaction; Commit ends it and the next statement
// begins another. A Session is not safe for concurrent use.
type Session struct {
	db       *sql.DB
	tx       *sql.Tx
	deferred bool
	closed   bool
	echo     bool
	logger   logger.Logger
}

func (s *Session) begin(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *Session) trace(query string, args []any) {
	if s.echo {
		s.logger.Debug("SQL", "query", query, "args", args)
	}
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	s.trace(query, args)
	return tx.ExecContext(ctx, query, args...)
}

// Query runs a statement that returns rows.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	s.trace(query, args)
	return tx.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	s.trace(query, args)
	return tx.QueryRowContext(ctx, query, args...), nil
}

// Commit commits the current transaction, if any.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// AutoCommit commits unless the session was opened with DeferredCommit, in
// which case the scope owner commits once at the end.
func (s *Session) AutoCommit(ctx context.Context) error {
	if s.deferred {
		return nil
	}
	return s.Commit(ctx)
}

// Rollback discards the current transaction, if any.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Close rolls back uncommitted work and marks the session unusable.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.Rollback()
	s.closed = true
	return err
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}
