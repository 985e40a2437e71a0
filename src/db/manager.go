// Package db owns the process-wide connection pool and hands out scoped
// connections and sessions.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"taskrelay/src/config"
	"taskrelay/src/logger"
)

var (
	// ErrNotInitialized is returned when the manager has no pool, either
	// because it was never opened or because it was closed.
	ErrNotInitialized = errors.New("session manager is not initialized")
	// ErrSessionClosed is returned by any use of a session after Close.
	ErrSessionClosed = errors.New("session is closed")
)

// Manager owns exactly one *sql.DB for the process lifetime.
type Manager struct {
	pool    atomic.Pointer[sql.DB]
	driver  string
	maxIdle int
	echo    bool
	logger  logger.Logger
}

// Open creates the pool described by settings. No connection is made until
// the first scope asks for one; use Ping to check connectivity up front.
func Open(settings config.Database, log logger.Logger) (*Manager, error) {
	uri, err := settings.URI()
	if err != nil {
		return nil, err
	}
	driver, dsn, err := dataSource(uri, settings)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if settings.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
	}
	sqlDB.SetMaxIdleConns(settings.MaxIdleConns)

	m := &Manager{
		driver:  driver,
		maxIdle: settings.MaxIdleConns,
		echo:    settings.EchoSQL,
		logger:  log.With("component", "db"),
	}
	m.pool.Store(sqlDB)
	return m, nil
}

// Driver returns the name of the database/sql driver in use.
func (m *Manager) Driver() string {
	return m.driver
}

func (m *Manager) db() (*sql.DB, error) {
	sqlDB := m.pool.Load()
	if sqlDB == nil {
		return nil, ErrNotInitialized
	}
	return sqlDB, nil
}

// Ping verifies that a connection can be established.
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Stats returns pool statistics.
func (m *Manager) Stats() sql.DBStats {
	sqlDB := m.pool.Load()
	if sqlDB == nil {
		return sql.DBStats{}
	}
	return sqlDB.Stats()
}

// Conn is a dedicated pooled connection with an open transaction.
type Conn struct {
	tx *sql.Tx
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.tx.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.tx.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.tx.QueryRowContext(ctx, query, args...)
}

// Connect runs fn on one connection taken from the pool. The work is
// committed when fn returns nil and rolled back when it returns an error or
// panics. The connection goes back to the pool on every path.
func (m *Manager) Connect(ctx context.Context, fn func(ctx context.Context, conn *Conn) error) (err error) {
	sqlDB, err := m.db()
	if err != nil {
		return err
	}

	raw, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer raw.Close()

	tx, err := raw.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit: %w", cErr)
		}
	}()

	return fn(ctx, &Conn{tx: tx})
}

// Apply runs statements in order in a single transaction. It is used to
// bootstrap schemas for local runs and tests.
func (m *Manager) Apply(ctx context.Context, statements []string) error {
	return m.Connect(ctx, func(ctx context.Context, conn *Conn) error {
		for _, stmt := range statements {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply statement: %w", err)
			}
		}
		return nil
	})
}

// SessionOption configures a session scope.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	scoped   bool
	deferred bool
}

// Scoped disposes every idle pooled connection once the session closes.
// Tests use it to isolate runs from each other.
func Scoped() SessionOption {
	return func(o *sessionOptions) { o.scoped = true }
}

// DeferredCommit hands the commit decision to the owner of the scope:
// Session.AutoCommit becomes a no-op and only Session.Commit commits.
func DeferredCommit() SessionOption {
	return func(o *sessionOptions) { o.deferred = true }
}

// Session runs fn with a fresh session. If fn returns an error or panics the
// session is rolled back before the error is returned. The session is closed
// on every path, discarding anything that was not committed.
func (m *Manager) Session(ctx context.Context, fn func(ctx context.Context, s *Session) error, opts ...SessionOption) (err error) {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	sqlDB, err := m.db()
	if err != nil {
		return err
	}

	s := &Session{db: sqlDB, deferred: o.deferred, echo: m.echo, logger: m.logger}
	defer func() {
		p := recover()
		if p != nil || err != nil {
			if rbErr := s.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
		}
		if cErr := s.Close(); cErr != nil && err == nil {
			err = cErr
		}
		if o.scoped {
			m.dispose()
		}
		if p != nil {
			panic(p)
		}
	}()

	return fn(ctx, s)
}

// dispose drops every idle connection. Connections in use are closed when
// they are returned.
func (m *Manager) dispose() {
	sqlDB := m.pool.Load()
	if sqlDB == nil {
		return
	}
	sqlDB.SetMaxIdleConns(0)
	sqlDB.SetMaxIdleConns(m.maxIdle)
	m.logger.Debug("Disposed idle connections")
}

// Close releases the pool. Closing an already closed manager does nothing.
func (m *Manager) Close() error {
	sqlDB := m.pool.Swap(nil)
	if sqlDB == nil {
		return nil
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.logger.Info("Database pool closed")
	return nil
}
