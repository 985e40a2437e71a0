package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrelay/src/config"
	"taskrelay/src/db"
	"taskrelay/src/dbtest"
	"taskrelay/src/logger"
)

func countSamples(t *testing.T, m *db.Manager) int {
	t.Helper()
	var n int
	err := m.Connect(context.Background(), func(ctx context.Context, conn *db.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func insertSample(ctx context.Context, s *db.Session, id string) error {
	_, err := s.Exec(ctx, "INSERT INTO samples (id, name) VALUES ($1, $2)", id, "sample-"+id)
	return err
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := db.Open(config.Database{}, logger.NewSilentLogger())
	assert.Error(t, err)
}

func TestOpen_Driver(t *testing.T) {
	assert.Equal(t, "sqlite3", dbtest.Open(t).Driver())

	m, err := db.Open(config.Database{DatabaseURL: "postgres://app@localhost/app"}, logger.NewSilentLogger())
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "postgres", m.Driver())
}

func TestSession_CommitPersists(t *testing.T) {
	m := dbtest.Open(t)

	err := m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		if err := insertSample(ctx, s, "1"); err != nil {
			return err
		}
		return s.Commit(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countSamples(t, m))
}

func TestSession_UncommittedWorkIsDiscarded(t *testing.T) {
	m := dbtest.Open(t)

	err := m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		return insertSample(ctx, s, "1")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, countSamples(t, m))
}

func TestSession_ErrorRollsBack(t *testing.T) {
	m := dbtest.Open(t)
	boom := errors.New("boom")

	var session *db.Session
	err := m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		session = s
		require.NoError(t, insertSample(ctx, s, "1"))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, session.Closed())
	assert.Equal(t, 0, countSamples(t, m))
}

func TestSession_PanicRollsBackAndPropagates(t *testing.T) {
	m := dbtest.Open(t)

	var session *db.Session
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
			session = s
			require.NoError(t, insertSample(ctx, s, "1"))
			panic("kaboom")
		})
	})

	require.NotNil(t, session)
	assert.True(t, session.Closed())
	assert.Equal(t, 0, countSamples(t, m))
}

func TestSession_CancellationRollsBack(t *testing.T) {
	m := dbtest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := m.Session(ctx, func(ctx context.Context, s *db.Session) error {
		require.NoError(t, insertSample(ctx, s, "1"))
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, countSamples(t, m))
}

func TestSession_UnusableAfterScope(t *testing.T) {
	m := dbtest.Open(t)

	var session *db.Session
	require.NoError(t, m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		session = s
		return nil
	}))

	assert.ErrorIs(t, insertSample(context.Background(), session, "late"), db.ErrSessionClosed)
	assert.ErrorIs(t, session.Commit(context.Background()), db.ErrSessionClosed)
	assert.NoError(t, session.Close())
}

func TestSession_DeferredCommitIgnoresAutoCommit(t *testing.T) {
	m := dbtest.Open(t)

	err := m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		if err := insertSample(ctx, s, "1"); err != nil {
			return err
		}
		return s.AutoCommit(ctx)
	}, db.DeferredCommit())
	require.NoError(t, err)
	assert.Equal(t, 0, countSamples(t, m))
}

func TestSession_ScopedDisposesIdleConnections(t *testing.T) {
	m := dbtest.Open(t)

	err := m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		if err := insertSample(ctx, s, "1"); err != nil {
			return err
		}
		return s.Commit(ctx)
	}, db.Scoped())
	require.NoError(t, err)

	assert.Equal(t, 0, m.Stats().Idle)
	assert.Equal(t, 1, countSamples(t, m), "pool remains usable after dispose")
}

func TestConnect_CommitsOnSuccessAndRollsBackOnError(t *testing.T) {
	m := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx, func(ctx context.Context, conn *db.Conn) error {
		_, err := conn.ExecContext(ctx, "INSERT INTO samples (id, name) VALUES ($1, $2)", "kept", "kept")
		return err
	}))

	boom := errors.New("boom")
	err := m.Connect(ctx, func(ctx context.Context, conn *db.Conn) error {
		if _, err := conn.ExecContext(ctx, "INSERT INTO samples (id, name) VALUES ($1, $2)", "lost", "lost"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countSamples(t, m))
	assert.Equal(t, 0, m.Stats().InUse, "connections are returned to the pool")
}

func TestClose_IdempotentAndFinal(t *testing.T) {
	m := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.Session(ctx, func(context.Context, *db.Session) error { return nil })
	assert.ErrorIs(t, err, db.ErrNotInitialized)

	err = m.Connect(ctx, func(context.Context, *db.Conn) error { return nil })
	assert.ErrorIs(t, err, db.ErrNotInitialized)

	assert.ErrorIs(t, m.Ping(ctx), db.ErrNotInitialized)
}
