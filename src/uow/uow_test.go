package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrelay/src/db"
	"taskrelay/src/dbtest"
	"taskrelay/src/repository"
	"taskrelay/src/uow"
)

func count(t *testing.T, m *db.Manager) int {
	t.Helper()
	var n int
	err := m.Session(context.Background(), func(ctx context.Context, s *db.Session) error {
		got, err := repository.NewSamples(s).Filter(ctx, 0, 0)
		n = len(got)
		return err
	})
	require.NoError(t, err)
	return n
}

func TestRun_CommitsOnceOnSuccess(t *testing.T) {
	m := dbtest.Open(t)

	err := uow.Run(context.Background(), m, uow.Default(), func(ctx context.Context, u *uow.UnitOfWork) error {
		samples, err := uow.Repo[*repository.Samples](u, uow.Samples)
		if err != nil {
			return err
		}
		first, err := samples.Create(ctx, repository.Fields{"name": "a"})
		if err != nil {
			return err
		}
		// staged rows are visible inside the unit of work
		got, err := samples.Get(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		_, err = samples.Create(ctx, repository.Fields{"name": "b"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, m))
}

func TestRun_ErrorDiscardsEveryWrite(t *testing.T) {
	m := dbtest.Open(t)
	boom := errors.New("boom")

	err := uow.Run(context.Background(), m, uow.Default(), func(ctx context.Context, u *uow.UnitOfWork) error {
		samples, err := uow.Repo[*repository.Samples](u, uow.Samples)
		require.NoError(t, err)
		_, err = samples.Create(ctx, repository.Fields{"name": "a"})
		require.NoError(t, err)
		_, err = samples.Create(ctx, repository.Fields{"name": "b"})
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, m))
}

func TestRun_RepositoriesShareTheSession(t *testing.T) {
	m := dbtest.Open(t)

	registry := uow.Default()
	registry["samples_again"] = func(s *db.Session) any { return repository.NewSamples(s) }

	err := uow.Run(context.Background(), m, registry, func(ctx context.Context, u *uow.UnitOfWork) error {
		a, err := uow.Repo[*repository.Samples](u, uow.Samples)
		require.NoError(t, err)
		b, err := uow.Repo[*repository.Samples](u, "samples_again")
		require.NoError(t, err)

		assert.Same(t, u.Session(), a.Session())
		assert.Same(t, u.Session(), b.Session())
		return nil
	})
	require.NoError(t, err)
}

func TestRun_SessionClosedAfterExit(t *testing.T) {
	m := dbtest.Open(t)

	var session *db.Session
	require.NoError(t, uow.Run(context.Background(), m, uow.Default(), func(ctx context.Context, u *uow.UnitOfWork) error {
		session = u.Session()
		return nil
	}))
	assert.True(t, session.Closed())
}

func TestRepository_Lookup(t *testing.T) {
	m := dbtest.Open(t)

	err := uow.Run(context.Background(), m, uow.Default(), func(ctx context.Context, u *uow.UnitOfWork) error {
		_, err := u.Repository("orders")
		assert.ErrorIs(t, err, uow.ErrRepositoryNotFound)

		_, err = uow.Repo[string](u, uow.Samples)
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestRun_ManagerClosed(t *testing.T) {
	m := dbtest.Open(t)
	require.NoError(t, m.Close())

	err := uow.Run(context.Background(), m, uow.Default(), func(context.Context, *uow.UnitOfWork) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, db.ErrNotInitialized)
}
