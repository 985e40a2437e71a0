// Package uow groups repositories behind one session and one commit.
package uow

import (
	"context"
	"errors"
	"fmt"

	"taskrelay/src/db"
)

// ErrRepositoryNotFound is returned when a unit of work has no repository
// registered under the requested name.
var ErrRepositoryNotFound = errors.New("repository not found")

// Factory builds a repository bound to a session.
type Factory func(s *db.Session) any

// Registry maps repository names to factories.
type Registry map[string]Factory

// UnitOfWork holds one repository per registered name, all sharing a session.
// It is only valid inside the function passed to Run.
type UnitOfWork struct {
	session      *db.Session
	repositories map[string]any
}

func newUnitOfWork(s *db.Session, registry Registry) *UnitOfWork {
	repos := make(map[string]any, len(registry))
	for name, factory := range registry {
		repos[name] = factory(s)
	}
	return &UnitOfWork{session: s, repositories: repos}
}

// Run opens a session, builds the registered repositories on it and calls fn.
// Repository writes are staged and committed together once fn returns nil;
// an error or panic rolls all of them back. The session is closed on every
// path.
func Run(ctx context.Context, m *db.Manager, registry Registry, fn func(ctx context.Context, u *UnitOfWork) error) error {
	return m.Session(ctx, func(ctx context.Context, s *db.Session) error {
		if err := fn(ctx, newUnitOfWork(s, registry)); err != nil {
			return err
		}
		return s.Commit(ctx)
	}, db.DeferredCommit())
}

// Session returns the shared session.
func (u *UnitOfWork) Session() *db.Session {
	return u.session
}

// Repository returns the repository registered under name.
func (u *UnitOfWork) Repository(name string) (any, error) {
	repo, ok := u.repositories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, name)
	}
	return repo, nil
}

// Repo is Repository with a type assertion:
//
//	samples, err := uow.Repo[*repository.Samples](u, uow.Samples)
func Repo[R any](u *UnitOfWork, name string) (R, error) {
	var zero R
	repo, err := u.Repository(name)
	if err != nil {
		return zero, err
	}
	typed, ok := repo.(R)
	if !ok {
		return zero, fmt.Errorf("repository %s is %T, not %T", name, repo, zero)
	}
	return typed, nil
}
