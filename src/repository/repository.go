// Package repository provides generic get/create/filter access to one
// entity type over a db.Session.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskrelay/src/db"
	"taskrelay/src/ids"
	"taskrelay/src/models"
)

// DefaultLimit caps Filter when the caller passes no limit.
const DefaultLimit = 100

var (
	// ErrUnknownField is returned when a field or predicate names a column
	// the entity does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidPage is returned for a negative skip.
	ErrInvalidPage = errors.New("invalid page")
)

// Fields maps column names to values for Create.
type Fields map[string]any

// Repository reads and writes entities of type T. PT is *T and is inferred:
//
//	samples := repository.New[models.Sample](session)
type Repository[T any, PT interface {
	*T
	models.Model
}] struct {
	session *db.Session
	table   string
	columns []string
}

// New binds a repository for T to session.
func New[T any, PT interface {
	*T
	models.Model
}](session *db.Session) *Repository[T, PT] {
	var zero T
	model := PT(&zero)
	columns := append(append([]string(nil), models.BaseColumns...), model.Columns()...)
	return &Repository[T, PT]{
		session: session,
		table:   model.TableName(),
		columns: columns,
	}
}

// Session returns the session the repository is bound to.
func (r *Repository[T, PT]) Session() *db.Session {
	return r.session
}

func (r *Repository[T, PT]) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(r.columns, ", "), r.table)
}

func (r *Repository[T, PT]) hasColumn(name string) bool {
	for _, c := range r.columns {
		if c == name {
			return true
		}
	}
	return false
}

func targets(p models.Model) []any {
	base := p.BaseModel()
	out := []any{&base.ID, timestamp{&base.CreatedUTC}, timestamp{&base.UpdatedUTC}}
	return append(out, p.Targets()...)
}

// Get returns the entity with the given id, or nil when there is none.
func (r *Repository[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	row, err := r.session.QueryRow(ctx, r.selectSQL()+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	var entity T
	if err := row.Scan(targets(PT(&entity))...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", r.table, id, err)
	}
	return &entity, nil
}

// Create inserts a row built from data, commits (unless the session defers
// commits to its owner) and returns the stored entity including the
// generated id and timestamps.
func (r *Repository[T, PT]) Create(ctx context.Context, data Fields) (*T, error) {
	var zero T
	writable := PT(&zero).Columns()

	names := make([]string, 0, len(data))
	for name := range data {
		if !contains(writable, name) {
			return nil, fmt.Errorf("%w %q for %s", ErrUnknownField, name, r.table)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	id := ids.EntityID()
	cols := append([]string{"id"}, names...)
	args := []any{id}
	placeholders := []string{"$1"}
	for i, name := range names {
		args = append(args, data[name])
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := r.session.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.table, err)
	}
	if err := r.session.AutoCommit(ctx); err != nil {
		return nil, err
	}

	entity, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("created %s %s could not be read back", r.table, id)
	}
	return entity, nil
}

// Filter returns at most limit entities matching every predicate, after
// skipping the first skip matches. Results are ordered by created_utc, id.
// A limit of zero or less means DefaultLimit.
func (r *Repository[T, PT]) Filter(ctx context.Context, limit, skip int, preds ...Predicate) ([]*T, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip %d", ErrInvalidPage, skip)
	}

	var (
		where []string
		args  []any
	)
	for _, p := range preds {
		if !r.hasColumn(p.Column) {
			return nil, fmt.Errorf("%w %q for %s", ErrUnknownField, p.Column, r.table)
		}
		if p.op == "" {
			return nil, fmt.Errorf("predicate on %q has no operator", p.Column)
		}
		args = append(args, p.Value)
		where = append(where, fmt.Sprintf("%s %s $%d", p.Column, p.op, len(args)))
	}

	query := r.selectSQL()
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, skip)
	query += fmt.Sprintf(" ORDER BY created_utc, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.session.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var entity T
		if err := rows.Scan(targets(PT(&entity))...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.table, err)
		}
		out = append(out, &entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to filter %s: %w", r.table, err)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// timestamp scans time columns from drivers that return text, such as SQLite
// for values written by CURRENT_TIMESTAMP.
type timestamp struct {
	t *time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		*ts.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (ts timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
