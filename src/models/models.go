// Package models defines the persisted entities.
package models

import "time"

// Base carries the columns every table shares. ID and the timestamps are
// assigned when the row is written.
type Base struct {
	ID         string    `json:"id"`
	CreatedUTC time.Time `json:"created_utc"`
	UpdatedUTC time.Time `json:"updated_utc"`
}

// BaseColumns are the shared column names in scan order.
var BaseColumns = []string{"id", "created_utc", "updated_utc"}

// Model is implemented by pointers to entity structs.
type Model interface {
	TableName() string
	// Columns lists the entity's own writable columns, excluding BaseColumns.
	Columns() []string
	// Targets returns scan destinations matching Columns.
	Targets() []any
	BaseModel() *Base
}

// Sample is the example entity.
type Sample struct {
	Base
	Name string `json:"name"`
}

func (*Sample) TableName() string { return "samples" }

func (*Sample) Columns() []string { return []string{"name"} }

func (s *Sample) Targets() []any { return []any{&s.Name} }

func (s *Sample) BaseModel() *Base { return &s.Base }

// Schema creates the tables above. Production schemas are managed by
// migrations; this is used to bootstrap local and test databases.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS samples (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		created_utc TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_utc TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
