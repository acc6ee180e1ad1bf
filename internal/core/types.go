// Package core provides the dynamic-schema data layer: runtime table management,
// generic record CRUD and asynchronous CSV import.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// DBTX is the interface for database operations.
// Satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IDColumn is the store-managed identity column every table receives.
const IDColumn = "id"

// ColumnDef is one user column: a name and a free-form type declaration such as
// "TEXT", "TEXT UNIQUE" or "DATE".
type ColumnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema is a table name and its ordered columns.
type TableSchema struct {
	Name    string      `json:"table_name"`
	Columns []ColumnDef `json:"columns"`
}

// ColumnNames returns the column names in order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the schema contains name (exact match).
func (s TableSchema) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Exists reports whether introspection found the table.
func (s TableSchema) Exists() bool {
	return len(s.Columns) > 0
}

// Record is one row: the store-assigned id plus column values.
type Record struct {
	ID     int64
	Fields map[string]any
}

// MarshalJSON flattens the record into a single object with "id" alongside the fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[IDColumn] = r.ID
	return json.Marshal(out)
}

// Sort directions accepted by QuerySpec.SortDir.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// QuerySpec selects, filters and pages records.
type QuerySpec struct {
	// Filters are exact-match predicates, ANDed.
	Filters map[string]any

	// Search is matched as a case-insensitive substring against the columns named in
	// Filters, ORed together and ANDed with the filters. With no filters it has no effect.
	Search string

	// Page is 1-based.
	Page int

	// Limit is the page size.
	Limit int

	// SortBy defaults to the id column.
	SortBy string

	// SortDir is "asc" or "desc" (case-insensitive); empty means asc.
	SortDir string
}

// DefaultQuerySpec returns the first page of 10 rows ordered by id.
func DefaultQuerySpec() QuerySpec {
	return QuerySpec{Page: 1, Limit: 10, SortBy: IDColumn, SortDir: SortAsc}
}

// JobState is the lifecycle position of an import job.
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// ImportJob is the bookkeeping record for one asynchronous import.
type ImportJob struct {
	ID         string     `json:"id"`
	Table      string     `json:"table_name"`
	Requester  string     `json:"requester"`
	State      JobState   `json:"state"`
	Inserted   int        `json:"inserted"`
	Error      string     `json:"error,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
