package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the SQL differences between the supported stores.
// Everything else (quoting, RETURNING, LIMIT/OFFSET) is shared.
type Dialect interface {
	// Name is the driver name: "postgres" or "sqlite".
	Name() string

	// NewParamBuilder returns a builder that renders bind placeholders in this dialect.
	NewParamBuilder() *ParamBuilder

	// IdentityColumn is the definition of the store-managed id column.
	IdentityColumn() string

	// SearchExpr renders a case-insensitive LIKE of column against placeholder,
	// with backslash as the escape character.
	SearchExpr(column, placeholder string) string

	// MaxParams is the bind-parameter limit per statement.
	MaxParams() int

	// ColumnsQuery returns (name, type) rows for the table bound to the single placeholder.
	ColumnsQuery() string

	// GooseDialect is the dialect name goose expects for migrations.
	GooseDialect() string

	// IsConflict reports unique, primary-key, duplicate-column and duplicate-table violations.
	IsConflict(err error) bool

	// IsUndefinedTable reports errors caused by a missing table.
	IsUndefinedTable(err error) bool
}

// ForDriver returns the dialect for a configured driver name.
func ForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// ParamBuilder collects bind values and hands out matching placeholders.
type ParamBuilder struct {
	params      []any
	placeholder func(n int) string
}

// Add appends v and returns its placeholder.
func (pb *ParamBuilder) Add(v any) string {
	pb.params = append(pb.params, v)
	return pb.placeholder(len(pb.params))
}

// Params returns the bound values in placeholder order.
func (pb *ParamBuilder) Params() []any {
	return pb.params
}

// Len returns the number of bound values.
func (pb *ParamBuilder) Len() int {
	return len(pb.params)
}

// Postgres is the PostgreSQL dialect used through pgx.
type Postgres struct{}

// PostgreSQL error codes treated as conflicts.
const (
	pgUniqueViolation = "23505"
	pgDuplicateColumn = "42701"
	pgDuplicateTable  = "42P07"
	pgUndefinedTable  = "42P01"
)

func (Postgres) Name() string { return "postgres" }

func (Postgres) NewParamBuilder() *ParamBuilder {
	return &ParamBuilder{placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
}

func (Postgres) IdentityColumn() string { return "id BIGSERIAL PRIMARY KEY" }

func (Postgres) SearchExpr(column, placeholder string) string {
	return "CAST(" + column + " AS TEXT) ILIKE " + placeholder + ` ESCAPE '\'`
}

func (Postgres) MaxParams() int { return 65535 }

func (Postgres) ColumnsQuery() string {
	return `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
}

func (Postgres) GooseDialect() string { return "postgres" }

func (Postgres) IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgDuplicateColumn, pgDuplicateTable:
		return true
	}
	return false
}

func (Postgres) IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

// SQLite is the embedded dialect backed by modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) NewParamBuilder() *ParamBuilder {
	return &ParamBuilder{placeholder: func(int) string { return "?" }}
}

func (SQLite) IdentityColumn() string { return "id INTEGER PRIMARY KEY AUTOINCREMENT" }

// SearchExpr uses LIKE, which SQLite already matches case-insensitively for ASCII.
func (SQLite) SearchExpr(column, placeholder string) string {
	return "CAST(" + column + " AS TEXT) LIKE " + placeholder + ` ESCAPE '\'`
}

func (SQLite) MaxParams() int { return 32766 }

func (SQLite) ColumnsQuery() string {
	return `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
}

func (SQLite) GooseDialect() string { return "sqlite3" }

func (SQLite) IsConflict(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	msg := sqlErr.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate column name") ||
		(strings.Contains(msg, "table") && strings.Contains(msg, "already exists"))
}

func (SQLite) IsUndefinedTable(err error) bool {
	var sqlErr *sqlite.Error
	return errors.As(err, &sqlErr) && strings.Contains(sqlErr.Error(), "no such table")
}
