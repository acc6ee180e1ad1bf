package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForDriver(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: "postgres", want: "postgres"},
		{driver: "PostgreSQL", want: "postgres"},
		{driver: "sqlite", want: "sqlite"},
		{driver: "sqlite3", want: "sqlite"},
		{driver: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := ForDriver(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestParamBuilder(t *testing.T) {
	pg := Postgres{}.NewParamBuilder()
	assert.Equal(t, "$1", pg.Add("a"))
	assert.Equal(t, "$2", pg.Add(2))
	assert.Equal(t, []any{"a", 2}, pg.Params())
	assert.Equal(t, 2, pg.Len())

	lite := SQLite{}.NewParamBuilder()
	assert.Equal(t, "?", lite.Add("a"))
	assert.Equal(t, "?", lite.Add("b"))
	assert.Equal(t, []any{"a", "b"}, lite.Params())
}

func TestSearchExpr(t *testing.T) {
	assert.Equal(t, `CAST("name" AS TEXT) ILIKE $3 ESCAPE '\'`, Postgres{}.SearchExpr(`"name"`, "$3"))
	assert.Equal(t, `CAST("name" AS TEXT) LIKE ? ESCAPE '\'`, SQLite{}.SearchExpr(`"name"`, "?"))
}

func TestPostgres_IsConflict(t *testing.T) {
	d := Postgres{}

	tests := []struct {
		code string
		want bool
	}{
		{"23505", true},
		{"42701", true},
		{"42P07", true},
		{"23502", false},
		{"42P01", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.want, d.IsConflict(err))
		})
	}

	assert.False(t, d.IsConflict(errors.New("connection refused")))
	assert.True(t, d.IsUndefinedTable(&pgconn.PgError{Code: "42P01"}))
}

func TestSQLite_ErrorClassification(t *testing.T) {
	s := OpenTestSQLite(t)
	ctx := context.Background()
	d := s.Dialect

	_, err := s.DB.ExecContext(ctx, `CREATE TABLE "people" (`+d.IdentityColumn()+`, "email" TEXT UNIQUE)`)
	require.NoError(t, err)

	_, err = s.DB.ExecContext(ctx, `INSERT INTO "people" ("email") VALUES (?)`, "a@example.com")
	require.NoError(t, err)

	_, err = s.DB.ExecContext(ctx, `INSERT INTO "people" ("email") VALUES (?)`, "a@example.com")
	require.Error(t, err)
	assert.True(t, d.IsConflict(err), "unique violation should be a conflict: %v", err)

	_, err = s.DB.ExecContext(ctx, `ALTER TABLE "people" ADD COLUMN "email" TEXT`)
	require.Error(t, err)
	assert.True(t, d.IsConflict(err), "duplicate column should be a conflict: %v", err)

	_, err = s.DB.ExecContext(ctx, `SELECT * FROM "missing"`)
	require.Error(t, err)
	assert.False(t, d.IsConflict(err))
	assert.True(t, d.IsUndefinedTable(err))
}

func TestSQLite_ColumnsQuery(t *testing.T) {
	s := OpenTestSQLite(t)
	ctx := context.Background()

	_, err := s.DB.ExecContext(ctx, `CREATE TABLE "people" (`+s.Dialect.IdentityColumn()+`, "name" TEXT, "joined" DATE)`)
	require.NoError(t, err)

	rows, err := s.DB.QueryContext(ctx, s.Dialect.ColumnsQuery(), "people")
	require.NoError(t, err)
	defer rows.Close()

	var names, types []string
	for rows.Next() {
		var name, typ string
		require.NoError(t, rows.Scan(&name, &typ))
		names = append(names, name)
		types = append(types, typ)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []string{"id", "name", "joined"}, names)
	assert.Equal(t, []string{"INTEGER", "TEXT", "DATE"}, types)
}

func TestMigrate_CreatesJobTable(t *testing.T) {
	s := OpenTestSQLite(t)

	var count int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM import_jobs`).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Re-running is a no-op.
	require.NoError(t, s.Migrate())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(5000)", sqliteDSN("a.db"))
	assert.Equal(t, "file:a.db?mode=rwc&_pragma=busy_timeout(5000)", sqliteDSN("file:a.db?mode=rwc"))
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)", sqliteDSN("a.db?_pragma=journal_mode(WAL)"))
}
