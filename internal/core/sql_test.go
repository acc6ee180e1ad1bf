package core

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/store"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *RecordEngine, *SchemaManager) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := store.Postgres{}
	return mock, NewRecordEngine(db, d, nil), NewSchemaManager(db, d, nil)
}

func TestRecordEngine_InsertSQL(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`INSERT INTO "customer" ("email", "name") VALUES ($1, $2) RETURNING "id"`).
		WithArgs("a@example.com", "Ann").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	rec, err := records.Insert(context.Background(), "customer", map[string]any{
		"name":  "Ann",
		"email": "a@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, map[string]any{"name": "Ann", "email": "a@example.com"}, rec.Fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_InsertSQL_NoFields(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`INSERT INTO "customer" DEFAULT VALUES RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rec, err := records.Insert(context.Background(), "customer", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_QuerySQL(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`SELECT * FROM "tickets" WHERE ("status" = $1) AND (CAST("status" AS TEXT) ILIKE $2 ESCAPE '\') ORDER BY "name" DESC LIMIT $3 OFFSET $4`).
		WithArgs("open", `%a\_b%`, 5, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).
			AddRow(int64(3), "a_b thing", "open"))

	got, err := records.Query(context.Background(), "tickets", QuerySpec{
		Filters: map[string]any{"status": "open"},
		Search:  "a_b",
		SortBy:  "name",
		SortDir: "DESC",
		Page:    3,
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, "open", got[0].Fields["status"])
	assert.NotContains(t, got[0].Fields, "id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_QuerySQL_SearchWithoutFiltersIsIgnored(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`SELECT * FROM "tickets" ORDER BY "id" ASC LIMIT $1 OFFSET $2`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := records.Query(context.Background(), "tickets", QuerySpec{Search: "x", Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_CountSQL_NullFilter(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`SELECT COUNT(*) FROM "tickets" WHERE ("closed_at" IS NULL AND "status" = $1)`).
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := records.Count(context.Background(), "tickets", QuerySpec{
		Filters: map[string]any{"status": "open", "closed_at": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_UpdateSQL(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`UPDATE "customer" SET "name" = $1 WHERE "id" = $2 RETURNING *`).
		WithArgs("Bea", 4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(4), "Bea"))

	rec, err := records.Update(context.Background(), "customer", 4, map[string]any{"name": "Bea"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(4), rec.ID)
	assert.Equal(t, "Bea", rec.Fields["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_DeleteSQL(t *testing.T) {
	mock, records, _ := newMock(t)

	mock.ExpectQuery(`DELETE FROM "customer" WHERE "id" = $1 RETURNING "id"`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := records.Delete(context.Background(), "customer", 9)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEngine_RejectsBeforeSQL(t *testing.T) {
	mock, records, _ := newMock(t)
	ctx := context.Background()

	_, err := records.Insert(ctx, "customer; DROP TABLE x", map[string]any{"name": "a"})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = records.Insert(ctx, "customer", map[string]any{"na me": "a"})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = records.Insert(ctx, "customer", map[string]any{"id": 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = records.Insert(ctx, "customer", map[string]any{"tags": []string{"a"}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = records.Update(ctx, "customer", 1, map[string]any{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = records.Query(ctx, "customer", QuerySpec{Page: 0, Limit: 10})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = records.Query(ctx, "customer", QuerySpec{Page: 1, Limit: 10, SortDir: "sideways"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = records.Query(ctx, "customer", QuerySpec{Page: 1, Limit: 10, SortBy: "name desc"})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	assert.NoError(t, mock.ExpectationsWereMet(), "no statement may reach the database")
}

func TestSchemaManager_CreateTableSQL(t *testing.T) {
	mock, _, schema := newMock(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "customer" (id BIGSERIAL PRIMARY KEY, "name" TEXT, "email" TEXT UNIQUE, "price" NUMERIC(10,2) NOT NULL)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := schema.CreateTable(context.Background(), TableSchema{
		Name: "customer",
		Columns: []ColumnDef{
			{Name: "name", Type: "TEXT"},
			{Name: "email", Type: " TEXT UNIQUE "},
			{Name: "price", Type: "NUMERIC(10,2) NOT NULL"},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaManager_CreateTableRejects(t *testing.T) {
	tests := []struct {
		name    string
		schema  TableSchema
		wantErr error
	}{
		{
			name:    "no columns",
			schema:  TableSchema{Name: "t"},
			wantErr: ErrValidation,
		},
		{
			name:    "reserved table name",
			schema:  TableSchema{Name: "select", Columns: []ColumnDef{{Name: "a", Type: "TEXT"}}},
			wantErr: ErrInvalidIdentifier,
		},
		{
			name:    "injected type",
			schema:  TableSchema{Name: "t", Columns: []ColumnDef{{Name: "a", Type: "TEXT); DROP TABLE x; --"}}},
			wantErr: ident.ErrInvalidTypeSpec,
		},
		{
			name:    "user id column",
			schema:  TableSchema{Name: "t", Columns: []ColumnDef{{Name: "ID", Type: "INTEGER"}}},
			wantErr: ErrSchemaConflict,
		},
		{
			name: "duplicate column",
			schema: TableSchema{Name: "t", Columns: []ColumnDef{
				{Name: "a", Type: "TEXT"},
				{Name: "A", Type: "TEXT"},
			}},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, _, schema := newMock(t)
			err := schema.CreateTable(context.Background(), tt.schema)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSchemaManager_AddColumnSQL(t *testing.T) {
	mock, _, schema := newMock(t)

	mock.ExpectQuery(store.Postgres{}.ColumnsQuery()).
		WithArgs("customer").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "bigint").
			AddRow("name", "text"))
	mock.ExpectExec(`ALTER TABLE "customer" ADD COLUMN "joined" DATE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := schema.AddColumn(context.Background(), "customer", ColumnDef{Name: "joined", Type: "DATE"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaManager_AddColumnConflicts(t *testing.T) {
	mock, _, schema := newMock(t)

	mock.ExpectQuery(store.Postgres{}.ColumnsQuery()).
		WithArgs("customer").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "bigint").
			AddRow("name", "text"))

	err := schema.AddColumn(context.Background(), "customer", ColumnDef{Name: "Name", Type: "TEXT"})
	assert.ErrorIs(t, err, ErrSchemaConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaManager_AddColumnMissingTable(t *testing.T) {
	mock, _, schema := newMock(t)

	mock.ExpectQuery(store.Postgres{}.ColumnsQuery()).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))

	err := schema.AddColumn(context.Background(), "ghost", ColumnDef{Name: "a", Type: "TEXT"})
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.Equal(t, KindTableNotFound, Kind(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaManager_DropTableSQL(t *testing.T) {
	mock, _, schema := newMock(t)

	mock.ExpectExec(`DROP TABLE IF EXISTS "customer"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, schema.DropTable(context.Background(), "customer"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImporter_BulkInsertBatches(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	imp := NewImporter(db, store.Postgres{}, nil, ImporterConfig{BatchSize: 2})
	vds := &ValidatedDataset{
		Table:   "customer",
		Columns: []ident.Identifier{"name", "email"},
		Rows: [][]any{
			{"a", "a@x.io"},
			{"b", nil},
			{"c", "c@x.io"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "customer" ("name", "email") VALUES ($1, $2), ($3, $4)`).
		WithArgs("a", "a@x.io", "b", nil).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "customer" ("name", "email") VALUES ($1, $2)`).
		WithArgs("c", "c@x.io").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := imp.BulkInsert(context.Background(), vds)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImporter_BulkInsertRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	imp := NewImporter(db, store.Postgres{}, nil, ImporterConfig{BatchSize: 1})
	vds := &ValidatedDataset{
		Table:   "customer",
		Columns: []ident.Identifier{"name"},
		Rows:    [][]any{{"a"}, {"b"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "customer" ("name") VALUES ($1)`).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "customer" ("name") VALUES ($1)`).
		WithArgs("b").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = imp.BulkInsert(context.Background(), vds)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImporter_RowsPerStatement(t *testing.T) {
	imp := NewImporter(nil, store.SQLite{}, nil, ImporterConfig{BatchSize: 1000})
	assert.Equal(t, 1000, imp.rowsPerStatement(3))
	assert.Equal(t, 32766/100, imp.rowsPerStatement(100))
	assert.Equal(t, 1, imp.rowsPerStatement(40000))
}
