package core

// records.go is the generic record engine: CRUD against any table whose name and
// columns are only known at runtime.
//
// Every table and column name passes through the identifier validator before it is
// quoted into a statement. Values are always bound parameters. The build* functions
// are pure so statement shapes can be tested without a database.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/logging"
	"github.com/JonMunkholm/dynatable/internal/store"
)

// existingValuesChunk caps the IN list of one ExistingValues query.
const existingValuesChunk = 500

// RecordEngine performs insert, query, update and delete on dynamic tables.
type RecordEngine struct {
	db      DBTX
	dialect store.Dialect
	idents  *ident.Validator
}

// NewRecordEngine creates an engine over db. A nil validator uses ident.Default().
func NewRecordEngine(db DBTX, d store.Dialect, v *ident.Validator) *RecordEngine {
	if v == nil {
		v = ident.Default()
	}
	return &RecordEngine{db: db, dialect: d, idents: v}
}

// WithTx returns an engine that runs its statements on tx.
func (e *RecordEngine) WithTx(tx DBTX) *RecordEngine {
	return &RecordEngine{db: tx, dialect: e.dialect, idents: e.idents}
}

// Insert adds one row and returns it with its assigned id.
func (e *RecordEngine) Insert(ctx context.Context, table string, fields map[string]any) (Record, error) {
	t, err := e.idents.ValidateTable(table)
	if err != nil {
		return Record{}, err
	}
	cols, vals, err := e.writableColumns(fields)
	if err != nil {
		return Record{}, err
	}

	query, args := buildInsert(e.dialect, t, cols, vals)

	var id int64
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return Record{}, storeError(e.dialect, "insert record", err)
	}

	logging.FromContext(ctx).Debug("record inserted", "table", table, "id", id)

	rec := Record{ID: id, Fields: make(map[string]any, len(cols))}
	for i, c := range cols {
		rec.Fields[c.String()] = vals[i]
	}
	return rec, nil
}

// Query returns one page of rows matching spec. No match is an empty slice.
func (e *RecordEngine) Query(ctx context.Context, table string, spec QuerySpec) ([]Record, error) {
	t, err := e.idents.ValidateTable(table)
	if err != nil {
		return nil, err
	}
	plan, err := e.planQuery(spec)
	if err != nil {
		return nil, err
	}

	query, args := buildSelect(e.dialect, t, plan)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(e.dialect, "query records", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, storeError(e.dialect, "query records", err)
	}
	return records, nil
}

// Count returns how many rows match the filters and search of spec. Paging and sort are ignored.
func (e *RecordEngine) Count(ctx context.Context, table string, spec QuerySpec) (int64, error) {
	t, err := e.idents.ValidateTable(table)
	if err != nil {
		return 0, err
	}
	cols, vals, err := e.filterColumns(spec.Filters)
	if err != nil {
		return 0, err
	}

	pb := e.dialect.NewParamBuilder()
	where := NewWhereBuilder(e.dialect, pb).
		AddFilters(cols, vals).
		AddSearch(spec.Search, cols).
		Build()

	var n int64
	query := "SELECT COUNT(*) FROM " + t.Quoted() + where
	if err := e.db.QueryRowContext(ctx, query, pb.Params()...).Scan(&n); err != nil {
		return 0, storeError(e.dialect, "count records", err)
	}
	return n, nil
}

// Update changes the given fields of row id and returns the updated row.
// A missing row yields (nil, nil).
func (e *RecordEngine) Update(ctx context.Context, table string, id int64, fields map[string]any) (*Record, error) {
	t, err := e.idents.ValidateTable(table)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, validationf("no fields to update")
	}
	cols, vals, err := e.writableColumns(fields)
	if err != nil {
		return nil, err
	}

	query, args := buildUpdate(e.dialect, t, cols, vals, id)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(e.dialect, "update record", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, storeError(e.dialect, "update record", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	logging.FromContext(ctx).Debug("record updated", "table", table, "id", id)

	return &records[0], nil
}

// Delete removes row id. found is false when no row had that id.
func (e *RecordEngine) Delete(ctx context.Context, table string, id int64) (deleted int64, found bool, err error) {
	t, err := e.idents.ValidateTable(table)
	if err != nil {
		return 0, false, err
	}

	query, args := buildDelete(e.dialect, t, id)

	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, storeError(e.dialect, "delete record", err)
	}

	logging.FromContext(ctx).Debug("record deleted", "table", table, "id", deleted)

	return deleted, true, nil
}

// ExistingValues returns which of values already appear in column, compared as text.
// The result is sorted and free of duplicates.
func (e *RecordEngine) ExistingValues(ctx context.Context, table, column string, values []string) ([]string, error) {
	t, err := e.idents.ValidateTable(table)
	if err != nil {
		return nil, err
	}
	col, err := e.idents.Validate(column)
	if err != nil {
		return nil, err
	}

	unique := dedupe(values)
	chunk := min(existingValuesChunk, e.dialect.MaxParams())

	found := make(map[string]struct{})
	for start := 0; start < len(unique); start += chunk {
		end := min(start+chunk, len(unique))
		if err := e.collectExisting(ctx, t, col, unique[start:end], found); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(found))
	for v := range found {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (e *RecordEngine) collectExisting(ctx context.Context, t, col ident.Identifier, values []string, found map[string]struct{}) error {
	pb := e.dialect.NewParamBuilder()
	where := NewWhereBuilder(e.dialect, pb).AddIn(col, values).Build()
	query := "SELECT DISTINCT CAST(" + col.Quoted() + " AS TEXT) FROM " + t.Quoted() + where

	rows, err := e.db.QueryContext(ctx, query, pb.Params()...)
	if err != nil {
		return storeError(e.dialect, "check existing values", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return storeError(e.dialect, "check existing values", err)
		}
		if v.Valid {
			found[v.String] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return storeError(e.dialect, "check existing values", err)
	}
	return nil
}

// writableColumns validates field keys for insert/update. The id column is store-managed
// and rejected. Columns come back sorted with their values aligned.
func (e *RecordEngine) writableColumns(fields map[string]any) ([]ident.Identifier, []any, error) {
	if _, ok := fields[IDColumn]; ok {
		return nil, nil, validationf("%q is assigned by the store and cannot be written", IDColumn)
	}
	return e.columnsAndValues(fields)
}

// filterColumns validates filter keys. Filtering on id is allowed.
func (e *RecordEngine) filterColumns(filters map[string]any) ([]ident.Identifier, []any, error) {
	return e.columnsAndValues(filters)
}

func (e *RecordEngine) columnsAndValues(fields map[string]any) ([]ident.Identifier, []any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]ident.Identifier, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		col, err := e.idents.Validate(k)
		if err != nil {
			return nil, nil, err
		}
		v, err := scalarValue(k, fields[k])
		if err != nil {
			return nil, nil, err
		}
		cols[i] = col
		vals[i] = v
	}
	return cols, vals, nil
}

// queryPlan is a QuerySpec after validation.
type queryPlan struct {
	filterCols []ident.Identifier
	filterVals []any
	search     string
	sortCol    ident.Identifier
	sortDir    string
	limit      int
	offset     int
}

func (e *RecordEngine) planQuery(spec QuerySpec) (queryPlan, error) {
	if spec.Page < 1 {
		return queryPlan{}, validationf("page must be at least 1, got %d", spec.Page)
	}
	if spec.Limit < 1 {
		return queryPlan{}, validationf("limit must be at least 1, got %d", spec.Limit)
	}
	if spec.Page-1 > math.MaxInt/spec.Limit {
		return queryPlan{}, validationf("page %d is out of range for limit %d", spec.Page, spec.Limit)
	}

	cols, vals, err := e.filterColumns(spec.Filters)
	if err != nil {
		return queryPlan{}, err
	}

	sortBy := spec.SortBy
	if sortBy == "" {
		sortBy = IDColumn
	}
	sortCol, err := e.idents.Validate(sortBy)
	if err != nil {
		return queryPlan{}, err
	}

	var dir string
	switch strings.ToLower(spec.SortDir) {
	case "", SortAsc:
		dir = "ASC"
	case SortDesc:
		dir = "DESC"
	default:
		return queryPlan{}, validationf("sort direction must be asc or desc, got %q", spec.SortDir)
	}

	return queryPlan{
		filterCols: cols,
		filterVals: vals,
		search:     spec.Search,
		sortCol:    sortCol,
		sortDir:    dir,
		limit:      spec.Limit,
		offset:     (spec.Page - 1) * spec.Limit,
	}, nil
}

func buildInsert(d store.Dialect, t ident.Identifier, cols []ident.Identifier, vals []any) (string, []any) {
	if len(cols) == 0 {
		return "INSERT INTO " + t.Quoted() + " DEFAULT VALUES RETURNING " + quotedID(), nil
	}

	pb := d.NewParamBuilder()
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Quoted()
		placeholders[i] = pb.Add(vals[i])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.Quoted(), strings.Join(names, ", "), strings.Join(placeholders, ", "), quotedID())
	return query, pb.Params()
}

func buildSelect(d store.Dialect, t ident.Identifier, p queryPlan) (string, []any) {
	pb := d.NewParamBuilder()
	where := NewWhereBuilder(d, pb).
		AddFilters(p.filterCols, p.filterVals).
		AddSearch(p.search, p.filterCols).
		Build()

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s %s LIMIT %s OFFSET %s",
		t.Quoted(), where, p.sortCol.Quoted(), p.sortDir, pb.Add(p.limit), pb.Add(p.offset))
	return query, pb.Params()
}

func buildUpdate(d store.Dialect, t ident.Identifier, cols []ident.Identifier, vals []any, id int64) (string, []any) {
	pb := d.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c.Quoted() + " = " + pb.Add(vals[i])
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s RETURNING *",
		t.Quoted(), strings.Join(sets, ", "), quotedID(), pb.Add(id))
	return query, pb.Params()
}

func buildDelete(d store.Dialect, t ident.Identifier, id int64) (string, []any) {
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s RETURNING %s",
		t.Quoted(), quotedID(), pb.Add(id), quotedID())
	return query, pb.Params()
}

func quotedID() string {
	return ident.Identifier(IDColumn).Quoted()
}

// scanRecords reads every row into a Record keyed by column name.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	records := []Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := Record{Fields: make(map[string]any, len(cols))}
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if col == IDColumn {
				rec.ID = toInt64(v)
				continue
			}
			rec.Fields[col] = v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

// scalarValue admits the value types that can be bound as a single column value.
func scalarValue(col string, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, time.Time:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, validationf("field %q: invalid number %q", col, x.String())
		}
		return f, nil
	default:
		return nil, validationf("field %q: only scalar values are supported, got %T", col, v)
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
