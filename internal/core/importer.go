package core

// importer.go validates a parsed CSV against the target table and inserts it.
//
// The whole dataset is written in one transaction: either every row lands or none
// does. Rows are sent as multi-row INSERT statements sized by the configured batch
// size and the dialect's bind-parameter limit.

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/logging"
	"github.com/JonMunkholm/dynatable/internal/store"
)

// DefaultBatchSize is the number of rows per INSERT when none is configured.
const DefaultBatchSize = 1000

// TxBeginner is a DBTX that can also open transactions. *sql.DB satisfies it.
type TxBeginner interface {
	DBTX
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ImporterConfig tunes the import pipeline.
type ImporterConfig struct {
	BatchSize    int      // Rows per INSERT statement
	MaxFileSize  int64    // Upper bound for ParseCSV, in bytes
	UniqueFields []string // Columns whose values may not repeat within a file or against the table
}

// ValidatedDataset is a Dataset that passed validation, with cells converted to bind values.
type ValidatedDataset struct {
	Table   ident.Identifier
	Columns []ident.Identifier
	Rows    [][]any
}

// Importer runs the CSV import pipeline.
type Importer struct {
	db      TxBeginner
	dialect store.Dialect
	idents  *ident.Validator
	schema  *SchemaManager
	records *RecordEngine
	cfg     ImporterConfig
}

// NewImporter creates an importer over db. A nil validator uses ident.Default().
func NewImporter(db TxBeginner, d store.Dialect, v *ident.Validator, cfg ImporterConfig) *Importer {
	if v == nil {
		v = ident.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Importer{
		db:      db,
		dialect: d,
		idents:  v,
		schema:  NewSchemaManager(db, d, v),
		records: NewRecordEngine(db, d, v),
		cfg:     cfg,
	}
}

// ParseCSV reads r with the configured size limit.
func (imp *Importer) ParseCSV(r io.Reader) (*Dataset, error) {
	return ParseCSV(r, imp.cfg.MaxFileSize)
}

// Run validates ds against table and inserts it, returning the number of rows written.
func (imp *Importer) Run(ctx context.Context, ds *Dataset, table string) (int, error) {
	start := time.Now()

	vds, err := imp.Validate(ctx, ds, table)
	if err != nil {
		return 0, err
	}

	n, err := imp.BulkInsert(ctx, vds)
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Info("import completed",
		"table", table,
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// Validate checks ds against the current schema of table.
func (imp *Importer) Validate(ctx context.Context, ds *Dataset, table string) (*ValidatedDataset, error) {
	t, err := imp.idents.ValidateTable(table)
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, ErrNoDataRows
	}

	if dups := duplicateNames(ds.Header); len(dups) > 0 {
		return nil, &ValidationError{Message: "duplicate columns in header", Columns: dups}
	}

	schema, err := imp.schema.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	if !schema.Exists() {
		return nil, validationf("table %s does not exist", table)
	}

	writable := make(map[string]struct{}, len(schema.Columns))
	for _, c := range schema.Columns {
		if c.Name != IDColumn {
			writable[c.Name] = struct{}{}
		}
	}

	var unknown []string
	for _, h := range ds.Header {
		if _, ok := writable[h]; !ok {
			unknown = append(unknown, h)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ValidationError{Message: "columns not in table " + table, Columns: unknown}
	}

	cols, err := imp.idents.ValidateAll(ds.Header)
	if err != nil {
		return nil, err
	}

	if err := imp.checkUnique(ctx, ds, table); err != nil {
		return nil, err
	}

	rows := make([][]any, len(ds.Rows))
	for i, row := range ds.Rows {
		vals := make([]any, len(row))
		for j, cell := range row {
			if strings.TrimSpace(cell) == "" {
				vals[j] = nil
			} else {
				vals[j] = cell
			}
		}
		rows[i] = vals
	}

	return &ValidatedDataset{Table: t, Columns: cols, Rows: rows}, nil
}

// checkUnique rejects values of the configured unique fields that repeat within the
// dataset or already exist in the table. Empty cells are not compared.
func (imp *Importer) checkUnique(ctx context.Context, ds *Dataset, table string) error {
	var fields []string
	dupSet := make(map[string]struct{})

	for _, field := range imp.cfg.UniqueFields {
		values := ds.Column(field)
		if values == nil {
			continue
		}

		seen := make(map[string]struct{}, len(values))
		candidates := make([]string, 0, len(values))
		fieldHasDup := false
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				dupSet[v] = struct{}{}
				fieldHasDup = true
				continue
			}
			seen[v] = struct{}{}
			candidates = append(candidates, v)
		}

		existing, err := imp.records.ExistingValues(ctx, table, field, candidates)
		if err != nil {
			return err
		}
		for _, v := range existing {
			dupSet[v] = struct{}{}
			fieldHasDup = true
		}

		if fieldHasDup {
			fields = append(fields, field)
		}
	}

	if len(dupSet) == 0 {
		return nil
	}

	values := make([]string, 0, len(dupSet))
	for v := range dupSet {
		values = append(values, v)
	}
	sort.Strings(values)
	sort.Strings(fields)

	return &ValidationError{Message: "duplicate values found", Columns: fields, Values: values}
}

// BulkInsert writes every row of vds in a single transaction.
func (imp *Importer) BulkInsert(ctx context.Context, vds *ValidatedDataset) (int, error) {
	if len(vds.Rows) == 0 {
		return 0, nil
	}

	perStmt := imp.rowsPerStatement(len(vds.Columns))

	tx, err := imp.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeError(imp.dialect, "begin import", err)
	}
	defer tx.Rollback()

	inserted := 0
	for start := 0; start < len(vds.Rows); start += perStmt {
		end := min(start+perStmt, len(vds.Rows))

		query, args := buildBulkInsert(imp.dialect, vds.Table, vds.Columns, vds.Rows[start:end])
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, storeError(imp.dialect, fmt.Sprintf("insert rows %d-%d", start+1, end), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		} else {
			inserted += end - start
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeError(imp.dialect, "commit import", err)
	}
	return inserted, nil
}

// rowsPerStatement bounds a batch by the configured size and the bind-parameter limit.
func (imp *Importer) rowsPerStatement(columns int) int {
	n := imp.cfg.BatchSize
	if columns > 0 {
		n = min(n, imp.dialect.MaxParams()/columns)
	}
	return max(n, 1)
}

func buildBulkInsert(d store.Dialect, t ident.Identifier, cols []ident.Identifier, rows [][]any) (string, []any) {
	pb := d.NewParamBuilder()

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Quoted()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.Quoted(), strings.Join(names, ", "))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pb.Add(v))
		}
		b.WriteByte(')')
	}
	return b.String(), pb.Params()
}

// duplicateNames returns names that appear more than once, sorted.
func duplicateNames(names []string) []string {
	counts := make(map[string]int, len(names))
	for _, n := range names {
		counts[n]++
	}
	var dups []string
	for n, c := range counts {
		if c > 1 {
			dups = append(dups, n)
		}
	}
	sort.Strings(dups)
	return dups
}
