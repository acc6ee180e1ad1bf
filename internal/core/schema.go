package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/logging"
	"github.com/JonMunkholm/dynatable/internal/store"
)

// SchemaManager creates, extends, drops and describes user tables.
type SchemaManager struct {
	db      DBTX
	dialect store.Dialect
	idents  *ident.Validator
}

// NewSchemaManager creates a manager over db. A nil validator uses ident.Default().
func NewSchemaManager(db DBTX, d store.Dialect, v *ident.Validator) *SchemaManager {
	if v == nil {
		v = ident.Default()
	}
	return &SchemaManager{db: db, dialect: d, idents: v}
}

// CreateTable creates the table with a store-managed id column followed by the
// given columns. Creating a table that already exists is a no-op.
func (m *SchemaManager) CreateTable(ctx context.Context, schema TableSchema) error {
	query, err := m.buildCreateTable(schema)
	if err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return storeError(m.dialect, "create table", err)
	}

	logging.FromContext(ctx).Info("table created", "table", schema.Name, "columns", len(schema.Columns))
	return nil
}

func (m *SchemaManager) buildCreateTable(schema TableSchema) (string, error) {
	t, err := m.idents.ValidateTable(schema.Name)
	if err != nil {
		return "", err
	}
	if len(schema.Columns) == 0 {
		return "", validationf("table %s needs at least one column", schema.Name)
	}

	defs := make([]string, 0, len(schema.Columns)+1)
	defs = append(defs, m.dialect.IdentityColumn())

	seen := make(map[string]struct{}, len(schema.Columns))
	for _, col := range schema.Columns {
		def, err := m.columnDefinition(col)
		if err != nil {
			return "", err
		}
		key := strings.ToLower(col.Name)
		if key == IDColumn {
			return "", fmt.Errorf("column %q: %w: the id column is managed by the store", col.Name, ErrSchemaConflict)
		}
		if _, dup := seen[key]; dup {
			return "", &ValidationError{Message: "duplicate columns in definition", Columns: []string{col.Name}}
		}
		seen[key] = struct{}{}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Quoted(), strings.Join(defs, ", ")), nil
}

// AddColumn appends a column to an existing table.
func (m *SchemaManager) AddColumn(ctx context.Context, table string, col ColumnDef) error {
	t, err := m.idents.ValidateTable(table)
	if err != nil {
		return err
	}
	def, err := m.columnDefinition(col)
	if err != nil {
		return err
	}

	existing, err := m.Describe(ctx, table)
	if err != nil {
		return err
	}
	if !existing.Exists() {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	for _, c := range existing.Columns {
		if strings.EqualFold(c.Name, col.Name) {
			return fmt.Errorf("column %q of table %s: %w: column already exists", col.Name, table, ErrSchemaConflict)
		}
	}

	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t.Quoted(), def)
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return storeError(m.dialect, "add column", err)
	}

	logging.WithFields(ctx, "table", table, "column", col.Name).Info("column added")
	return nil
}

// DropTable removes the table and its data. Dropping a missing table is a no-op.
func (m *SchemaManager) DropTable(ctx context.Context, table string) error {
	t, err := m.idents.ValidateTable(table)
	if err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.Quoted()); err != nil {
		return storeError(m.dialect, "drop table", err)
	}

	logging.FromContext(ctx).Info("table dropped", "table", table)
	return nil
}

// Describe introspects the table's columns in declaration order, id included.
// An unknown table yields a schema with no columns and no error.
func (m *SchemaManager) Describe(ctx context.Context, table string) (TableSchema, error) {
	t, err := m.idents.ValidateTable(table)
	if err != nil {
		return TableSchema{}, err
	}

	rows, err := m.db.QueryContext(ctx, m.dialect.ColumnsQuery(), t.String())
	if err != nil {
		return TableSchema{}, storeError(m.dialect, "describe table", err)
	}
	defer rows.Close()

	schema := TableSchema{Name: t.String()}
	for rows.Next() {
		var col ColumnDef
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return TableSchema{}, storeError(m.dialect, "describe table", err)
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return TableSchema{}, storeError(m.dialect, "describe table", err)
	}
	return schema, nil
}

// columnDefinition validates a column and renders `"name" TYPE`.
func (m *SchemaManager) columnDefinition(col ColumnDef) (string, error) {
	name, err := m.idents.Validate(col.Name)
	if err != nil {
		return "", err
	}
	typ, err := ident.ValidateTypeSpec(col.Type)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", col.Name, err)
	}
	return name.Quoted() + " " + typ, nil
}
