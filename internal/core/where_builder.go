package core

// where_builder.go assembles WHERE clauses from validated identifiers.
//
// Identifiers are quoted and concatenated; every value goes through the dialect's
// ParamBuilder so the clause and its arguments always line up.

import (
	"strings"

	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/store"
)

// WhereBuilder collects conditions that are ANDed together.
type WhereBuilder struct {
	dialect    store.Dialect
	pb         *store.ParamBuilder
	conditions []string
}

// NewWhereBuilder creates a builder that binds values into pb.
func NewWhereBuilder(d store.Dialect, pb *store.ParamBuilder) *WhereBuilder {
	return &WhereBuilder{dialect: d, pb: pb}
}

// AddEquals adds `"col" = ?`, or `"col" IS NULL` for a nil value.
func (wb *WhereBuilder) AddEquals(col ident.Identifier, value any) *WhereBuilder {
	wb.conditions = append(wb.conditions, wb.equals(col, value))
	return wb
}

func (wb *WhereBuilder) equals(col ident.Identifier, value any) string {
	if value == nil {
		return col.Quoted() + " IS NULL"
	}
	return col.Quoted() + " = " + wb.pb.Add(value)
}

// AddFilters adds one parenthesized group of equality predicates joined by AND.
// cols and values are parallel; nil values match NULL.
func (wb *WhereBuilder) AddFilters(cols []ident.Identifier, values []any) *WhereBuilder {
	if len(cols) == 0 {
		return wb
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = wb.equals(col, values[i])
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " AND ")+")")
	return wb
}

// AddSearch adds one parenthesized group matching term as a substring of any of cols.
// An empty term or column list adds nothing.
func (wb *WhereBuilder) AddSearch(term string, cols []ident.Identifier) *WhereBuilder {
	if term == "" || len(cols) == 0 {
		return wb
	}
	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = wb.dialect.SearchExpr(col.Quoted(), wb.pb.Add(pattern))
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	return wb
}

// AddIn adds `CAST("col" AS TEXT) IN (...)` over string values.
func (wb *WhereBuilder) AddIn(col ident.Identifier, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = wb.pb.Add(v)
	}
	wb.conditions = append(wb.conditions,
		"CAST("+col.Quoted()+" AS TEXT) IN ("+strings.Join(placeholders, ", ")+")")
	return wb
}

// Build returns " WHERE ..." or "" when no conditions were added.
func (wb *WhereBuilder) Build() string {
	if len(wb.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(wb.conditions, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in s match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
