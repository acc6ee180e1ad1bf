package ident

// defaultReserved lists SQL keywords rejected as table or column names. The list is the
// intersection-plus of the PostgreSQL and SQLite reserved sets; lower case.
var defaultReserved = []string{
	"all", "alter", "analyse", "analyze", "and", "any", "array", "as", "asc",
	"asymmetric", "between", "both", "by", "case", "cast", "check", "collate",
	"column", "constraint", "create", "cross", "current_date", "current_role",
	"current_time", "current_timestamp", "current_user", "default", "deferrable",
	"delete", "desc", "distinct", "do", "drop", "else", "end", "except", "exists",
	"false", "fetch", "for", "foreign", "from", "full", "grant", "group", "having",
	"in", "index", "initially", "inner", "insert", "intersect", "into", "is",
	"join", "lateral", "leading", "left", "like", "limit", "localtime",
	"localtimestamp", "natural", "not", "null", "offset", "on", "only", "or",
	"order", "outer", "placing", "pragma", "primary", "references", "returning",
	"right", "select", "session_user", "set", "some", "symmetric", "table",
	"then", "to", "trailing", "true", "union", "unique", "update", "user",
	"using", "values", "variadic", "vacuum", "when", "where", "window", "with",
}

// internalTables are the service's own tables, which share a schema with user tables.
var internalTables = []string{"import_jobs", "goose_db_version"}

// internalPrefixes are catalog namespaces of the supported stores.
var internalPrefixes = []string{"sqlite_", "pg_"}
