package sqlguard

import "strings"

// forbiddenKeywords may not appear anywhere as bare words.
var forbiddenKeywords = setOf(
	"INSERT", "INTO", "UPDATE", "DELETE", "MERGE", "UPSERT",
	"DROP", "CREATE", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE",
	"COPY", "EXPORT", "IMPORT",
	"ATTACH", "DETACH", "USE",
	"INSTALL", "LOAD",
	"PRAGMA", "SET", "RESET", "CALL", "EXECUTE", "PREPARE", "DEALLOCATE",
	"VACUUM", "CHECKPOINT", "ANALYZE",
	"BEGIN", "COMMIT", "ROLLBACK", "TRANSACTION", "ABORT",
)

// forbiddenFunctions can read files, reach the network or inspect the engine.
var forbiddenFunctions = setOf(
	"glob", "getenv", "query", "query_table", "sniff_csv", "current_setting",
	"which_secret", "load_extension", "system", "shell",
)

var forbiddenFunctionPrefixes = []string{
	"read_", "duckdb_", "pragma_", "parquet_", "iceberg_", "delta_",
	"sqlite_", "postgres_", "mysql_", "http_", "s3_", "json_execute",
}

// keywords are bare words that are never column references.
var keywords = setOf(
	"SELECT", "FROM", "WHERE", "GROUP", "BY", "ORDER", "HAVING", "LIMIT", "OFFSET",
	"AS", "ON", "USING", "JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS",
	"NATURAL", "SEMI", "ANTI", "ASOF", "POSITIONAL", "LATERAL",
	"AND", "OR", "NOT", "IN", "IS", "NULL", "TRUE", "FALSE", "LIKE", "ILIKE", "GLOB",
	"SIMILAR", "ESCAPE", "BETWEEN", "CASE", "WHEN", "THEN", "ELSE", "END",
	"DISTINCT", "ALL", "ANY", "SOME", "EXISTS", "UNION", "INTERSECT", "EXCEPT",
	"WITH", "RECURSIVE", "MATERIALIZED", "ASC", "DESC", "NULLS", "FIRST", "LAST",
	"CAST", "TRY_CAST", "EXTRACT", "SUBSTRING", "TRIM", "POSITION", "OVERLAY",
	"BOTH", "LEADING", "TRAILING", "PLACING", "FOR", "COLLATE",
	"INTERVAL", "AT", "ZONE", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP",
	"YEAR", "YEARS", "MONTH", "MONTHS", "DAY", "DAYS", "HOUR", "HOURS",
	"MINUTE", "MINUTES", "SECOND", "SECONDS", "WEEK", "WEEKS", "QUARTER", "QUARTERS",
	"MILLISECOND", "MILLISECONDS", "MICROSECOND", "MICROSECONDS",
	"DECADE", "CENTURY", "MILLENNIUM", "EPOCH", "DOW", "DOY", "ISODOW", "ISOYEAR",
	"OVER", "PARTITION", "ROWS", "RANGE", "GROUPS", "UNBOUNDED", "PRECEDING",
	"FOLLOWING", "CURRENT", "ROW", "FILTER", "WITHIN", "QUALIFY", "WINDOW",
	"IGNORE", "RESPECT", "TIES", "EXCLUDE", "REPLACE", "RENAME", "COLUMNS",
	"VALUES", "FETCH", "NEXT", "ONLY", "PERCENT", "SAMPLE", "TABLESAMPLE",
	"PIVOT", "UNPIVOT", "ROLLUP", "CUBE", "GROUPING", "SETS",
	"INTEGER", "INT", "INT4", "INT8", "BIGINT", "SMALLINT", "TINYINT", "HUGEINT",
	"UBIGINT", "UINTEGER", "USMALLINT", "UTINYINT",
	"DOUBLE", "FLOAT", "REAL", "DECIMAL", "NUMERIC", "PRECISION",
	"VARCHAR", "CHAR", "TEXT", "STRING", "VARYING", "BOOLEAN", "BOOL",
	"DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "BLOB", "JSON", "UUID",
)

// functionKeywords are keywords whose parenthesised arguments form an
// expression rather than a subquery.
var functionKeywords = setOf(
	"CAST", "TRY_CAST", "EXTRACT", "SUBSTRING", "TRIM", "POSITION", "OVERLAY",
	"DECIMAL", "NUMERIC", "VARCHAR", "CHAR", "COLUMNS", "GROUPING", "ROLLUP", "CUBE",
)

// queryStarters open a nested query when they follow a parenthesis.
var queryStarters = setOf("SELECT", "WITH", "FROM", "VALUES", "TABLE", "PIVOT", "UNPIVOT", "SUMMARIZE", "DESCRIBE", "SHOW")

// expressionEnders are keywords that can end an expression and so may be
// followed by an implicit alias.
var expressionEnders = setOf("END", "NULL", "TRUE", "FALSE")

func isForbiddenFunction(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := forbiddenFunctions[lower]; ok {
		return true
	}
	for _, prefix := range forbiddenFunctionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, word := range words {
		out[word] = struct{}{}
	}
	return out
}

// reservedWords cannot be used as bare identifiers in DuckDB.
var reservedWords = setOf(
	"ALL", "ANALYSE", "ANALYZE", "AND", "ANY", "ARRAY", "AS", "ASC", "ASYMMETRIC",
	"BOTH", "CASE", "CAST", "CHECK", "COLLATE", "COLUMN", "CONSTRAINT", "CREATE",
	"DEFAULT", "DEFERRABLE", "DESC", "DESCRIBE", "DISTINCT", "DO", "ELSE", "END",
	"EXCEPT", "FALSE", "FETCH", "FOR", "FOREIGN", "FROM", "GRANT", "GROUP", "HAVING",
	"IN", "INITIALLY", "INTERSECT", "INTO", "LATERAL", "LEADING", "LIMIT", "NOT",
	"NULL", "OFFSET", "ON", "ONLY", "OR", "ORDER", "PIVOT", "PIVOT_LONGER",
	"PIVOT_WIDER", "PLACING", "PRIMARY", "QUALIFY", "REFERENCES", "RETURNING",
	"SELECT", "SHOW", "SOME", "SUMMARIZE", "SYMMETRIC", "TABLE", "THEN", "TO",
	"TRAILING", "TRUE", "UNION", "UNIQUE", "UNPIVOT", "USING", "VARIADIC", "WHEN",
	"WHERE", "WINDOW", "WITH",
)

// IsReserved reports whether name, written bare, fails to parse or is
// rejected by Validate as a write keyword.
func IsReserved(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := reservedWords[upper]; ok {
		return true
	}
	_, ok := forbiddenKeywords[upper]
	return ok
}

// IsKeyword reports whether name is a word the validator treats as SQL
// syntax rather than an identifier. Keywords cannot name tables.
func IsKeyword(name string) bool {
	_, ok := keywords[strings.ToUpper(name)]
	return ok
}
