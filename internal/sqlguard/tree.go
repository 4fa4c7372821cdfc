package sqlguard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabquery/tabquery/internal/catalog"
)

const parseTimeout = 5 * time.Second

var parser struct {
	once sync.Once
	db   *sql.DB
	err  error
}

// parserDB is an in-memory DuckDB that only serializes statements; it never
// executes them.
func parserDB() (*sql.DB, error) {
	parser.once.Do(func() {
		db, err := sql.Open("duckdb", "")
		if err != nil {
			parser.err = fmt.Errorf("open duckdb parser: %w", err)
			return
		}
		db.SetMaxOpenConns(4)
		parser.db = db
	})
	return parser.db, parser.err
}

type serializedSQL struct {
	Error        bool              `json:"error"`
	ErrorType    string            `json:"error_type"`
	ErrorMessage string            `json:"error_message"`
	Statements   []json.RawMessage `json:"statements"`
}

// checkTree parses statement with DuckDB and walks the resulting tree. Every
// base table must be a catalog table or a CTE of the statement, and table
// functions and blocked scalar functions are rejected wherever they appear.
func checkTree(statement string, schema catalog.Schema) error {
	db, err := parserDB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout)
	defer cancel()

	var raw string
	if err := db.QueryRowContext(ctx, `SELECT CAST(json_serialize_sql(?) AS VARCHAR)`, statement).Scan(&raw); err != nil {
		return fmt.Errorf("serialize statement: %w", err)
	}
	var parsed serializedSQL
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("decode serialized statement: %w", err)
	}
	if parsed.Error {
		if strings.Contains(strings.ToLower(parsed.ErrorMessage), "only select") {
			return invalid("only SELECT queries are allowed")
		}
		return invalid("%s", parsed.ErrorMessage)
	}
	if len(parsed.Statements) != 1 {
		return invalid("only a single statement is allowed")
	}

	var tree any
	if err := json.Unmarshal(parsed.Statements[0], &tree); err != nil {
		return fmt.Errorf("decode statement tree: %w", err)
	}
	w := &treeWalker{ctes: make(map[string]struct{})}
	w.collectCTEs(tree)
	w.walk(tree)
	if w.err != nil {
		return w.err
	}
	for _, ref := range w.tables {
		if ref.schema != "" || ref.catalog != "" {
			return invalid("qualified table name %s.%s is not allowed; available tables: %s",
				firstNonEmpty(ref.catalog, ref.schema), ref.name, strings.Join(schema.TableNames(), ", "))
		}
		if _, isCTE := w.ctes[strings.ToLower(ref.name)]; isCTE {
			continue
		}
		if _, found := schema.Table(ref.name); !found {
			return invalid("unknown table %q; available tables: %s", ref.name, strings.Join(schema.TableNames(), ", "))
		}
	}
	return nil
}

type tableRef struct {
	catalog string
	schema  string
	name    string
}

type treeWalker struct {
	ctes   map[string]struct{}
	tables []tableRef
	err    error
}

func (w *treeWalker) collectCTEs(node any) {
	switch typed := node.(type) {
	case map[string]any:
		if cteMap, ok := typed["cte_map"].(map[string]any); ok {
			entries, _ := cteMap["map"].([]any)
			for _, entry := range entries {
				if pair, ok := entry.(map[string]any); ok {
					if name, ok := pair["key"].(string); ok {
						w.ctes[strings.ToLower(name)] = struct{}{}
					}
				}
			}
		}
		for _, child := range typed {
			w.collectCTEs(child)
		}
	case []any:
		for _, child := range typed {
			w.collectCTEs(child)
		}
	}
}

func (w *treeWalker) walk(node any) {
	if w.err != nil {
		return
	}
	switch typed := node.(type) {
	case map[string]any:
		switch typed["type"] {
		case "BASE_TABLE":
			w.tables = append(w.tables, tableRef{
				catalog: stringField(typed, "catalog_name"),
				schema:  stringField(typed, "schema_name"),
				name:    stringField(typed, "table_name"),
			})
		case "TABLE_FUNCTION":
			name := "unknown"
			if function, ok := typed["function"].(map[string]any); ok {
				name = firstNonEmpty(stringField(function, "function_name"), name)
			}
			w.err = invalid("table function %s is not allowed", name)
			return
		}
		if name := stringField(typed, "function_name"); name != "" && isForbiddenFunction(name) {
			w.err = invalid("function %s is not allowed", name)
			return
		}
		for _, child := range typed {
			w.walk(child)
		}
	case []any:
		for _, child := range typed {
			w.walk(child)
		}
	}
}

func stringField(node map[string]any, key string) string {
	value, _ := node[key].(string)
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
