package ingest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/tabquery/tabquery/internal/infer"
)

const stagingTable = "staging"

// writeParquet loads the table into a private in-memory DuckDB with its
// inferred column types and copies it out to a Parquet file at path.
func writeParquet(ctx context.Context, path string, table preparedTable) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	definitions := make([]string, len(table.columns))
	for i, column := range table.columns {
		definitions[i] = quoteIdent(column.Name) + " " + column.Type.DuckDBType()
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", stagingTable, strings.Join(definitions, ", "))
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected duckdb connection type %T", raw)
		}
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", stagingTable)
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}
		values := make([]driver.Value, len(table.columns))
		for r, row := range table.rows {
			if r%4096 == 0 {
				if err := ctx.Err(); err != nil {
					_ = appender.Close()
					return err
				}
			}
			for c, column := range table.columns {
				values[c] = infer.Convert(row[c], column.Type)
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append row %d: %w", r+1, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	copySQL := fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)", stagingTable, quoteString(path))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}

// verifyParquet checks that the file at path holds the expected row count and
// column names.
func verifyParquet(path string, table preparedTable) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open parquet file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("read parquet footer: %w", err)
	}
	if got, want := pf.NumRows(), int64(len(table.rows)); got != want {
		return 0, fmt.Errorf("parquet file has %d rows, expected %d", got, want)
	}
	fields := pf.Schema().Fields()
	if len(fields) != len(table.columns) {
		return 0, fmt.Errorf("parquet file has %d columns, expected %d", len(fields), len(table.columns))
	}
	for i, field := range fields {
		if field.Name() != table.columns[i].Name {
			return 0, fmt.Errorf("parquet column %d is %q, expected %q", i, field.Name(), table.columns[i].Name)
		}
	}
	return info.Size(), nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
