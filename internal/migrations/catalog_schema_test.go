package migrations

import (
	"strings"
	"testing"
)

func TestCatalogMigrationContainsRequiredTablesAndIndexes(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_catalog.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE dataset",
		"CREATE TABLE data_table",
		"CREATE TABLE table_column",
		"REFERENCES dataset (dataset_id) ON DELETE CASCADE",
		"REFERENCES data_table (table_id) ON DELETE CASCADE",
		"CHECK (data_type IN ('integer', 'float', 'text', 'datetime', 'boolean'))",
		"CREATE UNIQUE INDEX idx_data_table_dataset_lower_name",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestQueryHistoryMigrationKeepsRecordsIndependentOfDatasets(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000002_query_history.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	sql := string(body)
	if !strings.Contains(sql, "CREATE TABLE query_record") {
		t.Fatal("missing query_record table")
	}
	if strings.Contains(sql, "REFERENCES dataset") {
		t.Fatal("query_record must not cascade with dataset deletion")
	}
	if !strings.Contains(sql, "CHECK (status IN ('pending', 'translated', 'executed', 'failed'))") {
		t.Fatal("missing status check constraint")
	}
}
