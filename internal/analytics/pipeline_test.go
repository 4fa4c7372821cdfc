package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tabquery/tabquery/internal/catalog"
	catalogmemory "github.com/tabquery/tabquery/internal/catalog/memory"
	"github.com/tabquery/tabquery/internal/history"
	historymemory "github.com/tabquery/tabquery/internal/history/memory"
	"github.com/tabquery/tabquery/internal/ingest"
	"github.com/tabquery/tabquery/internal/nl2sql"
	"github.com/tabquery/tabquery/internal/query"
	"github.com/tabquery/tabquery/internal/query/duckdb"
	"github.com/tabquery/tabquery/internal/shape"
	"github.com/tabquery/tabquery/internal/sheets"
	storagememory "github.com/tabquery/tabquery/internal/storage/memory"
)

type cannedGenerator struct {
	mu      sync.Mutex
	answers []string
	prompts []nl2sql.Prompt
}

func (g *cannedGenerator) Generate(_ context.Context, prompt nl2sql.Prompt) (nl2sql.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	answer := g.answers[0]
	if len(g.answers) > 1 {
		g.answers = g.answers[1:]
	}
	return nl2sql.Completion{Text: answer, Provider: "canned", Model: "canned"}, nil
}

func newPipeline(t *testing.T, generator nl2sql.Generator) *Service {
	t.Helper()
	objects := storagememory.New()
	cat := catalog.New(catalogmemory.New(), time.Minute, nil)
	return NewService(Dependencies{
		Catalog: cat,
		Ingestor: ingest.New(cat, objects, ingest.Options{
			TypeSampleSize:   100,
			TypeThreshold:    0.9,
			MaxColumns:       50,
			MaxRowsPerSheet:  1000,
			SampleValueLimit: 5,
			TmpDir:           t.TempDir(),
		}, nil),
		Translator: nl2sql.NewTranslator(cat, generator, nl2sql.Options{Timeout: time.Second}, nil),
		Executor:   query.NewExecutor(cat, duckdb.NewEngine(objects, t.TempDir()), query.ExecutorOptions{RowCap: 100, Timeout: 10 * time.Second}, nil),
		History:    historymemory.New(),
		Objects:    objects,
	})
}

func salesSheet() []sheets.Sheet {
	return []sheets.Sheet{{
		Name:   "Sales",
		Header: []string{"Region", "Amount", "Sold On"},
		Rows: [][]string{
			{"East", "10", "2024-01-01"},
			{"West", "20", "2024-01-02"},
			{"East", "5", "2024-01-03"},
		},
	}}
}

func TestPipelineIngestAskAndShape(t *testing.T) {
	generator := &cannedGenerator{answers: []string{
		"```sql\nSELECT region, SUM(amount) AS total FROM sales GROUP BY region ORDER BY region\n```",
	}}
	service := newPipeline(t, generator)
	ctx := context.Background()

	dataset, err := service.Ingest(ctx, ingest.Descriptor{Name: "sales.csv", SourceRef: "sales.csv", FileType: catalog.FileTypeCSV}, salesSheet())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	schema, err := service.GetSchema(ctx, dataset.DatasetID)
	if err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}
	table, ok := schema.Table("sales")
	if !ok || table.RowCount != 3 {
		t.Fatalf("schema = %#v", schema)
	}
	if column, _ := table.Column("amount"); column.Type != catalog.TypeInteger {
		t.Fatalf("amount type = %q", column.Type)
	}
	if column, _ := table.Column("sold_on"); column.Type != catalog.TypeDatetime {
		t.Fatalf("sold_on type = %q", column.Type)
	}

	q, err := service.Ask(ctx, dataset.DatasetID, "total sales by region")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.Status != history.StatusExecuted {
		t.Fatalf("Ask() = %#v (error %v)", q, q.ErrorMessage)
	}
	if q.Result.RowCount != 2 || q.Result.Truncated {
		t.Fatalf("Result = %#v", q.Result)
	}
	viz := q.Visualization
	if viz == nil || viz.Kind != shape.KindSeries || viz.Chart != shape.ChartBar {
		t.Fatalf("Visualization = %#v", viz)
	}
	if viz.Series[0].Label != "East" || viz.Series[0].Value != int64(15) || viz.Series[1].Value != int64(20) {
		t.Fatalf("Series = %#v", viz.Series)
	}
}

func TestPipelineRejectedSQLFailsAfterRetry(t *testing.T) {
	generator := &cannedGenerator{answers: []string{"DROP TABLE sales"}}
	service := newPipeline(t, generator)
	ctx := context.Background()

	dataset, err := service.Ingest(ctx, ingest.Descriptor{Name: "sales.csv", FileType: catalog.FileTypeCSV}, salesSheet())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	q, err := service.Ask(ctx, dataset.DatasetID, "remove the sales table")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.Status != history.StatusFailed || *q.ErrorKind != string(KindTranslation) || q.GeneratedSQL != nil {
		t.Fatalf("Ask() = %#v", q)
	}
	if len(generator.prompts) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(generator.prompts))
	}
}

func TestPipelineReingestCreatesIndependentDataset(t *testing.T) {
	service := newPipeline(t, &cannedGenerator{answers: []string{"SELECT 1"}})
	ctx := context.Background()

	first, err := service.Ingest(ctx, ingest.Descriptor{Name: "sales.csv", FileType: catalog.FileTypeCSV}, salesSheet())
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	second, err := service.Ingest(ctx, ingest.Descriptor{Name: "sales.csv", FileType: catalog.FileTypeCSV}, salesSheet())
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if first.DatasetID == second.DatasetID {
		t.Fatalf("datasets share id %s", first.DatasetID)
	}

	a, err := service.GetSchema(ctx, first.DatasetID)
	if err != nil {
		t.Fatalf("GetSchema(first) error = %v", err)
	}
	b, err := service.GetSchema(ctx, second.DatasetID)
	if err != nil {
		t.Fatalf("GetSchema(second) error = %v", err)
	}
	if a.Tables[0].TableID == b.Tables[0].TableID || a.Tables[0].ObjectPath == b.Tables[0].ObjectPath {
		t.Fatalf("tables alias: %s / %s", a.Tables[0].TableID, b.Tables[0].TableID)
	}
	if a.Tables[0].Columns[0].ColumnID == b.Tables[0].Columns[0].ColumnID {
		t.Fatal("columns alias across datasets")
	}

	if err := service.DeleteDataset(ctx, first.DatasetID); err != nil {
		t.Fatalf("DeleteDataset() error = %v", err)
	}
	if _, err := service.GetSchema(ctx, second.DatasetID); err != nil {
		t.Fatalf("second dataset affected by delete: %v", err)
	}
}
