package shape

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/tabquery/tabquery/internal/query"
)

func result(columns []string, rows ...[]any) query.Result {
	out := query.Result{Columns: columns, RowCount: int64(len(rows))}
	for _, values := range rows {
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func TestShapeEmptyResultHasNoVisualization(t *testing.T) {
	if v, ok := Shape(result([]string{"region", "sales"})); ok || v != nil {
		t.Fatalf("Shape() = %#v, %v, want none", v, ok)
	}
}

func TestShapeScalar(t *testing.T) {
	v, ok := Shape(result([]string{"total"}, []any{int64(42)}))
	if !ok {
		t.Fatal("expected visualization")
	}
	scalar, isScalar := v.(Scalar)
	if !isScalar || scalar.Label != "total" || scalar.Value != int64(42) {
		t.Fatalf("Shape() = %#v", v)
	}
	if d := v.Descriptor(); d.Kind != KindScalar || d.Chart != ChartCard {
		t.Fatalf("Descriptor() = %#v", d)
	}
}

func TestShapeKeyValueKeepsColumnOrder(t *testing.T) {
	v, _ := Shape(result([]string{"min", "max", "avg"}, []any{1.0, 9.0, nil}))
	kv, ok := v.(KeyValue)
	if !ok {
		t.Fatalf("Shape() = %#v", v)
	}
	want := []Point{{"min", 1.0}, {"max", 9.0}, {"avg", nil}}
	if !reflect.DeepEqual(kv.Points, want) {
		t.Fatalf("Points = %#v", kv.Points)
	}
}

func TestShapeCategorySeries(t *testing.T) {
	v, _ := Shape(result([]string{"region", "sales"}, []any{"East", int64(100)}, []any{"West", int64(200)}))
	series, ok := v.(Series)
	if !ok {
		t.Fatalf("Shape() = %#v", v)
	}
	if series.Chart != ChartBar {
		t.Fatalf("Chart = %q", series.Chart)
	}
	want := []Point{{"East", int64(100)}, {"West", int64(200)}}
	if !reflect.DeepEqual(series.Points, want) {
		t.Fatalf("Points = %#v", series.Points)
	}

	encoded, err := json.Marshal(v.Descriptor())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	const wantJSON = `{"kind":"series","chart":"bar","x_label":"region","y_label":"sales","series":[{"label":"East","value":100},{"label":"West","value":200}]}`
	if string(encoded) != wantJSON {
		t.Fatalf("json = %s", encoded)
	}
}

func TestShapeTimeSeriesPrefersLine(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	v, _ := Shape(result([]string{"day", "orders"}, []any{day, int64(3)}, []any{nil, int64(1)}, []any{day.AddDate(0, 0, 1), int64(5)}))
	series := v.(Series)
	if series.Chart != ChartLine || series.Points[0].Label != "2024-03-01" {
		t.Fatalf("series = %#v", series)
	}

	v, _ = Shape(result([]string{"month", "total"}, []any{"2024-01-01", 1.5}, []any{"2024-02-01", 2.5}))
	if v.(Series).Chart != ChartLine {
		t.Fatalf("date strings should produce a line chart: %#v", v)
	}

	v, _ = Shape(result([]string{"month", "total"}, []any{"2024-01-01", 1.5}, []any{"Feb", 2.5}))
	if v.(Series).Chart != ChartBar {
		t.Fatalf("mixed labels should produce a bar chart: %#v", v)
	}
}

func TestShapeWideOrNarrowRowsAreTables(t *testing.T) {
	for _, r := range []query.Result{
		result([]string{"a", "b", "c"}, []any{1, 2, 3}, []any{4, 5, 6}),
		result([]string{"name"}, []any{"x"}, []any{"y"}),
	} {
		v, ok := Shape(r)
		if !ok {
			t.Fatalf("expected visualization for %v", r.Columns)
		}
		if d := v.Descriptor(); d.Kind != KindTable || d.Chart != "" || len(d.Series) != 0 {
			t.Fatalf("Descriptor() = %#v", d)
		}
	}
}

func TestShapeIsDeterministic(t *testing.T) {
	r := result([]string{"region", "sales"}, []any{"East", 1}, []any{"West", 2}, []any{"North", 3})
	first, _ := Shape(r)
	for i := 0; i < 10; i++ {
		again, _ := Shape(r)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Shape() not deterministic: %#v vs %#v", first, again)
		}
	}
}
