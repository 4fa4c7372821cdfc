package explain

import (
	"reflect"
	"testing"
	"time"

	"github.com/tabquery/tabquery/internal/query"
)

func TestSummarizeReturnsNilWithoutRows(t *testing.T) {
	if got := Summarize(query.Result{Columns: []string{"total"}}); got != nil {
		t.Fatalf("Summarize() = %#v, want nil", got)
	}
}

func TestSummarizeNumericColumn(t *testing.T) {
	result := query.Result{
		Columns: []string{"amount"},
		Rows: []map[string]any{
			{"amount": int64(10)},
			{"amount": 2.5},
			{"amount": int32(4)},
			{"amount": nil},
		},
		RowCount: 4,
	}
	summary := Summarize(result)
	if summary == nil || summary.Rows != 4 || len(summary.Columns) != 1 {
		t.Fatalf("summary = %#v", summary)
	}
	amount := summary.Columns[0]
	if amount.Kind != KindNumeric || amount.Count != 3 || amount.Completeness != 75 {
		t.Fatalf("amount = %#v", amount)
	}
	checks := map[string]struct {
		got  *float64
		want float64
	}{
		"min":    {amount.Min, 2.5},
		"max":    {amount.Max, 10},
		"mean":   {amount.Mean, 5.5},
		"median": {amount.Median, 4},
		"stddev": {amount.StdDev, 3.97},
	}
	for name, check := range checks {
		if check.got == nil || *check.got != check.want {
			t.Fatalf("%s = %v, want %v", name, check.got, check.want)
		}
	}
	if amount.TopValues != nil || amount.Earliest != nil {
		t.Fatalf("numeric column carries other figures: %#v", amount)
	}
}

func TestSummarizeSingleValueHasNoStdDev(t *testing.T) {
	summary := Summarize(query.Result{Columns: []string{"total"}, Rows: []map[string]any{{"total": int64(42)}}, RowCount: 1})
	total := summary.Columns[0]
	if total.StdDev != nil || *total.Median != 42 || *total.Mean != 42 {
		t.Fatalf("total = %#v", total)
	}
}

func TestSummarizeTextAndBooleanColumns(t *testing.T) {
	result := query.Result{
		Columns: []string{"region", "paid"},
		Rows: []map[string]any{
			{"region": "East", "paid": true},
			{"region": "West", "paid": false},
			{"region": "East", "paid": true},
			{"region": "North", "paid": nil},
			{"region": "South", "paid": true},
			{"region": "West", "paid": true},
		},
		RowCount: 6,
	}
	summary := Summarize(result)
	region, paid := summary.Columns[0], summary.Columns[1]
	if region.Kind != KindText || region.Distinct != 4 {
		t.Fatalf("region = %#v", region)
	}
	want := []ValueCount{{"East", 2}, {"West", 2}, {"North", 1}}
	if !reflect.DeepEqual(region.TopValues, want) {
		t.Fatalf("TopValues = %#v, want %#v", region.TopValues, want)
	}
	if paid.Kind != KindBoolean || paid.Count != 5 || paid.Completeness != 83.3 {
		t.Fatalf("paid = %#v", paid)
	}
	if !reflect.DeepEqual(paid.TopValues, []ValueCount{{"true", 4}, {"false", 1}}) {
		t.Fatalf("paid TopValues = %#v", paid.TopValues)
	}
}

func TestSummarizeDatetimeColumn(t *testing.T) {
	first := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	result := query.Result{
		Columns: []string{"day", "label"},
		Rows: []map[string]any{
			{"day": last, "label": "2024-02-01"},
			{"day": first, "label": "2024-01-15"},
		},
		RowCount:  10,
		Truncated: true,
	}
	summary := Summarize(result)
	if !summary.Truncated || summary.Rows != 2 {
		t.Fatalf("summary = %#v", summary)
	}
	day, label := summary.Columns[0], summary.Columns[1]
	if day.Kind != KindDatetime || !day.Earliest.Equal(first) || !day.Latest.Equal(last) {
		t.Fatalf("day = %#v", day)
	}
	if label.Kind != KindDatetime || label.Earliest.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("label = %#v", label)
	}
}

func TestSummarizeMixedAndEmptyColumns(t *testing.T) {
	result := query.Result{
		Columns: []string{"code", "note"},
		Rows: []map[string]any{
			{"code": int64(1), "note": nil},
			{"code": "A-2", "note": nil},
		},
		RowCount: 2,
	}
	summary := Summarize(result)
	code, note := summary.Columns[0], summary.Columns[1]
	if code.Kind != KindText || code.Distinct != 2 || code.Mean != nil {
		t.Fatalf("code = %#v", code)
	}
	if note.Kind != KindEmpty || note.Count != 0 || note.Completeness != 0 {
		t.Fatalf("note = %#v", note)
	}
}
