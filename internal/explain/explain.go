// Package explain summarizes a query result column by column so an answer can
// be read without scanning every row.
package explain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tabquery/tabquery/internal/infer"
	"github.com/tabquery/tabquery/internal/query"
)

type Kind string

const (
	KindNumeric  Kind = "numeric"
	KindDatetime Kind = "datetime"
	KindBoolean  Kind = "boolean"
	KindText     Kind = "text"
	KindEmpty    Kind = "empty"
)

// topValueLimit caps ColumnStats.TopValues.
const topValueLimit = 3

// Summary describes the rows a result returned. Statistics cover the
// returned rows only, so a truncated result is summarized partially.
type Summary struct {
	Rows      int           `json:"rows"`
	Truncated bool          `json:"truncated,omitempty"`
	Columns   []ColumnStats `json:"columns"`
	Narrative string        `json:"narrative,omitempty"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnStats holds the figures that apply to the column's Kind; the rest
// stay empty.
type ColumnStats struct {
	Name         string       `json:"name"`
	Kind         Kind         `json:"kind"`
	Count        int          `json:"count"`
	Completeness float64      `json:"completeness_pct"`
	Min          *float64     `json:"min,omitempty"`
	Max          *float64     `json:"max,omitempty"`
	Mean         *float64     `json:"mean,omitempty"`
	Median       *float64     `json:"median,omitempty"`
	StdDev       *float64     `json:"stddev,omitempty"`
	Earliest     *time.Time   `json:"earliest,omitempty"`
	Latest       *time.Time   `json:"latest,omitempty"`
	Distinct     int          `json:"distinct,omitempty"`
	TopValues    []ValueCount `json:"top_values,omitempty"`
}

// Summarize returns nil for a result without rows.
func Summarize(result query.Result) *Summary {
	if len(result.Rows) == 0 {
		return nil
	}
	summary := &Summary{
		Rows:      len(result.Rows),
		Truncated: result.Truncated,
		Columns:   make([]ColumnStats, 0, len(result.Columns)),
	}
	for _, column := range result.Columns {
		values := make([]any, 0, len(result.Rows))
		for _, row := range result.Rows {
			if value := row[column]; value != nil {
				values = append(values, value)
			}
		}
		summary.Columns = append(summary.Columns, describe(column, values, len(result.Rows)))
	}
	return summary
}

func describe(name string, values []any, rows int) ColumnStats {
	stats := ColumnStats{
		Name:         name,
		Count:        len(values),
		Completeness: round(float64(len(values))*100/float64(rows), 1),
	}
	if len(values) == 0 {
		stats.Kind = KindEmpty
		return stats
	}
	if numbers, ok := asNumbers(values); ok {
		stats.Kind = KindNumeric
		numericStats(&stats, numbers)
		return stats
	}
	if times, ok := asTimes(values); ok {
		stats.Kind = KindDatetime
		earliest, latest := times[0], times[0]
		for _, t := range times[1:] {
			if t.Before(earliest) {
				earliest = t
			}
			if t.After(latest) {
				latest = t
			}
		}
		stats.Earliest, stats.Latest = &earliest, &latest
		return stats
	}
	stats.Kind = KindText
	if allBool(values) {
		stats.Kind = KindBoolean
	}
	stats.Distinct, stats.TopValues = frequencies(values)
	return stats
}

func numericStats(stats *ColumnStats, numbers []float64) {
	sorted := append([]float64(nil), numbers...)
	sort.Float64s(sorted)

	var sum float64
	for _, n := range sorted {
		sum += n
	}
	mean := sum / float64(len(sorted))

	var median float64
	if mid := len(sorted) / 2; len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	stats.Min = ptr(round(sorted[0], 2))
	stats.Max = ptr(round(sorted[len(sorted)-1], 2))
	stats.Mean = ptr(round(mean, 2))
	stats.Median = ptr(round(median, 2))
	if len(sorted) > 1 {
		var squares float64
		for _, n := range sorted {
			squares += (n - mean) * (n - mean)
		}
		stats.StdDev = ptr(round(math.Sqrt(squares/float64(len(sorted)-1)), 2))
	}
}

func asNumbers(values []any) ([]float64, bool) {
	out := make([]float64, 0, len(values))
	for _, value := range values {
		var n float64
		switch v := value.(type) {
		case int:
			n = float64(v)
		case int8:
			n = float64(v)
		case int16:
			n = float64(v)
		case int32:
			n = float64(v)
		case int64:
			n = float64(v)
		case uint8:
			n = float64(v)
		case uint16:
			n = float64(v)
		case uint32:
			n = float64(v)
		case uint64:
			n = float64(v)
		case float32:
			n = float64(v)
		case float64:
			n = v
		default:
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func asTimes(values []any) ([]time.Time, bool) {
	out := make([]time.Time, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case time.Time:
			out = append(out, v)
		case string:
			parsed, ok := infer.ParseTime(v)
			if !ok {
				return nil, false
			}
			out = append(out, parsed)
		default:
			return nil, false
		}
	}
	return out, true
}

func allBool(values []any) bool {
	for _, value := range values {
		if _, ok := value.(bool); !ok {
			return false
		}
	}
	return true
}

func frequencies(values []any) (int, []ValueCount) {
	counts := make(map[string]int)
	for _, value := range values {
		counts[fmt.Sprint(value)]++
	}
	top := make([]ValueCount, 0, len(counts))
	for value, count := range counts {
		top = append(top, ValueCount{Value: value, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})
	if len(top) > topValueLimit {
		top = top[:topValueLimit]
	}
	return len(counts), top
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func ptr(value float64) *float64 { return &value }
