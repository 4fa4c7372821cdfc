// Package shape picks a visualization for a query result from its shape.
package shape

import (
	"fmt"
	"time"

	"github.com/tabquery/tabquery/internal/infer"
	"github.com/tabquery/tabquery/internal/query"
)

type Kind string

const (
	KindScalar   Kind = "scalar"
	KindKeyValue Kind = "key_value"
	KindSeries   Kind = "series"
	KindTable    Kind = "table"
)

type Chart string

const (
	ChartCard Chart = "card"
	ChartBar  Chart = "bar"
	ChartLine Chart = "line"
)

type Point struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Descriptor is the wire form of a Visualization.
type Descriptor struct {
	Kind    Kind     `json:"kind"`
	Chart   Chart    `json:"chart,omitempty"`
	XLabel  string   `json:"x_label,omitempty"`
	YLabel  string   `json:"y_label,omitempty"`
	Series  []Point  `json:"series,omitempty"`
	Columns []string `json:"columns,omitempty"`
}

// Visualization is one of Scalar, KeyValue, Series or TableOnly.
type Visualization interface {
	Descriptor() Descriptor
}

// Scalar is a single value shown as a card.
type Scalar struct {
	Label string
	Value any
}

func (s Scalar) Descriptor() Descriptor {
	return Descriptor{Kind: KindScalar, Chart: ChartCard, Series: []Point{{Label: s.Label, Value: s.Value}}}
}

// KeyValue is one row spread across its columns, shown as bars.
type KeyValue struct {
	Points []Point
}

func (k KeyValue) Descriptor() Descriptor {
	return Descriptor{Kind: KindKeyValue, Chart: ChartBar, Series: k.Points}
}

// Series is a category or time axis against a value.
type Series struct {
	Chart  Chart
	XLabel string
	YLabel string
	Points []Point
}

func (s Series) Descriptor() Descriptor {
	return Descriptor{Kind: KindSeries, Chart: s.Chart, XLabel: s.XLabel, YLabel: s.YLabel, Series: s.Points}
}

// TableOnly means the rows are best read as a table.
type TableOnly struct {
	Columns []string
}

func (t TableOnly) Descriptor() Descriptor {
	return Descriptor{Kind: KindTable, Columns: t.Columns}
}

// Shape classifies result. It reports false for results without rows; no
// visualization is produced for them.
func Shape(result query.Result) (Visualization, bool) {
	rows := result.Rows
	columns := result.Columns
	if len(rows) == 0 || len(columns) == 0 {
		return nil, false
	}

	if len(rows) == 1 {
		row := rows[0]
		if len(columns) == 1 {
			return Scalar{Label: columns[0], Value: row[columns[0]]}, true
		}
		points := make([]Point, len(columns))
		for i, column := range columns {
			points[i] = Point{Label: column, Value: row[column]}
		}
		return KeyValue{Points: points}, true
	}

	if len(columns) != 2 {
		return TableOnly{Columns: append([]string(nil), columns...)}, true
	}

	category, value := columns[0], columns[1]
	chart := ChartBar
	if isTimeAxis(rows, category) {
		chart = ChartLine
	}
	points := make([]Point, len(rows))
	for i, row := range rows {
		points[i] = Point{Label: label(row[category]), Value: row[value]}
	}
	return Series{Chart: chart, XLabel: category, YLabel: value, Points: points}, true
}

func isTimeAxis(rows []map[string]any, column string) bool {
	seen := false
	for _, row := range rows {
		switch v := row[column].(type) {
		case nil:
			continue
		case time.Time:
			seen = true
		case string:
			if _, ok := infer.ParseTime(v); !ok {
				return false
			}
			seen = true
		default:
			return false
		}
	}
	return seen
}

func label(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
