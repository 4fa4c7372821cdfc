package nl2sql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tabquery/tabquery/internal/catalog"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

type tableContext struct {
	Table    string          `json:"table"`
	RowCount int64           `json:"row_count"`
	Columns  []columnContext `json:"columns"`
}

type columnContext struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	SampleValues []string `json:"sample_values,omitempty"`

	position int
}

type rankedTable struct {
	context tableContext
	score   int
	columns []columnContext
}

// renderSchemaContext encodes the dataset schema as JSON. When the full
// encoding exceeds maxBytes, tables and columns most related to the question
// are kept first; at least one table with one column is always included.
func renderSchemaContext(schema catalog.Schema, question string, maxBytes int) (string, error) {
	full := make([]tableContext, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		full = append(full, toTableContext(table))
	}
	encoded, err := json.Marshal(full)
	if err != nil {
		return "", fmt.Errorf("marshal schema context: %w", err)
	}
	if maxBytes <= 0 || len(encoded) <= maxBytes || len(full) == 0 {
		return string(encoded), nil
	}

	terms := words(question)
	ranked := make([]rankedTable, 0, len(full))
	for _, table := range full {
		r := rankedTable{context: table, score: 3 * overlap(terms, table.Table)}
		scores := make(map[string]int, len(table.Columns))
		for _, column := range table.Columns {
			s := overlap(terms, column.Name)
			scores[column.Name] = s
			r.score += s
		}
		r.columns = append([]columnContext(nil), table.Columns...)
		sort.SliceStable(r.columns, func(i, j int) bool {
			return scores[r.columns[i].Name] > scores[r.columns[j].Name]
		})
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	selected := make([]tableContext, 0, len(ranked))
	for _, r := range ranked {
		candidate := r.context
		candidate.Columns = nil
		complete := true
		for _, column := range r.columns {
			candidate.Columns = append(candidate.Columns, column)
			if size(append(selected, candidate)) > maxBytes {
				candidate.Columns = candidate.Columns[:len(candidate.Columns)-1]
				complete = false
				break
			}
		}
		if len(candidate.Columns) == 0 {
			if len(selected) > 0 || len(r.columns) == 0 {
				break
			}
			first := r.columns[0]
			first.SampleValues = nil
			candidate.Columns = []columnContext{first}
		}
		sort.SliceStable(candidate.Columns, func(i, j int) bool {
			return candidate.Columns[i].position < candidate.Columns[j].position
		})
		selected = append(selected, candidate)
		if !complete {
			break
		}
	}

	encoded, err = json.Marshal(selected)
	if err != nil {
		return "", fmt.Errorf("marshal schema context: %w", err)
	}
	return string(encoded), nil
}

func toTableContext(table catalog.Table) tableContext {
	out := tableContext{Table: table.Name, RowCount: table.RowCount, Columns: make([]columnContext, 0, len(table.Columns))}
	for _, column := range table.Columns {
		out.Columns = append(out.Columns, columnContext{
			Name:         column.Name,
			Type:         string(column.Type),
			SampleValues: column.SampleValues,
			position:     column.Position,
		})
	}
	return out
}

func size(tables []tableContext) int {
	encoded, err := json.Marshal(tables)
	if err != nil {
		return 0
	}
	return len(encoded)
}

func words(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		out[word] = struct{}{}
	}
	return out
}

// overlap counts the words of name (split on underscores and other
// separators) that appear in terms.
func overlap(terms map[string]struct{}, name string) int {
	count := 0
	for word := range words(name) {
		if _, ok := terms[word]; ok {
			count++
		}
	}
	return count
}

// valueHint is a sample value of a text column that the question mentions.
type valueHint struct {
	Table  string
	Column string
	Value  string
}

// findValueHints matches sampled text values against the words and phrases of
// the question, case-insensitively.
func findValueHints(schema catalog.Schema, question string) []valueHint {
	lowered := " " + strings.Join(wordPattern.FindAllString(strings.ToLower(question), -1), " ") + " "
	var hints []valueHint
	for _, table := range schema.Tables {
		for _, column := range table.Columns {
			for _, value := range column.SampleValues {
				normalized := strings.Join(wordPattern.FindAllString(strings.ToLower(value), -1), " ")
				if normalized == "" {
					continue
				}
				if strings.Contains(lowered, " "+normalized+" ") {
					hints = append(hints, valueHint{Table: table.Name, Column: column.Name, Value: value})
				}
			}
		}
	}
	return hints
}
