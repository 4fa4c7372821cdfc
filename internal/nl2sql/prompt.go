package nl2sql

import (
	"fmt"
	"strings"
)

const systemPrompt = "You convert natural language analytics questions into a single DuckDB SQL query. " +
	"DuckDB uses PostgreSQL-like SQL syntax. " +
	"Only read data: the query must be one SELECT statement, optionally with WITH clauses. " +
	"Return ONLY SQL. No markdown, no explanation."

// rejection is a previous attempt that failed validation.
type rejection struct {
	SQL    string
	Reason string
}

func buildPrompt(schemaContext, question string, hints []valueHint, previous *rejection) Prompt {
	var b strings.Builder
	b.WriteString("Schema (JSON, tables with typed columns and sample values):\n")
	b.WriteString(schemaContext)
	b.WriteString("\n\n")

	if len(hints) > 0 {
		b.WriteString("Values mentioned in the question (match them exactly):\n")
		for _, hint := range hints {
			fmt.Fprintf(&b, "- %s.%s = '%s'\n", hint.Table, hint.Column, strings.ReplaceAll(hint.Value, "'", "''"))
		}
		b.WriteString("\n")
	}

	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use only the listed tables and columns, by their exact names.\n")
	b.WriteString("- Do not qualify table names with a schema or catalog.\n")
	b.WriteString("- Do not read files or call table functions.\n")
	b.WriteString("- Double-quote identifiers that are SQL keywords.\n")
	b.WriteString("- Give computed columns short snake_case aliases.\n")
	b.WriteString("- Output a single SQL query only.\n")

	if previous != nil {
		b.WriteString("\nYour previous answer was rejected.\nRejected SQL:\n")
		b.WriteString(previous.SQL)
		b.WriteString("\nReason: ")
		b.WriteString(previous.Reason)
		b.WriteString("\nReturn a corrected query.\n")
	}
	return Prompt{System: systemPrompt, User: b.String()}
}
