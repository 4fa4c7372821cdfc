// Package sqlguard checks generated SQL before it reaches the engine. Only a
// single read-only SELECT over the dataset's own tables is accepted.
package sqlguard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tabquery/tabquery/internal/catalog"
)

var ErrInvalid = errors.New("sqlguard: invalid query")

// ValidationError carries a reason that is safe to show to users and to feed
// back to the model on retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid query: " + e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Statement is a validated query.
type Statement struct {
	// SQL has comments and trailing semicolons removed.
	SQL string
	// Tables are the catalog tables the query reads, in first-reference order.
	Tables []string
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate accepts sql only when it is a single SELECT (optionally with CTEs)
// whose table and column references all resolve against schema.
func Validate(sql string, schema catalog.Schema) (Statement, error) {
	tokens, comments, err := lex(sql)
	if err != nil {
		return Statement{}, invalid("%s", err)
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].isPunct(";") {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return Statement{}, invalid("query is empty")
	}
	for _, tok := range tokens {
		if tok.isPunct(";") {
			return Statement{}, invalid("only a single statement is allowed")
		}
	}

	first := 0
	for first < len(tokens) && tokens[first].isPunct("(") {
		first++
	}
	if first == len(tokens) || !(tokens[first].is(tokIdent, "SELECT") || tokens[first].is(tokIdent, "WITH")) {
		return Statement{}, invalid("only SELECT queries are allowed")
	}

	for i, tok := range tokens {
		if !tok.isName() {
			continue
		}
		if _, bad := forbiddenKeywords[tok.upper]; bad && tok.kind == tokIdent {
			return Statement{}, invalid("%s is not allowed; only read-only SELECT queries are accepted", tok.upper)
		}
		if i+1 < len(tokens) && tokens[i+1].isPunct("(") && isForbiddenFunction(tok.text) {
			return Statement{}, invalid("function %s is not allowed", tok.name())
		}
	}

	a := newAnalyzer(tokens, schema)
	if err := a.collect(); err != nil {
		return Statement{}, err
	}
	if err := a.check(); err != nil {
		return Statement{}, err
	}

	normalized := strings.TrimSpace(stripComments(sql, comments))
	for strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	}
	if err := checkTree(normalized, schema); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: normalized, Tables: a.referenced}, nil
}

type analyzer struct {
	tokens []token
	schema catalog.Schema

	columns      map[string]struct{}
	ctes         map[string]struct{}
	tableAliases map[string]struct{}
	aliases      map[string]struct{}
	decl         map[int]struct{}
	inFunc       []bool

	referenced []string
	seen       map[string]struct{}
}

func newAnalyzer(tokens []token, schema catalog.Schema) *analyzer {
	a := &analyzer{
		tokens:       tokens,
		schema:       schema,
		columns:      make(map[string]struct{}),
		ctes:         make(map[string]struct{}),
		tableAliases: make(map[string]struct{}),
		aliases:      make(map[string]struct{}),
		decl:         make(map[int]struct{}),
		inFunc:       make([]bool, len(tokens)),
		seen:         make(map[string]struct{}),
	}
	for _, table := range schema.Tables {
		for _, column := range table.Columns {
			a.columns[strings.ToLower(column.Name)] = struct{}{}
		}
	}

	var stack []bool
	for i, tok := range tokens {
		switch {
		case tok.isPunct("("):
			stack = append(stack, a.opensFunction(i))
		case tok.isPunct(")") && len(stack) > 0:
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			a.inFunc[i] = stack[len(stack)-1]
		}
	}
	return a
}

// opensFunction reports whether the parenthesis at i holds call arguments.
// A parenthesis that starts a query is a subquery whatever precedes it.
func (a *analyzer) opensFunction(i int) bool {
	if i == 0 || a.startsQuery(i+1) {
		return false
	}
	prev := a.tokens[i-1]
	if prev.kind == tokQuotedIdent {
		return true
	}
	if prev.kind != tokIdent {
		return false
	}
	if _, ok := functionKeywords[prev.upper]; ok {
		return true
	}
	return !isKeywordToken(prev)
}

func (a *analyzer) startsQuery(i int) bool {
	tok, ok := a.at(i)
	if !ok || tok.kind != tokIdent {
		return false
	}
	_, starts := queryStarters[tok.upper]
	return starts
}

func (a *analyzer) at(i int) (token, bool) {
	if i < 0 || i >= len(a.tokens) {
		return token{}, false
	}
	return a.tokens[i], true
}

func (a *analyzer) peekPunct(i int, text string) bool {
	tok, ok := a.at(i)
	return ok && tok.isPunct(text)
}

func isKeywordToken(tok token) bool {
	if tok.kind != tokIdent {
		return false
	}
	_, ok := keywords[tok.upper]
	return ok
}

// collect records every name the query declares: CTEs and their columns,
// table aliases, select-list aliases and lambda parameters. Table references
// are resolved here.
func (a *analyzer) collect() error {
	for i := 0; i < len(a.tokens); i++ {
		tok := a.tokens[i]
		if _, declared := a.decl[i]; declared {
			continue
		}
		switch {
		case tok.is(tokIdent, "WITH"):
			a.collectCTEs(i + 1)
		case tok.is(tokIdent, "FROM") && !a.inFunc[i]:
			if err := a.collectFromList(i + 1); err != nil {
				return err
			}
		case tok.is(tokIdent, "JOIN"):
			if _, err := a.collectTableRef(i + 1); err != nil {
				return err
			}
		case tok.is(tokIdent, "AS"):
			next, ok := a.at(i + 1)
			if _, declared := a.decl[i+1]; ok && !declared && next.isName() && !isKeywordToken(next) {
				a.aliases[next.name()] = struct{}{}
				a.decl[i+1] = struct{}{}
			}
		case tok.isName() && a.peekPunct(i+1, "->"):
			a.aliases[tok.name()] = struct{}{}
			a.decl[i] = struct{}{}
		case tok.isName() && !isKeywordToken(tok) && a.isImplicitAlias(i):
			a.aliases[tok.name()] = struct{}{}
			a.decl[i] = struct{}{}
		}
	}
	return nil
}

func (a *analyzer) collectCTEs(j int) {
	if tok, ok := a.at(j); ok && tok.is(tokIdent, "RECURSIVE") {
		j++
	}
	for {
		name, ok := a.at(j)
		if !ok || !name.isName() {
			return
		}
		a.ctes[name.name()] = struct{}{}
		a.decl[j] = struct{}{}
		j++
		if a.peekPunct(j, "(") {
			j = a.collectColumnList(j)
		}
		if tok, ok := a.at(j); !ok || !tok.is(tokIdent, "AS") {
			return
		}
		j++
		for {
			tok, ok := a.at(j)
			if !ok || !(tok.is(tokIdent, "NOT") || tok.is(tokIdent, "MATERIALIZED")) {
				break
			}
			j++
		}
		if !a.peekPunct(j, "(") {
			return
		}
		j = a.matchParen(j) + 1
		if !a.peekPunct(j, ",") {
			return
		}
		j++
	}
}

// collectColumnList declares the names inside the parenthesis at j and
// returns the index after the closing parenthesis.
func (a *analyzer) collectColumnList(j int) int {
	end := a.matchParen(j)
	for k := j + 1; k < end; k++ {
		if tok := a.tokens[k]; tok.isName() {
			a.aliases[tok.name()] = struct{}{}
			a.decl[k] = struct{}{}
		}
	}
	return end + 1
}

func (a *analyzer) matchParen(j int) int {
	depth := 0
	for k := j; k < len(a.tokens); k++ {
		switch {
		case a.tokens[k].isPunct("("):
			depth++
		case a.tokens[k].isPunct(")"):
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return len(a.tokens) - 1
}

func (a *analyzer) collectFromList(j int) error {
	for {
		next, err := a.collectTableRef(j)
		if err != nil {
			return err
		}
		if !a.peekPunct(next, ",") {
			return nil
		}
		j = next + 1
	}
}

// collectTableRef resolves the table reference starting at j and its alias,
// returning the index after them.
func (a *analyzer) collectTableRef(j int) (int, error) {
	tok, ok := a.at(j)
	if !ok {
		return j, invalid("missing table name after FROM or JOIN")
	}
	if tok.is(tokIdent, "LATERAL") {
		return a.collectTableRef(j + 1)
	}
	if tok.isPunct("(") {
		return a.collectAlias(a.matchParen(j) + 1), nil
	}
	if tok.kind == tokString {
		return j, invalid("reading files is not allowed; query the dataset tables instead")
	}
	if tok.isName() && a.peekPunct(j+1, "(") {
		return j, invalid("table function %s is not allowed", tok.name())
	}
	if !tok.isName() || isKeywordToken(tok) {
		return j, invalid("expected a table name after FROM or JOIN, got %q", tok.text)
	}
	if a.peekPunct(j+1, ".") {
		member, _ := a.at(j + 2)
		return j, invalid("qualified table name %s.%s is not allowed; available tables: %s",
			tok.name(), member.name(), strings.Join(a.schema.TableNames(), ", "))
	}

	name := tok.name()
	if _, isCTE := a.ctes[name]; !isCTE {
		table, found := a.schema.Table(name)
		if !found {
			return j, invalid("unknown table %q; available tables: %s", name, strings.Join(a.schema.TableNames(), ", "))
		}
		if _, dup := a.seen[table.Name]; !dup {
			a.seen[table.Name] = struct{}{}
			a.referenced = append(a.referenced, table.Name)
		}
	}
	a.decl[j] = struct{}{}
	return a.collectAlias(j + 1), nil
}

// collectAlias declares an optional relation alias and column list at j.
func (a *analyzer) collectAlias(j int) int {
	if tok, ok := a.at(j); ok && tok.is(tokIdent, "AS") {
		j++
	}
	alias, ok := a.at(j)
	if !ok || !alias.isName() || isKeywordToken(alias) {
		return j
	}
	a.tableAliases[alias.name()] = struct{}{}
	a.decl[j] = struct{}{}
	j++
	if a.peekPunct(j, "(") {
		j = a.collectColumnList(j)
	}
	return j
}

// isImplicitAlias reports whether the name at i follows a complete
// expression and is followed by the end of a select item.
func (a *analyzer) isImplicitAlias(i int) bool {
	prev, ok := a.at(i - 1)
	if !ok {
		return false
	}
	switch prev.kind {
	case tokNumber, tokString, tokQuotedIdent:
	case tokPunct:
		if prev.text != ")" {
			return false
		}
	case tokIdent:
		if isKeywordToken(prev) {
			if _, ends := expressionEnders[prev.upper]; !ends {
				return false
			}
		}
		if before, ok := a.at(i - 2); ok && before.isPunct("::") {
			return false
		}
	}
	next, ok := a.at(i + 1)
	if !ok {
		return true
	}
	return next.isPunct(",") || next.isPunct(")") || isKeywordToken(next)
}

// check verifies that every remaining name is a known column, alias, table
// or CTE.
func (a *analyzer) check() error {
	for i, tok := range a.tokens {
		if !tok.isName() || isKeywordToken(tok) {
			continue
		}
		if _, declared := a.decl[i]; declared {
			continue
		}
		if a.peekPunct(i+1, "(") || a.peekPunct(i-1, "::") {
			continue
		}
		name := tok.name()
		if a.peekPunct(i+1, ".") {
			if !a.isRelation(name) {
				return invalid("unknown table or alias %q; available tables: %s", name, strings.Join(a.schema.TableNames(), ", "))
			}
			continue
		}
		if a.isColumn(name) {
			continue
		}
		if !a.peekPunct(i-1, ".") && a.isRelation(name) {
			continue
		}
		return invalid("unknown column %q; available columns: %s", name, a.columnList())
	}
	return nil
}

func (a *analyzer) isRelation(name string) bool {
	if _, ok := a.schema.Table(name); ok {
		return true
	}
	if _, ok := a.ctes[name]; ok {
		return true
	}
	_, ok := a.tableAliases[name]
	return ok
}

func (a *analyzer) isColumn(name string) bool {
	if _, ok := a.columns[strings.ToLower(name)]; ok {
		return true
	}
	_, ok := a.aliases[name]
	return ok
}

func (a *analyzer) columnList() string {
	const maxListed = 40
	names := make([]string, 0, len(a.columns))
	for name := range a.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > maxListed {
		names = append(names[:maxListed], "...")
	}
	return strings.Join(names, ", ")
}
