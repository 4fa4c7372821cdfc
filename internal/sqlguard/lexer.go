package sqlguard

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string
	upper string
	pos   int
}

func (t token) is(kind tokenKind, text string) bool {
	if t.kind != kind {
		return false
	}
	if kind == tokIdent {
		return t.upper == text
	}
	return t.text == text
}

func (t token) isPunct(text string) bool { return t.kind == tokPunct && t.text == text }

// name is the identifier as the engine resolves it.
func (t token) name() string {
	if t.kind == tokQuotedIdent {
		return t.text
	}
	return strings.ToLower(t.text)
}

func (t token) isName() bool { return t.kind == tokIdent || t.kind == tokQuotedIdent }

type span struct{ start, end int }

// lex splits a statement into tokens and reports the byte spans of comments.
func lex(src string) ([]token, []span, error) {
	tokens := make([]token, 0, len(src)/4)
	var comments []span
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			start := i
			for i < len(src) && src[i] != '\n' {
				i++
			}
			comments = append(comments, span{start, i})
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			start := i
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, nil, fmt.Errorf("unterminated block comment")
			}
			i += end + 4
			comments = append(comments, span{start, i})
		case c == '\'':
			start := i
			text, next, err := readQuoted(src, i, '\'')
			if err != nil {
				return nil, nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: start})
			i = next
		case c == '"':
			start := i
			text, next, err := readQuoted(src, i, '"')
			if err != nil {
				return nil, nil, fmt.Errorf("unterminated quoted identifier")
			}
			tokens = append(tokens, token{kind: tokQuotedIdent, text: text, pos: start})
			i = next
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			i = readNumber(src, i)
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			text := src[start:i]
			tokens = append(tokens, token{kind: tokIdent, text: text, upper: strings.ToUpper(text), pos: start})
		default:
			start := i
			width := 1
			if i+1 < len(src) {
				switch src[i : i+2] {
				case "::", "<=", ">=", "<>", "!=", "||", "->", "=>", ":=":
					width = 2
				}
			}
			i += width
			tokens = append(tokens, token{kind: tokPunct, text: src[start:i], pos: start})
		}
	}
	return tokens, comments, nil
}

// readQuoted reads a quote-delimited run starting at src[i] where a doubled
// quote is an escaped quote. It returns the unescaped text and the index
// after the closing quote.
func readQuoted(src string, i int, quote byte) (string, int, error) {
	var b strings.Builder
	i++
	for i < len(src) {
		if src[i] == quote {
			if i+1 < len(src) && src[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteByte(src[i])
		i++
	}
	return "", i, fmt.Errorf("unterminated")
}

func readNumber(src string, i int) int {
	for i < len(src) && (isDigit(src[i]) || src[i] == '.' || src[i] == '_') {
		i++
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}

// stripComments replaces comment spans with a single space.
func stripComments(src string, comments []span) string {
	if len(comments) == 0 {
		return src
	}
	var b strings.Builder
	last := 0
	for _, c := range comments {
		b.WriteString(src[last:c.start])
		b.WriteByte(' ')
		last = c.end
	}
	b.WriteString(src[last:])
	return b.String()
}
