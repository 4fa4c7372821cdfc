package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tabquery/tabquery/internal/sqlguard"
)

const maxIdentifierLength = 63

var (
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeName turns a header cell or sheet name into a lowercase SQL
// identifier. It returns "" when nothing usable remains.
func SanitizeName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = nonWordPattern.ReplaceAllString(name, "")
	name = whitespacePattern.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return ""
	}
	if first := []rune(name)[0]; unicode.IsDigit(first) {
		name = "c_" + name
	}
	return truncate(name, maxIdentifierLength)
}

// ColumnNames sanitizes a header row. Blank names become column_<n> (1-based),
// reserved SQL words get a _col suffix and repeated names get a _<k> suffix.
func ColumnNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]struct{}, len(header))
	for i, raw := range header {
		name := SanitizeName(raw)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if sqlguard.IsReserved(name) {
			name += "_col"
		}
		names[i] = dedupe(name, used)
	}
	return names
}

// tableNamer hands out table names unique within one dataset.
type tableNamer struct {
	used map[string]struct{}
}

func newTableNamer() *tableNamer {
	return &tableNamer{used: make(map[string]struct{})}
}

func (n *tableNamer) next(raw string, position int) string {
	name := SanitizeName(raw)
	if name == "" {
		name = fmt.Sprintf("table_%d", position+1)
	}
	if sqlguard.IsReserved(name) || sqlguard.IsKeyword(name) {
		name += "_table"
	}
	return dedupe(name, n.used)
}

func dedupe(name string, used map[string]struct{}) string {
	candidate := name
	for k := 1; ; k++ {
		if _, taken := used[candidate]; !taken {
			break
		}
		suffix := fmt.Sprintf("_%d", k)
		candidate = truncate(name, maxIdentifierLength-len(suffix)) + suffix
	}
	used[candidate] = struct{}{}
	return candidate
}

func truncate(name string, max int) string {
	if len(name) <= max {
		return name
	}
	cut := name[:max]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
