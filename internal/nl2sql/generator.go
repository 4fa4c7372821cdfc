package nl2sql

import (
	"context"
	"regexp"
	"strings"
)

// Prompt is one chat exchange sent to a Generator.
type Prompt struct {
	System string
	User   string
}

type Completion struct {
	Text     string
	Provider string
	Model    string
}

// Generator produces a completion for a prompt. Implementations must honor
// ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Completion, error)
}

var (
	fencePattern       = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n(.*?)```")
	inlineFencePattern = regexp.MustCompile("(?s)```(.*?)```")
)

// StripMarkdownSQL returns the SQL inside the first markdown code fence, or
// the trimmed text when there is no fence.
func StripMarkdownSQL(value string) string {
	for _, pattern := range []*regexp.Regexp{fencePattern, inlineFencePattern} {
		if match := pattern.FindStringSubmatch(value); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}
