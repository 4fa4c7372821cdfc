package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabquery/tabquery/internal/nl2sql"
	"github.com/tabquery/tabquery/internal/query"
)

// sampleRows is how many result rows the narrative prompt shows.
const sampleRows = 3

const narratorSystemPrompt = `You are a data analyst explaining the result of a SQL query to the person who asked the question.
Answer the question directly with the specific numbers in the result.
Then point out up to three notable patterns, outliers or data quality concerns.
Use short markdown bullet points and stay under 250 words.
Only use facts present in the statistics and sample rows you are given.`

// Narrator writes a short prose explanation of a summarized result.
type Narrator struct {
	generator nl2sql.Generator
	timeout   time.Duration
	logger    *slog.Logger
}

func NewNarrator(generator nl2sql.Generator, timeout time.Duration, logger *slog.Logger) *Narrator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{generator: generator, timeout: timeout, logger: logger}
}

// Narrate asks the generator for an explanation of summary. It returns an
// error when generation fails or yields nothing.
func (n *Narrator) Narrate(ctx context.Context, question string, result query.Result, summary *Summary) (string, error) {
	if summary == nil {
		return "", errors.New("nothing to narrate")
	}
	user, err := narrativePrompt(question, result, summary)
	if err != nil {
		return "", err
	}

	genCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	start := time.Now()
	completion, err := n.generator.Generate(genCtx, nl2sql.Prompt{System: narratorSystemPrompt, User: user})
	if err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}
	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return "", errors.New("generate narrative: empty completion")
	}
	n.logger.DebugContext(ctx, "narrative generated",
		slog.String("provider", completion.Provider),
		slog.String("model", completion.Model),
		slog.Int("chars", len(text)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}

func narrativePrompt(question string, result query.Result, summary *Summary) (string, error) {
	stats, err := json.MarshalIndent(summary.Columns, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode column statistics: %w", err)
	}
	limit := min(sampleRows, len(result.Rows))
	sample, err := json.Marshal(result.Rows[:limit])
	if err != nil {
		return "", fmt.Errorf("encode sample rows: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "Rows returned: %d", result.RowCount)
	if result.Truncated {
		fmt.Fprintf(&b, " (only the first %d are included below)", summary.Rows)
	}
	fmt.Fprintf(&b, "\nColumns: %s\n\n", strings.Join(result.Columns, ", "))
	fmt.Fprintf(&b, "Column statistics:\n%s\n\n", stats)
	fmt.Fprintf(&b, "First %d rows:\n%s\n", limit, sample)
	return b.String(), nil
}
