package app

import (
	"context"
	"errors"
	"testing"

	"github.com/tabquery/tabquery/internal/config"
	"github.com/tabquery/tabquery/internal/nl2sql"
)

func TestNewGeneratorWithoutAPIKeyIsDisabled(t *testing.T) {
	cfg, err := config.Load("tabquery-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	generator, err := newGenerator(cfg)
	if err != nil {
		t.Fatalf("newGenerator() error = %v", err)
	}
	if generator != nil {
		t.Fatalf("generator = %#v, want nil", generator)
	}
	if _, err := generatorOrDisabled(generator).Generate(context.Background(), nl2sql.Prompt{}); !errors.Is(err, errTranslationDisabled) {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestNewGeneratorWithAPIKey(t *testing.T) {
	cfg, err := config.Load("tabquery-api", func(key string) (string, bool) {
		if key == "TABQUERY_AI_API_KEY" {
			return "sk-test", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	generator, err := newGenerator(cfg)
	if err != nil || generator == nil {
		t.Fatalf("newGenerator() = %v, %v", generator, err)
	}
}
