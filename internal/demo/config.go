package demo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

type Config struct {
	Output    string
	Format    Format
	Orders    int
	Customers int
	Seed      int64
}

func DefaultConfig() Config {
	return Config{
		Output:    "demo.xlsx",
		Format:    FormatXLSX,
		Orders:    500,
		Customers: 40,
		Seed:      time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "TABQUERY_DEMO_OUTPUT", &cfg.Output); err != nil {
		return Config{}, err
	}
	var format string
	if err := applyString(lookup, "TABQUERY_DEMO_FORMAT", &format); err != nil {
		return Config{}, err
	}
	if format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}
	if err := applyInt(lookup, "TABQUERY_DEMO_ORDERS", &cfg.Orders); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABQUERY_DEMO_CUSTOMERS", &cfg.Customers); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "TABQUERY_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("TABQUERY_DEMO_OUTPUT is required")
	}
	if c.Format != FormatXLSX && c.Format != FormatCSV {
		return fmt.Errorf("TABQUERY_DEMO_FORMAT must be xlsx or csv")
	}
	if c.Orders <= 0 {
		return fmt.Errorf("TABQUERY_DEMO_ORDERS must be > 0")
	}
	if c.Customers <= 0 {
		return fmt.Errorf("TABQUERY_DEMO_CUSTOMERS must be > 0")
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
