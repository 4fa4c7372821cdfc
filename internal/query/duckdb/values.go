package duckdb

import (
	"fmt"
	"math"
	"math/big"

	"github.com/marcboeker/go-duckdb/v2"
)

// normalizeValue converts driver values into JSON-friendly Go values.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case duckdb.Decimal:
		return typed.Float64()
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d microseconds", typed.Months, typed.Days, typed.Micros)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return fmt.Sprint(typed)
		}
		return typed
	case float32:
		return normalizeValue(float64(typed))
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalizeValue(item)
		}
		return out
	case duckdb.Map:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = normalizeValue(item)
		}
		return out
	default:
		return typed
	}
}
