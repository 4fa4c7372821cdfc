// Package infer assigns one of the catalog data types to a column of raw
// cell values and converts cells to typed values.
package infer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tabquery/tabquery/internal/catalog"
)

const (
	DefaultSampleSize = 100
	DefaultThreshold  = 0.9
)

type Options struct {
	SampleSize int
	Threshold  float64
}

func (o Options) normalized() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// candidates are tried in order; the first type that parses at least
// Threshold of the sampled values wins.
var candidates = []catalog.DataType{
	catalog.TypeBoolean,
	catalog.TypeInteger,
	catalog.TypeFloat,
	catalog.TypeDatetime,
}

// Column infers the type of a column. It never fails: columns that are empty
// or too heterogeneous become text.
func Column(values []string, opts Options) catalog.DataType {
	opts = opts.normalized()

	sample := make([]string, 0, opts.SampleSize)
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		sample = append(sample, value)
		if len(sample) == opts.SampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return catalog.TypeText
	}

	need := int(math.Ceil(opts.Threshold * float64(len(sample))))
	for _, candidate := range candidates {
		matched := 0
		for i, value := range sample {
			if parses(candidate, value) {
				matched++
			}
			if matched >= need {
				return candidate
			}
			if matched+len(sample)-i-1 < need {
				break
			}
		}
	}
	return catalog.TypeText
}

func parses(t catalog.DataType, value string) bool {
	switch t {
	case catalog.TypeBoolean:
		_, ok := ParseBool(value)
		return ok
	case catalog.TypeInteger:
		_, ok := ParseInt(value)
		return ok
	case catalog.TypeFloat:
		_, ok := ParseFloat(value)
		return ok
	case catalog.TypeDatetime:
		_, ok := ParseTime(value)
		return ok
	default:
		return true
	}
}

// Widen promotes an integer column to float when any value is a decimal
// number, so decimals outside the inference sample keep their value.
func Widen(values []string, t catalog.DataType) catalog.DataType {
	if t != catalog.TypeInteger {
		return t
	}
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := ParseInt(value); ok {
			continue
		}
		if _, ok := ParseFloat(value); ok {
			return catalog.TypeFloat
		}
	}
	return t
}

// Unconvertible counts the non-blank values that Convert stores as NULL
// for type t.
func Unconvertible(values []string, t catalog.DataType) int {
	if t == catalog.TypeText {
		return 0
	}
	n := 0
	for _, value := range values {
		if strings.TrimSpace(value) != "" && Convert(value, t) == nil {
			n++
		}
	}
	return n
}

// Convert turns a raw cell into the Go value stored for type t. Empty or
// unparseable cells become nil.
func Convert(raw string, t catalog.DataType) any {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	switch t {
	case catalog.TypeBoolean:
		if b, ok := ParseBool(value); ok {
			return b
		}
	case catalog.TypeInteger:
		if n, ok := ParseInt(value); ok {
			return n
		}
	case catalog.TypeFloat:
		if f, ok := ParseFloat(value); ok {
			return f
		}
	case catalog.TypeDatetime:
		if ts, ok := ParseTime(value); ok {
			return ts
		}
	default:
		return raw
	}
	return nil
}

// ParseBool accepts true/false, yes/no, t/f and y/n in any case. 0 and 1 are
// left to the numeric types.
func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "t", "y":
		return true, true
	case "false", "no", "f", "n":
		return false, true
	default:
		return false, false
	}
}

func ParseInt(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	cleaned, ok := stripThousands(value)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ParseFloat(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	cleaned, ok := stripThousands(value)
	if !ok {
		return 0, false
	}
	lower := strings.ToLower(cleaned)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.HasPrefix(lower, "0x") {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// stripThousands removes comma group separators, accepting them only in
// well-formed groups of three digits ahead of any decimal point.
func stripThousands(value string) (string, bool) {
	if !strings.Contains(value, ",") {
		return value, true
	}
	intPart, frac, hasFrac := strings.Cut(value, ".")
	sign := ""
	if strings.HasPrefix(intPart, "-") || strings.HasPrefix(intPart, "+") {
		sign, intPart = intPart[:1], intPart[1:]
	}
	groups := strings.Split(intPart, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return "", false
	}
	for _, group := range groups[1:] {
		if len(group) != 3 {
			return "", false
		}
	}
	for _, group := range groups {
		for _, r := range group {
			if r < '0' || r > '9' {
				return "", false
			}
		}
	}
	out := sign + strings.Join(groups, "")
	if hasFrac {
		if strings.Contains(frac, ",") {
			return "", false
		}
		out += "." + frac
	}
	return out, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
