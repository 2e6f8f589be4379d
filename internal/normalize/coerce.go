package normalize

import (
	"encoding/json"
	"math"
	"strings"

	"invoicedash/internal"
)

// number reports whether v is a finite numeric value as produced by a document
// decoder (JSON with or without UseNumber, BSON). Strings, NaN and infinities
// never count.
func number(v any) (float64, bool) {
	f, ok := anyNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func anyNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func numberOr(raw internal.RawRecord, key string, fallback float64) float64 {
	if f, ok := number(raw[key]); ok {
		return f
	}
	return fallback
}

// text returns the string under key when it is a non-blank string.
func text(raw internal.RawRecord, key string) (string, bool) {
	s, ok := raw[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func textOr(raw internal.RawRecord, key, fallback string) string {
	if s, ok := text(raw, key); ok {
		return s
	}
	return fallback
}

func textPtr(raw internal.RawRecord, keys ...string) *string {
	for _, key := range keys {
		if s, ok := text(raw, key); ok {
			return &s
		}
	}
	return nil
}

func has(raw internal.RawRecord, key string) bool {
	_, ok := raw[key]
	return ok
}
