package odooconnect

import (
	"encoding/json"
	"fmt"
	"math"
)

// Channels return results as untyped trees: maps, slices, strings, bools,
// int64 and float64. These helpers turn them into the shapes Model methods
// promise.

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asInt64Slice(v any) ([]int64, error) {
	if v == nil {
		return []int64{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of ids, got %T", ErrInvalidResponse, v)
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok := asInt64(item)
		if !ok {
			return nil, fmt.Errorf("%w: expected an integer id, got %T", ErrInvalidResponse, item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// asBool follows the server's truthiness: false, nil, 0 and "" are false.
func asBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if n, ok := asInt64(v); ok {
		return n != 0
	}
	return true
}

func asRecords(v any) ([]map[string]any, error) {
	if v == nil {
		return []map[string]any{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of records, got %T", ErrInvalidResponse, v)
	}
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected a record mapping, got %T", ErrInvalidResponse, item)
		}
		records = append(records, rec)
	}
	return records, nil
}

func asFieldsMeta(v any) (map[string]map[string]any, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a field metadata mapping, got %T", ErrInvalidResponse, v)
	}
	meta := make(map[string]map[string]any, len(raw))
	for name, attrs := range raw {
		m, _ := attrs.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		meta[name] = m
	}
	return meta, nil
}

// normalizeNumbers replaces json.Number leaves with int64 when integral and
// float64 otherwise.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	}
	return v
}
