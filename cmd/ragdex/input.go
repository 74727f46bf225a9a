package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragdex/internal/vectorstore"
)

// parseFilter decodes a JSON filter. An empty string means no filter.
func parseFilter(raw string) (vectorstore.Filter, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --filter: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	return vectorstore.Filter(m), nil
}

// parseMetadata decodes a JSON metadata object. Only scalar values are
// accepted since that is all a store can round-trip.
func parseMetadata(raw string) (map[string]any, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	for k, v := range m {
		switch v.(type) {
		case string, bool, int64, float64:
		default:
			return nil, fmt.Errorf("invalid metadata: %q must be a string, number or bool", k)
		}
	}
	return m, nil
}

// decodeObject decodes a JSON object keeping integers as int64, so filters
// like {"page": 3} match integer metadata exactly.
func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	out, err := convertNumbers(m)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func convertNumbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", t, err)
		}
		return f, nil
	case map[string]any:
		for k, inner := range t {
			c, err := convertNumbers(inner)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
		return t, nil
	case []any:
		for i, inner := range t {
			c, err := convertNumbers(inner)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	default:
		return v, nil
	}
}
