package vectorstore

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Filter is the backend-neutral metadata filter:
//
//	{"book": "a"}                               equality
//	{"book": {"$eq": "a"}}                      same as above
//	{"$and": []any{Filter{...}, Filter{...}}}   all must match
//	{"$or":  []any{Filter{...}, Filter{...}}}   any may match
//
// Sibling keys combine as AND. A nested mapping without operators is a
// literal nested filter whose values are compared against the outer key.
type Filter map[string]any

const (
	opAnd = "$and"
	opOr  = "$or"
	opEq  = "$eq"
)

type nodeKind int

const (
	nodeEq nodeKind = iota
	nodeAnd
	nodeOr
)

// filterNode is the parsed form of a Filter.
type filterNode struct {
	kind     nodeKind
	key      string
	value    any
	children []*filterNode
}

// parseFilter returns nil for an empty filter.
func parseFilter(f Filter) (*filterNode, error) {
	if len(f) == 0 {
		return nil, nil
	}
	return parseMap(map[string]any(f))
}

func parseMap(m map[string]any) (*filterNode, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: empty sub-filter", ErrInvalidFilter)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var nodes []*filterNode
	for _, key := range keys {
		n, err := parseEntry(key, m[key])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &filterNode{kind: nodeAnd, children: nodes}, nil
}

func parseEntry(key string, value any) (*filterNode, error) {
	switch {
	case key == opAnd || key == opOr:
		subs, err := asFilterList(key, value)
		if err != nil {
			return nil, err
		}
		kind := nodeAnd
		if key == opOr {
			kind = nodeOr
		}
		n := &filterNode{kind: kind}
		for _, sub := range subs {
			child, err := parseMap(sub)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		}
		return n, nil
	case strings.HasPrefix(key, "$"):
		return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, key)
	case key == "":
		return nil, fmt.Errorf("%w: empty key", ErrInvalidFilter)
	}

	if nested, ok := asMap(value); ok {
		if v, ok := nested[opEq]; ok {
			if len(nested) != 1 {
				return nil, fmt.Errorf("%w: %q mixes $eq with other keys", ErrInvalidFilter, key)
			}
			return eqNode(key, v)
		}
		return parseNested(key, nested)
	}
	return eqNode(key, value)
}

// parseNested treats a mapping without operators as a literal nested
// filter: every inner value is compared against the outer key, combined as
// AND in sorted inner-key order.
func parseNested(key string, inner map[string]any) (*filterNode, error) {
	names := make([]string, 0, len(inner))
	for k := range inner {
		if strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("%w: unsupported operator %q under %q", ErrInvalidFilter, k, key)
		}
		names = append(names, k)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty nested filter under %q", ErrInvalidFilter, key)
	}
	sort.Strings(names)

	var nodes []*filterNode
	for _, name := range names {
		n, err := parseEntry(key, inner[name])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &filterNode{kind: nodeAnd, children: nodes}, nil
}

func eqNode(key string, value any) (*filterNode, error) {
	v, err := canonicalScalar(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, key, err)
	}
	return &filterNode{kind: nodeEq, key: key, value: v}, nil
}

// normalizeScalar folds every integer type to int64 and float32 to float64.
func normalizeScalar(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case nil:
		return nil, fmt.Errorf("null value")
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// canonicalScalar normalizes v and folds integral floats into int64, so
// 3 and 3.0 are the same value on every backend.
func canonicalScalar(v any) (any, error) {
	n, err := normalizeScalar(v)
	if err != nil {
		return nil, err
	}
	f, ok := n.(float64)
	switch {
	case !ok:
		return n, nil
	case math.IsNaN(f) || math.IsInf(f, 0):
		return nil, fmt.Errorf("non-finite number %v", f)
	case f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64:
		return int64(f), nil
	}
	return f, nil
}

// canonicalMetadata applies canonicalScalar to every value. Only scalar
// metadata is accepted so both backends store the same shape.
func canonicalMetadata(metadata map[string]any) (map[string]any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		c, err := canonicalScalar(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func asFilterList(op string, v any) ([]map[string]any, error) {
	var out []map[string]any
	switch list := v.(type) {
	case []Filter:
		for _, f := range list {
			out = append(out, map[string]any(f))
		}
	case []map[string]any:
		out = list
	case []any:
		for i, item := range list {
			m, ok := asMap(item)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want a filter", ErrInvalidFilter, op, i, item)
			}
			out = append(out, m)
		}
	default:
		return nil, fmt.Errorf("%w: %s takes a list of filters, got %T", ErrInvalidFilter, op, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one filter", ErrInvalidFilter, op)
	}
	return out, nil
}
