package vectorstore

import (
	"fmt"
	"strconv"
)

// maxConjunctions bounds DNF expansion of deeply nested $or filters.
const maxConjunctions = 256

// toChromemWhere expands a filter into disjunctive normal form. chromem-go
// only evaluates an AND of string equalities, so each returned map is one
// native where clause and a document matches if any clause matches.
//
// A nil filter yields a single nil clause (match everything).
// Unsatisfiable conjunctions (same key, different values) are dropped, so
// an empty result means nothing can match.
func toChromemWhere(n *filterNode) ([]map[string]string, error) {
	if n == nil {
		return []map[string]string{nil}, nil
	}
	conj, err := dnf(n)
	if err != nil {
		return nil, err
	}
	return conj, nil
}

func dnf(n *filterNode) ([]map[string]string, error) {
	switch n.kind {
	case nodeEq:
		return []map[string]string{{n.key: encodeScalar(n.value)}}, nil
	case nodeOr:
		var out []map[string]string
		for _, c := range n.children {
			sub, err := dnf(c)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			if len(out) > maxConjunctions {
				return nil, fmt.Errorf("%w: filter expands to more than %d clauses", ErrInvalidFilter, maxConjunctions)
			}
		}
		return out, nil
	case nodeAnd:
		out := []map[string]string{{}}
		for _, c := range n.children {
			sub, err := dnf(c)
			if err != nil {
				return nil, err
			}
			var next []map[string]string
			for _, left := range out {
				for _, right := range sub {
					if merged, ok := mergeWhere(left, right); ok {
						next = append(next, merged)
					}
				}
			}
			if len(next) > maxConjunctions {
				return nil, fmt.Errorf("%w: filter expands to more than %d clauses", ErrInvalidFilter, maxConjunctions)
			}
			out = next
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown node", ErrInvalidFilter)
	}
}

// mergeWhere ANDs two clauses; ok is false if they contradict.
func mergeWhere(a, b map[string]string) (map[string]string, bool) {
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if prev, ok := merged[k]; ok && prev != v {
			return nil, false
		}
		merged[k] = v
	}
	return merged, true
}

// chromem-go stores metadata as strings, so each value carries a type tag:
// "s:" string, "i:" int64, "f:" float64, "b:" bool. Filter values are
// encoded the same way, so "3" and 3 never match each other.
const (
	tagString = "s:"
	tagInt    = "i:"
	tagFloat  = "f:"
	tagBool   = "b:"
)

// encodeScalar returns the tagged string form of a canonical scalar.
func encodeScalar(v any) string {
	switch x := v.(type) {
	case string:
		return tagString + x
	case bool:
		return tagBool + strconv.FormatBool(x)
	case int64:
		return tagInt + strconv.FormatInt(x, 10)
	case float64:
		return tagFloat + strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return tagString + fmt.Sprintf("%v", v)
	}
}

// decodeScalar reverses encodeScalar. Untagged or malformed values are
// returned as plain strings.
func decodeScalar(raw string) any {
	if len(raw) < 2 {
		return raw
	}
	body := raw[2:]
	switch raw[:2] {
	case tagString:
		return body
	case tagInt:
		if i, err := strconv.ParseInt(body, 10, 64); err == nil {
			return i
		}
	case tagFloat:
		if f, err := strconv.ParseFloat(body, 64); err == nil {
			return f
		}
	case tagBool:
		if b, err := strconv.ParseBool(body); err == nil {
			return b
		}
	}
	return raw
}

func metadataToChromem(metadata map[string]any) (map[string]string, error) {
	canonical, err := canonicalMetadata(metadata)
	if err != nil || canonical == nil {
		return nil, err
	}
	out := make(map[string]string, len(canonical))
	for k, v := range canonical {
		out[k] = encodeScalar(v)
	}
	return out, nil
}

func metadataFromChromem(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = decodeScalar(v)
	}
	return out
}
