package qdrant

import (
	"math"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// matchFilter evaluates a Qdrant filter against a point payload the way the
// server does: every Must, at least one Should (when any are given), no
// MustNot. A nil filter matches everything.
//
// Only the conditions the store's filter translator emits are evaluated:
// keyword, integer and bool matches, ranges and nested filters. Any other
// condition never matches.
func matchFilter(f *qdrant.Filter, payload map[string]*qdrant.Value) bool {
	if f == nil {
		return true
	}
	for _, c := range f.GetMust() {
		if !matchCondition(c, payload) {
			return false
		}
	}
	for _, c := range f.GetMustNot() {
		if matchCondition(c, payload) {
			return false
		}
	}
	if should := f.GetShould(); len(should) > 0 {
		for _, c := range should {
			if matchCondition(c, payload) {
				return true
			}
		}
		return false
	}
	return true
}

func matchCondition(c *qdrant.Condition, payload map[string]*qdrant.Value) bool {
	switch cond := c.GetConditionOneOf().(type) {
	case *qdrant.Condition_Field:
		return matchField(cond.Field, payload)
	case *qdrant.Condition_Filter:
		return matchFilter(cond.Filter, payload)
	default:
		return false
	}
}

func matchField(fc *qdrant.FieldCondition, payload map[string]*qdrant.Value) bool {
	m, r := fc.GetMatch(), fc.GetRange()
	if m == nil && r == nil {
		return false
	}
	values := lookup(payload, fc.GetKey())
	if m != nil && !matchValue(m, values) {
		return false
	}
	if r != nil && !matchRange(r, values) {
		return false
	}
	return true
}

func matchValue(m *qdrant.Match, values []*qdrant.Value) bool {
	switch mv := m.GetMatchValue().(type) {
	case *qdrant.Match_Keyword:
		return anyValue(values, func(v *qdrant.Value) bool {
			s, ok := v.GetKind().(*qdrant.Value_StringValue)
			return ok && s.StringValue == mv.Keyword
		})
	case *qdrant.Match_Integer:
		return anyValue(values, func(v *qdrant.Value) bool {
			i, ok := v.GetKind().(*qdrant.Value_IntegerValue)
			return ok && i.IntegerValue == mv.Integer
		})
	case *qdrant.Match_Boolean:
		return anyValue(values, func(v *qdrant.Value) bool {
			b, ok := v.GetKind().(*qdrant.Value_BoolValue)
			return ok && b.BoolValue == mv.Boolean
		})
	default:
		return false
	}
}

func matchRange(r *qdrant.Range, values []*qdrant.Value) bool {
	return anyValue(values, func(v *qdrant.Value) bool {
		var x float64
		switch n := v.GetKind().(type) {
		case *qdrant.Value_DoubleValue:
			x = n.DoubleValue
		case *qdrant.Value_IntegerValue:
			x = float64(n.IntegerValue)
		default:
			return false
		}
		if r.Gt != nil && !(x > r.GetGt()) {
			return false
		}
		if r.Gte != nil && !(x >= r.GetGte()) {
			return false
		}
		if r.Lt != nil && !(x < r.GetLt()) {
			return false
		}
		if r.Lte != nil && !(x <= r.GetLte()) {
			return false
		}
		return true
	})
}

// lookup resolves a dotted key against the payload. Lists are flattened so
// a condition matches when any element does. A missing key yields nil.
func lookup(payload map[string]*qdrant.Value, key string) []*qdrant.Value {
	current := []*qdrant.Value{{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: payload}}}}
	for _, part := range strings.Split(key, ".") {
		part = strings.TrimSuffix(part, "[]")
		var next []*qdrant.Value
		for _, v := range current {
			fields := v.GetStructValue().GetFields()
			if fields == nil {
				continue
			}
			if child, ok := fields[part]; ok {
				next = append(next, flatten(child)...)
			}
		}
		current = next
	}
	return current
}

func flatten(v *qdrant.Value) []*qdrant.Value {
	list, ok := v.GetKind().(*qdrant.Value_ListValue)
	if !ok {
		return []*qdrant.Value{v}
	}
	out := make([]*qdrant.Value, 0, len(list.ListValue.GetValues()))
	for _, item := range list.ListValue.GetValues() {
		out = append(out, flatten(item)...)
	}
	return out
}

func anyValue(values []*qdrant.Value, pred func(*qdrant.Value) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}

// score computes the similarity of a and b under distance. For Euclid the
// score is the distance itself, so lower is better.
func score(distance qdrant.Distance, a, b []float32) float32 {
	switch distance {
	case qdrant.Distance_Euclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	case qdrant.Distance_Dot:
		return float32(dot(a, b))
	case qdrant.Distance_Manhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i]) - float64(b[i]))
		}
		return float32(sum)
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot(a, b) / (na * nb))
	}
}

// lowerIsBetter reports whether smaller scores rank first.
func lowerIsBetter(distance qdrant.Distance) bool {
	return distance == qdrant.Distance_Euclid || distance == qdrant.Distance_Manhattan
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
