package vectorstore

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// ToQdrantFilter translates a Filter into a points database filter.
//
// An empty filter yields nil (unconstrained). A single equality becomes a
// one-element Must; a top-level $and is returned directly as a Must group
// and $or as a Should group. Nested groups are wrapped as filter
// conditions. Strings match as keywords, bools and integers match exactly,
// and floats match the closed range [v, v]. Integral floats are folded into
// integers first, the same way stored metadata is.
func ToQdrantFilter(f Filter) (*qdrant.Filter, error) {
	n, err := parseFilter(f)
	if err != nil {
		return nil, err
	}
	return qdrantFilter(n)
}

func qdrantFilter(n *filterNode) (*qdrant.Filter, error) {
	if n == nil {
		return nil, nil
	}
	switch n.kind {
	case nodeEq:
		c, err := qdrantCondition(n)
		if err != nil {
			return nil, err
		}
		return &qdrant.Filter{Must: []*qdrant.Condition{c}}, nil
	case nodeAnd, nodeOr:
		conds := make([]*qdrant.Condition, 0, len(n.children))
		for _, child := range n.children {
			c, err := qdrantCondition(child)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if n.kind == nodeOr {
			return &qdrant.Filter{Should: conds}, nil
		}
		return &qdrant.Filter{Must: conds}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node", ErrInvalidFilter)
	}
}

func qdrantCondition(n *filterNode) (*qdrant.Condition, error) {
	if n.kind != nodeEq {
		sub, err := qdrantFilter(n)
		if err != nil {
			return nil, err
		}
		return qdrant.NewFilterAsCondition(sub), nil
	}

	switch v := n.value.(type) {
	case string:
		return qdrant.NewMatchKeyword(n.key, v), nil
	case bool:
		return qdrant.NewMatchBool(n.key, v), nil
	case int64:
		return qdrant.NewMatchInt(n.key, v), nil
	case float64:
		return qdrant.NewRange(n.key, &qdrant.Range{Gte: qdrant.PtrOf(v), Lte: qdrant.PtrOf(v)}), nil
	default:
		return nil, fmt.Errorf("%w: %q: unsupported value type %T", ErrInvalidFilter, n.key, n.value)
	}
}
