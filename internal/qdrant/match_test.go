package qdrant

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestMatchFilter(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"book":   "a",
		"page":   12,
		"rating": 4.5,
		"draft":  false,
		"tags":   []any{"go", "db"},
		"author": map[string]any{"name": "kim"},
	})

	tests := []struct {
		name   string
		filter *qdrant.Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &qdrant.Filter{}, true},
		{"keyword", must(qdrant.NewMatch("book", "a")), true},
		{"keyword miss", must(qdrant.NewMatch("book", "b")), false},
		{"integer", must(qdrant.NewMatchInt("page", 12)), true},
		{"integer does not match string", must(qdrant.NewMatchInt("book", 12)), false},
		{"bool", must(qdrant.NewMatchBool("draft", false)), true},
		{"range on double", must(qdrant.NewRange("rating", &qdrant.Range{Gte: qdrant.PtrOf(4.5), Lte: qdrant.PtrOf(4.5)})), true},
		{"range on integer", must(qdrant.NewRange("page", &qdrant.Range{Gt: qdrant.PtrOf(10.0), Lt: qdrant.PtrOf(13.0)})), true},
		{"range miss", must(qdrant.NewRange("page", &qdrant.Range{Gt: qdrant.PtrOf(12.0)})), false},
		{"list element", must(qdrant.NewMatch("tags", "db")), true},
		{"nested key", must(qdrant.NewMatch("author.name", "kim")), true},
		{"missing key", must(qdrant.NewMatch("missing", "a")), false},
		{"unevaluated condition never matches", must(qdrant.NewMatchText("book", "a")), false},
		{"is empty is not evaluated", must(qdrant.NewIsEmpty("missing")), false},
		{
			name: "should any",
			filter: &qdrant.Filter{Should: []*qdrant.Condition{
				qdrant.NewMatch("book", "b"),
				qdrant.NewMatch("book", "a"),
			}},
			want: true,
		},
		{
			name: "should none",
			filter: &qdrant.Filter{Should: []*qdrant.Condition{
				qdrant.NewMatch("book", "b"),
				qdrant.NewMatch("book", "c"),
			}},
			want: false,
		},
		{
			name:   "must not",
			filter: &qdrant.Filter{MustNot: []*qdrant.Condition{qdrant.NewMatch("book", "a")}},
			want:   false,
		},
		{
			name: "nested filter condition",
			filter: must(qdrant.NewFilterAsCondition(&qdrant.Filter{
				Should: []*qdrant.Condition{qdrant.NewMatch("book", "z"), qdrant.NewMatchInt("page", 12)},
			})),
			want: true,
		},
		{
			name: "contradictory must",
			filter: &qdrant.Filter{Must: []*qdrant.Condition{
				qdrant.NewMatch("book", "a"),
				qdrant.NewMatch("book", "b"),
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchFilter(tt.filter, payload))
		})
	}
}

func must(c *qdrant.Condition) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{c}}
}

func TestScore(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 1.0, score(qdrant.Distance_Cosine, a, a), 1e-6)
	assert.InDelta(t, 0.0, score(qdrant.Distance_Cosine, a, b), 1e-6)
	assert.InDelta(t, 0.0, score(qdrant.Distance_Cosine, a, []float32{0, 0}), 1e-6)
	assert.InDelta(t, 1.41421, score(qdrant.Distance_Euclid, a, b), 1e-4)
	assert.InDelta(t, 2.0, score(qdrant.Distance_Dot, []float32{1, 1}, []float32{1, 1}), 1e-6)
	assert.InDelta(t, 2.0, score(qdrant.Distance_Manhattan, a, b), 1e-6)

	assert.True(t, lowerIsBetter(qdrant.Distance_Euclid))
	assert.False(t, lowerIsBetter(qdrant.Distance_Cosine))
}
