package vectorstore_test

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragdex/internal/vectorstore"
)

// HashEmbedder is a deterministic bag-of-words embedder: each word adds 1
// to a hashed bucket, so texts sharing words are similar.
type HashEmbedder struct {
	VectorSize int
	calls      atomic.Int64
}

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.embed(text), nil
}

// Calls returns how many times the embedder was used.
func (e *HashEmbedder) Calls() int64 {
	return e.calls.Load()
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.VectorSize)
	// A small floor keeps every vector non-zero.
	for i := range vec {
		vec[i] = 0.01
	}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%e.VectorSize]++
	}
	return vec
}

// SizedEmbedder reports its dimension without embedding.
type SizedEmbedder struct {
	HashEmbedder
}

func (e *SizedEmbedder) Dimension() int {
	return e.VectorSize
}

// FailingEmbedder always fails.
type FailingEmbedder struct{}

func (FailingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

func (FailingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

// backendCase is one backend configuration exercised by the shared tests.
type backendCase struct {
	name   string
	typ    string
	config map[string]any
}

var backendCases = []backendCase{
	{name: "chromadb", typ: "chromadb"},
	{name: "qdrant memory", typ: "qdrant", config: map[string]any{"mode": "memory"}},
	{name: "qdrant local", typ: "qdrant", config: map[string]any{"mode": "local"}},
}

// newStore creates and initializes the backend in a fresh directory.
func newStore(t *testing.T, bc backendCase) vectorstore.Store {
	t.Helper()
	return newStoreIn(t, bc, t.TempDir())
}

func newStoreIn(t *testing.T, bc backendCase, dir string) vectorstore.Store {
	t.Helper()
	store, err := vectorstore.Create(context.Background(), bc.typ, dir, &HashEmbedder{VectorSize: 16},
		vectorstore.WithConfig(bc.config),
	)
	require.NoError(t, err)
	if closer, ok := store.(interface{ Close() error }); ok {
		t.Cleanup(func() { _ = closer.Close() })
	}
	return store
}

// seedBooks adds two chunks tagged book=a and one tagged book=b. The
// extra keys mix value types that look alike ("3" and 3, 2 and 2.0).
func seedBooks(t *testing.T, store vectorstore.Store) []string {
	t.Helper()
	ids, err := store.AddDocuments(context.Background(), []vectorstore.Document{
		{Content: "alpha beta", Metadata: map[string]any{"book": "a", "page": 1, "draft": true, "w": 2.0, "isbn": "3"}},
		{Content: "gamma delta", Metadata: map[string]any{"book": "a", "page": 2, "draft": false, "w": 2.5, "isbn": "4"}},
		{Content: "epsilon zeta", Metadata: map[string]any{"book": "b", "page": 1}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	return ids
}

// flakyEmbedder embeds like HashEmbedder but fails queries once broken.
type flakyEmbedder struct {
	HashEmbedder
	broken bool
}

func (e *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.broken {
		e.calls.Add(1)
		return nil, errors.New("embedder down")
	}
	return e.HashEmbedder.EmbedQuery(ctx, text)
}
