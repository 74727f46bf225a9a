package main

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/config"
	"github.com/fyrsmithlabs/ragdex/internal/vectorstore"
)

// wordEmbedder hashes words into a small bag-of-words vector.
type wordEmbedder struct{}

func (wordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = wordEmbedder{}.EmbedQuery(ctx, t)
	}
	return out, nil
}

func (wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for i := range vec {
		vec[i] = 0.01
	}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%16]++
	}
	return vec, nil
}

func (wordEmbedder) Dimension() int { return 16 }

// runCLI executes one command line against a store in dir and returns stdout.
func runCLI(t *testing.T, dir, backend string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	a := newApp(&out)
	a.newEmbedder = func(config.EmbeddingsConfig, *zap.Logger) (vectorstore.Embedder, error) {
		return wordEmbedder{}, nil
	}
	base := []string{"--type", backend, "--persist-dir", dir, "--log-level", "error"}
	err := a.execute(context.Background(), append(base, args...))
	return out.String(), err
}

func TestBackendsCommand(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "chromadb", "backends")
	require.NoError(t, err)
	lines := strings.Fields(out)
	assert.Contains(t, lines, "chromadb")
	assert.Contains(t, lines, "qdrant")
}

func TestStoreCommands(t *testing.T) {
	for _, backend := range []string{"chromadb", "qdrant"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			out, err := runCLI(t, dir, backend, "add",
				"--text", "alpha beta", "--text", "gamma delta",
				"--metadata", `{"book": "a", "page": 1}`)
			require.NoError(t, err)
			var added struct{ IDs []string }
			require.NoError(t, json.Unmarshal([]byte(out), &added))
			assert.Len(t, added.IDs, 2)

			out, err = runCLI(t, dir, backend, "add", "--text", "epsilon zeta", "--metadata", `{"book": "b", "page": 2}`)
			require.NoError(t, err)

			out, err = runCLI(t, dir, backend, "count")
			require.NoError(t, err)
			assert.Equal(t, "3", strings.TrimSpace(out))

			out, err = runCLI(t, dir, backend, "search", "alpha", "-k", "5", "--filter", `{"page": 1}`)
			require.NoError(t, err)
			var hits []vectorstore.ScoredDocument
			require.NoError(t, json.Unmarshal([]byte(out), &hits))
			require.Len(t, hits, 2)
			assert.Equal(t, "alpha beta", hits[0].Content)

			out, err = runCLI(t, dir, backend, "get", "--filter", `{"book": "b"}`)
			require.NoError(t, err)
			var got vectorstore.GetResult
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, []string{"epsilon zeta"}, got.Documents)

			out, err = runCLI(t, dir, backend, "delete", "--filter", `{"book": "a"}`)
			require.NoError(t, err)
			assert.JSONEq(t, `{"deleted": 2}`, out)

			out, err = runCLI(t, dir, backend, "info", "--collection", "ragdex")
			require.NoError(t, err)
			var info map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &info))
			assert.Equal(t, backend, info["type"])
			assert.Equal(t, "ragdex", info["collection"])
			assert.EqualValues(t, 1, info["count"])
		})
	}
}

func TestDeleteRequiresFilter(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "chromadb", "delete")
	assert.ErrorContains(t, err, "--filter is required")
}

func TestUnknownBackend(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "pinecone", "count")
	assert.ErrorIs(t, err, vectorstore.ErrUnsupportedBackend)
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter(`{"$or": [{"page": 3}, {"score": 0.5}], "draft": false}`)
	require.NoError(t, err)
	or := f["$or"].([]any)
	assert.Equal(t, int64(3), or[0].(map[string]any)["page"])
	assert.Equal(t, 0.5, or[1].(map[string]any)["score"])
	assert.Equal(t, false, f["draft"])

	f, err = parseFilter("  ")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = parseFilter(`[1]`)
	assert.ErrorContains(t, err, "invalid --filter")
}

func TestDecodeDocuments(t *testing.T) {
	in := `{"content": "one", "metadata": {"page": 1}}

{"content": "two"}
`
	docs, err := decodeDocuments(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, map[string]any{"page": int64(1)}, docs[0].Metadata)
	assert.Nil(t, docs[1].Metadata)

	_, err = decodeDocuments(strings.NewReader(`{"content": "x", "metadata": {"tags": ["a"]}}`))
	assert.ErrorContains(t, err, "line 1")

	_, err = decodeDocuments(strings.NewReader(`not json`))
	assert.ErrorContains(t, err, "line 1")
}

func TestMetricsAddr(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "chromadb", "--metrics-addr", "127.0.0.1:0", "count")
	require.NoError(t, err)

	_, err = runCLI(t, t.TempDir(), "chromadb", "--metrics-addr", "not-an-address", "count")
	assert.ErrorContains(t, err, "metrics listener")
}
