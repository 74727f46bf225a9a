package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// teiServer answers /embed with dim-sized vectors whose first element is
// the input index.
func teiServer(t *testing.T, dim int, check func(*http.Request, teiRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req teiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if check != nil {
			check(r, req)
		}
		n := 1
		if list, ok := req.Inputs.([]any); ok {
			n = len(list)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = make([]float32, dim)
			out[i][0] = float32(i)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"}, ""},
		{"empty base URL", Config{Model: "m"}, "base URL required"},
		{"bad scheme", Config{BaseURL: "localhost:8080"}, "http(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.cfg, nil)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := teiServer(t, 4, func(r *http.Request, req teiRequest) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.True(t, req.Truncate)
	})
	svc, err := NewService(Config{BaseURL: srv.URL + "/", APIKey: "tok"}, nil)
	require.NoError(t, err)

	vecs, err := svc.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[2], 4)
	assert.Equal(t, float32(2), vecs[2][0])

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_EmbedQuery(t *testing.T) {
	srv := teiServer(t, 3, func(r *http.Request, req teiRequest) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "hello", req.Inputs)
	})
	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "x")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestService_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[0.1, 0.2]]`))
	}))
	t.Cleanup(srv.Close)
	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestService_Dimension(t *testing.T) {
	srv := teiServer(t, 5, nil)

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "BAAI/bge-base-en-v1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, svc.Dimension(), "seeded from the model name")

	_, err = svc.EmbedQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 5, svc.Dimension(), "replaced by the observed size")

	unknown, err := NewService(Config{BaseURL: srv.URL, Model: "custom"}, nil)
	require.NoError(t, err)
	assert.Zero(t, unknown.Dimension())
}

func TestDimensionForModel(t *testing.T) {
	tests := map[string]int{
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-large-en-v1.5":                 1024,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"nomic-ai/nomic-embed-text-v1.5":         768,
		"intfloat/e5-large-v2":                   1024,
		"":                                       0,
	}
	for model, want := range tests {
		assert.Equal(t, want, dimensionForModel(model), model)
	}
}
