package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/config"
	"github.com/fyrsmithlabs/ragdex/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

var (
	_ vectorstore.Embedder    = (*Service)(nil)
	_ vectorstore.Dimensioner = (*Service)(nil)
)

// maxErrorBody caps how much of a failed response is echoed into errors.
const maxErrorBody = 4096

// knownDimensions maps model name fragments to output sizes. Order matters:
// the first matching fragment wins.
var knownDimensions = []struct {
	fragment string
	dim      int
}{
	{"bge-small", 384},
	{"bge-base", 768},
	{"bge-large", 1024},
	{"all-minilm", 384},
	{"all-mpnet", 768},
	{"nomic-embed-text", 768},
	{"e5-small", 384},
	{"e5-base", 768},
	{"e5-large", 1024},
}

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the TEI server root, e.g. http://localhost:8080.
	BaseURL string

	// Model names the served model. TEI ignores it; it labels metrics and
	// seeds Dimension.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey config.Secret

	// Timeout bounds each HTTP request. Zero means no client timeout.
	Timeout time.Duration
}

// ConfigFrom converts the embeddings section of the application config.
func ConfigFrom(ec config.EmbeddingsConfig) Config {
	return Config{
		BaseURL: ec.BaseURL,
		Model:   ec.Model,
		APIKey:  ec.APIKey,
		Timeout: ec.Timeout,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: base URL must be http(s), got %q", ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// Service provides embedding generation against a TEI server.
type Service struct {
	config  Config
	client  *http.Client
	metrics *Metrics
	logger  *zap.Logger

	// dimension is seeded from the model name and replaced by the length
	// of the first vector the server returns.
	dimension atomic.Int64
}

// NewService creates a new embedding service with the given configuration.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Service{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: NewMetrics(logger),
		logger:  logger,
	}
	s.dimension.Store(int64(dimensionForModel(cfg.Model)))
	return s, nil
}

// teiRequest is the request body for TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// Dimension returns the vector size, or 0 when neither the model name nor
// an earlier response has revealed it.
func (s *Service) Dimension() int {
	return int(s.dimension.Load())
}

// EmbedDocuments generates embeddings for multiple texts.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err = s.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

func (s *Service) embed(ctx context.Context, inputs any) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey.Value())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		if prev := s.dimension.Swap(int64(len(vectors[0]))); prev != int64(len(vectors[0])) {
			s.logger.Debug("embedding dimension observed",
				zap.String("model", s.config.Model),
				zap.Int("dimension", len(vectors[0])),
				zap.Int64("previous", prev),
			)
		}
	}
	return vectors, nil
}

func dimensionForModel(model string) int {
	m := strings.ToLower(model)
	for _, k := range knownDimensions {
		if strings.Contains(m, k.fragment) {
			return k.dim
		}
	}
	return 0
}
