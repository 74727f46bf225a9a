package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCClient implements Client against a Qdrant server using the official
// Go client.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *logging.Logger
}

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is sent as the api-key header on every call when set.
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// DialTimeout bounds the health check performed on connect.
	// Default: 5 seconds
	DialTimeout time.Duration

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient gRPC failures
	// (Unavailable, DeadlineExceeded, Aborted, ResourceExhausted).
	// Default: 0, calls are not retried.
	RetryAttempts int
}

// DefaultClientConfig returns defaults for a local Qdrant server.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		MaxMessageSize: 50 * 1024 * 1024,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if strings.Contains(c.Host, "://") {
		return fmt.Errorf("host must not include a scheme: %q", c.Host)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative: %d", c.RetryAttempts)
	}
	return nil
}

// NewGRPCClient connects to a Qdrant server and verifies it with a health
// check bounded by DialTimeout.
func NewGRPCClient(ctx context.Context, config *ClientConfig, logger *logging.Logger) (*GRPCClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if logger == nil {
		logger = logging.Wrap(nil)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		// The health check below covers what the compatibility probe does.
		SkipCompatibilityCheck: true,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	grpcClient := &GRPCClient{
		client: client,
		config: config,
		logger: logger,
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	logger.Info(dialCtx, "connecting to qdrant",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("tls", config.UseTLS),
	)

	if err := grpcClient.Health(dialCtx); err != nil {
		_ = client.Close()
		logger.Error(dialCtx, "qdrant health check failed",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Info(dialCtx, "qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)
	return grpcClient, nil
}

// Health performs a health check on the Qdrant connection.
func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// ListCollections returns the names of all collections.
func (c *GRPCClient) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var collections []string
	err := c.retryOperation(ctx, func() error {
		result, err := c.client.ListCollections(ctx)
		if err != nil {
			return err
		}
		collections = result
		return nil
	})
	return collections, err
}

// CreateCollection creates a collection for dense vectors.
func (c *GRPCClient) CreateCollection(ctx context.Context, name string, vectorSize uint64, distance qdrant.Distance) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if distance == qdrant.Distance_UnknownDistance {
		distance = qdrant.Distance_Cosine
	}
	return c.retryOperation(ctx, func() error {
		err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: distance,
			}),
		})
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrCollectionExists, name)
		}
		return err
	})
}

// DeleteCollection deletes a collection and all its points.
func (c *GRPCClient) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.retryOperation(ctx, func() error {
		return notFound(c.client.DeleteCollection(ctx, name), name)
	})
}

// CollectionInfo returns the collection's vector parameters and the
// server's approximate point count.
func (c *GRPCClient) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var info *qdrant.CollectionInfo
	err := c.retryOperation(ctx, func() error {
		result, err := c.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return notFound(err, name)
		}
		info = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	return &CollectionInfo{
		Name:        name,
		PointsCount: info.GetPointsCount(),
		VectorSize:  params.GetSize(),
		Distance:    params.GetDistance(),
	}, nil
}

// Upsert inserts or updates points and waits for the write to apply.
func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.retryOperation(ctx, func() error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return notFound(err, collection)
	})
}

// Search performs similarity search in a collection.
func (c *GRPCClient) Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *qdrant.Filter) ([]*qdrant.ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var results []*qdrant.ScoredPoint
	err := c.retryOperation(ctx, func() error {
		res, err := c.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return notFound(err, collection)
		}
		results = res
		return nil
	})
	return results, err
}

// Scroll returns one page of points matching filter.
func (c *GRPCClient) Scroll(ctx context.Context, collection string, filter *qdrant.Filter, limit uint32, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var (
		points []*qdrant.RetrievedPoint
		next   *qdrant.PointId
	)
	err := c.retryOperation(ctx, func() error {
		res, nextOffset, err := c.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return notFound(err, collection)
		}
		points, next = res, nextOffset
		return nil
	})
	return points, next, err
}

// Delete removes every point matching filter.
func (c *GRPCClient) Delete(ctx context.Context, collection string, filter *qdrant.Filter) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if filter == nil {
		filter = &qdrant.Filter{}
	}
	return c.retryOperation(ctx, func() error {
		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(filter),
		})
		return notFound(err, collection)
	})
}

// Close closes the client connection.
func (c *GRPCClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff when
// RetryAttempts > 0 and the error is transient.
func (c *GRPCClient) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second
	startTime := time.Now()

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				c.logger.Info(ctx, "operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err
		if !isTransientError(err) || attempt == c.config.RetryAttempts {
			break
		}

		c.logger.Debug(ctx, "retrying operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.config.RetryAttempts),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	if c.config.RetryAttempts > 0 && isTransientError(lastErr) {
		c.logger.Warn(ctx, "operation failed after all retries exhausted",
			zap.Int("total_attempts", c.config.RetryAttempts+1),
			zap.Duration("total_time", time.Since(startTime)),
			zap.Error(lastErr),
		)
		return fmt.Errorf("operation failed after %d retries: %w", c.config.RetryAttempts, lastErr)
	}
	return lastErr
}

// isTransientError checks if an error is transient and may be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// notFound maps a gRPC NotFound status to ErrCollectionNotFound.
func notFound(err error, collection string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound && !errors.Is(err, ErrCollectionNotFound) {
		return fmt.Errorf("%w: %s: %v", ErrCollectionNotFound, collection, err)
	}
	return err
}

var _ Client = (*GRPCClient)(nil)
