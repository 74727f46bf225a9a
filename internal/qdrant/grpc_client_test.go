package qdrant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name   string
		config *ClientConfig
		check  func(t *testing.T, cfg *ClientConfig)
	}{
		{
			name:   "empty config gets all defaults",
			config: &ClientConfig{},
			check: func(t *testing.T, cfg *ClientConfig) {
				assert.Equal(t, "localhost", cfg.Host)
				assert.Equal(t, 6334, cfg.Port)
				assert.False(t, cfg.UseTLS)
				assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
				assert.Equal(t, 5*time.Second, cfg.DialTimeout)
				assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
				assert.Equal(t, 0, cfg.RetryAttempts, "retries are opt-in")
			},
		},
		{
			name: "partial config preserves set values",
			config: &ClientConfig{
				Host:          "qdrant.example.com",
				Port:          6335,
				RetryAttempts: 2,
			},
			check: func(t *testing.T, cfg *ClientConfig) {
				assert.Equal(t, "qdrant.example.com", cfg.Host)
				assert.Equal(t, 6335, cfg.Port)
				assert.Equal(t, 2, cfg.RetryAttempts)
				assert.Equal(t, 5*time.Second, cfg.DialTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.ApplyDefaults()
			tt.check(t, tt.config)
		})
	}
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr string
	}{
		{
			name:   "valid config",
			config: &ClientConfig{Host: "localhost", Port: 6334, MaxMessageSize: 1024},
		},
		{
			name:    "missing host",
			config:  &ClientConfig{Port: 6334, MaxMessageSize: 1024},
			wantErr: "host is required",
		},
		{
			name:    "host with scheme",
			config:  &ClientConfig{Host: "http://localhost", Port: 6334, MaxMessageSize: 1024},
			wantErr: "scheme",
		},
		{
			name:    "port out of range",
			config:  &ClientConfig{Host: "localhost", Port: 70000, MaxMessageSize: 1024},
			wantErr: "invalid port",
		},
		{
			name:    "zero message size",
			config:  &ClientConfig{Host: "localhost", Port: 6334},
			wantErr: "max message size",
		},
		{
			name:    "negative retries",
			config:  &ClientConfig{Host: "localhost", Port: 6334, MaxMessageSize: 1, RetryAttempts: -1},
			wantErr: "retry attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"aborted", status.Error(codes.Aborted, "conflict"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "busy"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), false},
		{"not found", status.Error(codes.NotFound, "missing"), false},
		{"unauthenticated", status.Error(codes.Unauthenticated, "key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientError(tt.err))
		})
	}
}

func TestRetryOperation_DisabledByDefault(t *testing.T) {
	tl := logging.NewTestLogger()
	client := &GRPCClient{config: DefaultClientConfig(), logger: tl.Logger}

	calls := 0
	err := client.retryOperation(context.Background(), func() error {
		calls++
		return status.Error(codes.Unavailable, "down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Empty(t, tl.All())
}

func TestRetryOperation_Logging(t *testing.T) {
	type logLine struct {
		level   zapcore.Level
		message string
	}
	tests := []struct {
		name          string
		operation     func() error
		retryAttempts int
		wantCalls     int
		expectedLogs  []logLine
	}{
		{
			name:          "success needs no retry",
			operation:     func() error { return nil },
			retryAttempts: 1,
			wantCalls:     1,
		},
		{
			name: "transient error then success",
			operation: func() func() error {
				attempt := 0
				return func() error {
					attempt++
					if attempt == 1 {
						return status.Error(codes.Unavailable, "service unavailable")
					}
					return nil
				}
			}(),
			retryAttempts: 1,
			wantCalls:     2,
			expectedLogs: []logLine{
				{zapcore.DebugLevel, "retrying operation after transient error"},
				{zapcore.InfoLevel, "operation recovered after retries"},
			},
		},
		{
			name:          "retries exhausted",
			operation:     func() error { return status.Error(codes.Unavailable, "service unavailable") },
			retryAttempts: 1,
			wantCalls:     2,
			expectedLogs: []logLine{
				{zapcore.DebugLevel, "retrying operation after transient error"},
				{zapcore.WarnLevel, "operation failed after all retries exhausted"},
			},
		},
		{
			name:          "non-transient error is not retried",
			operation:     func() error { return status.Error(codes.InvalidArgument, "bad request") },
			retryAttempts: 3,
			wantCalls:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := logging.NewTestLogger()
			client := &GRPCClient{
				config: &ClientConfig{RetryAttempts: tt.retryAttempts},
				logger: tl.Logger,
			}

			calls := 0
			_ = client.retryOperation(context.Background(), func() error {
				calls++
				return tt.operation()
			})

			assert.Equal(t, tt.wantCalls, calls)
			for _, want := range tt.expectedLogs {
				tl.AssertLogged(t, want.level, want.message)
			}
			if len(tt.expectedLogs) == 0 {
				assert.Empty(t, tl.All())
			}
		})
	}
}

func TestRetryOperation_ContextCanceled(t *testing.T) {
	client := &GRPCClient{config: &ClientConfig{RetryAttempts: 3}, logger: logging.NewTestLogger().Logger}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.retryOperation(ctx, func() error {
		return status.Error(codes.Unavailable, "down")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotFound(t *testing.T) {
	assert.NoError(t, notFound(nil, "docs"))

	err := notFound(status.Error(codes.NotFound, "no such collection"), "docs")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.Contains(t, err.Error(), "docs")

	other := status.Error(codes.Internal, "oops")
	assert.Equal(t, other, notFound(other, "docs"))
}

func TestNewGRPCClient_InvalidConfig(t *testing.T) {
	_, err := NewGRPCClient(context.Background(), &ClientConfig{Host: "localhost", Port: -1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestPointIDString(t *testing.T) {
	assert.Equal(t, "", PointIDString(nil))
	assert.Equal(t, "42", PointIDString(qdrant.NewIDNum(42)))
	assert.Equal(t, "6f1c3e02-7a0b-4b57-9d6c-0a3b7f1e2d45",
		PointIDString(qdrant.NewIDUUID("6f1c3e02-7a0b-4b57-9d6c-0a3b7f1e2d45")))
}

func TestPayloadMap(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"page_content": "alpha",
		"page":         7,
		"score":        0.5,
		"draft":        false,
		"tags":         []any{"a", "b"},
		"author":       map[string]any{"name": "x"},
		"missing":      nil,
	})

	got := PayloadMap(payload)
	assert.Equal(t, "alpha", got["page_content"])
	assert.Equal(t, int64(7), got["page"])
	assert.Equal(t, 0.5, got["score"])
	assert.Equal(t, false, got["draft"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	assert.Equal(t, map[string]any{"name": "x"}, got["author"])
	assert.Nil(t, got["missing"])
}

func TestDenseVector(t *testing.T) {
	assert.Nil(t, DenseVector(nil))
	assert.Equal(t, []float32{1, 2, 3}, DenseVector(qdrant.NewVectors(1, 2, 3)))
}
