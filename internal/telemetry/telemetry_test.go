package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/ragdex/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	tel, err := New(context.Background(), cfg, WithTraceExporter(exp))
	require.NoError(t, err)
	require.True(t, tel.IsEnabled())

	_, span := otel.Tracer("ragdex.vectorstore.chromem").Start(context.Background(), "ChromemStore.Count")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))

	// The in-memory exporter drops its spans on shutdown, so read first.
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "ChromemStore.Count", spans[0].Name)
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("service.name", "ragdex"))

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"local grpc", func(*Config) {}, ""},
		{"ipv6 loopback", func(c *Config) { c.Endpoint = "[::1]:4317" }, ""},
		{"remote insecure", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure"},
		{"remote tls", func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }, ""},
		{"missing service", func(c *Config) { c.ServiceName = "" }, "service_name"},
		{"bad protocol", func(c *Config) { c.Protocol = "thrift" }, "protocol"},
		{"bad sample rate", func(c *Config) { c.SampleRate = 2 }, "sample_rate"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromObservability(t *testing.T) {
	tests := []struct {
		name         string
		in           config.ObservabilityConfig
		wantProtocol string
		wantInsecure bool
		wantEndpoint string
	}{
		{"grpc host port", config.ObservabilityConfig{OTLPEndpoint: "localhost:4317"}, ProtocolGRPC, true, "localhost:4317"},
		{"http url", config.ObservabilityConfig{OTLPEndpoint: "http://localhost:4318"}, ProtocolHTTP, true, "http://localhost:4318"},
		{"https url", config.ObservabilityConfig{OTLPEndpoint: "https://otel.example.com"}, ProtocolHTTP, false, "https://otel.example.com"},
		{"empty keeps default", config.ObservabilityConfig{}, ProtocolGRPC, true, "localhost:4317"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.EnableTelemetry = true
			tt.in.ServiceName = "svc"
			cfg := FromObservability(tt.in)
			assert.True(t, cfg.Enabled)
			assert.Equal(t, "svc", cfg.ServiceName)
			assert.Equal(t, tt.wantProtocol, cfg.Protocol)
			assert.Equal(t, tt.wantInsecure, cfg.Insecure)
			assert.Equal(t, tt.wantEndpoint, cfg.Endpoint)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	_, span := tt.Tracer("test").Start(context.Background(), "QdrantStore.Delete")
	span.SetAttributes(attribute.String("store.backend", "qdrant"))
	span.End()

	tt.AssertSpanExists(t, "QdrantStore.Delete")
	tt.AssertSpanAttribute(t, "QdrantStore.Delete", "store.backend", "qdrant")
	assert.Nil(t, tt.SpanByName("missing"))
}
