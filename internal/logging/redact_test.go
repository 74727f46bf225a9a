package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragdex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeEntry(t *testing.T, enc zapcore.Encoder, fields ...zap.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "test"}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoder_SensitiveKeys(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encodeEntry(t, enc,
		zap.String("api_key", "qd-secret-123"),
		zap.String("API_KEY", "qd-secret-456"),
		zap.String("collection", "ragdex"),
	)
	assert.NotContains(t, out, "qd-secret-123")
	assert.NotContains(t, out, "qd-secret-456")
	assert.Contains(t, out, `"collection":"ragdex"`)
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encodeEntry(t, enc, zap.String("header", "Bearer abc.def.ghi"))
	assert.NotContains(t, out, "abc.def.ghi")
	assert.Contains(t, out, "[REDACTED:pattern]")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: false})
	require.NoError(t, err)

	out := encodeEntry(t, enc, zap.String("api_key", "visible"))
	assert.Contains(t, out, "visible")
}

func TestRedactingEncoder_Clone(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	clone := enc.Clone()
	out := encodeEntry(t, clone, zap.String("token", "t0k3n"))
	assert.NotContains(t, out, "t0k3n")
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"[a-"}})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "connecting", Secret("api_key", config.Secret("abcdef")), Secret("password", ""))

	tl.AssertField(t, "connecting", "api_key", "[REDACTED:6]")
	tl.AssertField(t, "connecting", "password", "")
	tl.AssertNoSecrets(t)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("token", "12345")
	assert.Equal(t, "[REDACTED:5]", f.String)
}

func TestRedactingEncoder_ContextFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	ctxEnc := enc.Clone()
	zap.String("token", "ctx-secret").AddTo(ctxEnc)
	out := encodeEntry(t, ctxEnc, zap.String("collection", "ragdex"))
	assert.NotContains(t, out, "ctx-secret")
	assert.Contains(t, out, `"collection":"ragdex"`)
}

func TestRedactingEncoder_LeavesCallerFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	fields := []zap.Field{zap.String("api_key", "k"), zap.Int("count", 3)}
	out := encodeEntry(t, enc, fields...)
	assert.Contains(t, out, `"count":3`)
	assert.Equal(t, "k", fields[0].String, "input fields are not rewritten in place")
}

func TestRedactingEncoder_Core(t *testing.T) {
	cfg := NewDefaultConfig()
	enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), cfg.Level))
	logger.With(zap.String("authorization", "Bearer xyz")).Info("connecting",
		zap.String("api_key", "qd-live-key"),
		zap.ByteString("header", []byte("Bearer abc")),
	)
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "qd-live-key")
	assert.NotContains(t, out, "xyz")
	assert.NotContains(t, out, "Bearer abc")
	assert.Contains(t, out, "connecting")
}
