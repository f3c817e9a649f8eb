package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aelexs/messaging-gateway/internal/observability"
)

func TestRedactingHandler(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		shouldRedact bool
	}{
		{"api_key is redacted", "api_key", "secret123", true},
		{"ApiKey is redacted", "ApiKey", "afk-123", true},
		{"auth_token is redacted", "auth_token", "token123", true},
		{"twilio_auth_token is redacted", "twilio_auth_token", "tw-abc", true},
		{"password is redacted", "password", "mysecret", true},
		{"authorization is redacted", "authorization", "Basic xyz", true},
		{"otp_code is redacted", "otp_code", "482913", true},
		{"aws_secret_access_key is redacted", "aws_secret_access_key", "AKIA...", true},
		{"response_code not redacted", "response_code", "402", false},
		{"phone not redacted", "phone", "***3456", false},
		{"message not redacted", "message", "hello world", false},
		{"error not redacted", "error", "something failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(observability.NewRedactingHandler(&buf, nil))

			logger.Info("test", tt.key, tt.value)
			output := buf.String()

			if tt.shouldRedact {
				assert.Contains(t, output, "[REDACTED]", "expected %s to be redacted", tt.key)
				assert.NotContains(t, output, tt.value, "expected actual value to not appear for %s", tt.key)
			} else {
				assert.Contains(t, output, tt.value, "expected %s value to appear", tt.key)
				assert.NotContains(t, output, "[REDACTED]", "expected %s to not be redacted", tt.key)
			}
		})
	}
}

func TestRedactingHandler_MasksRecipients(t *testing.T) {
	tests := []struct {
		name string
		key  string
		in   string
		want string
	}{
		{"raw recipient is masked", "recipient", "22890123456", "***3456"},
		{"raw to is masked", "to", "whatsapp:+22890123456", "***3456"},
		{"already masked is kept", "phone", "***3456", "***3456"},
		{"short number is fully masked", "msisdn", "123", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(observability.NewRedactingHandler(&buf, nil))

			logger.Info("test", tt.key, tt.in)

			assert.Contains(t, buf.String(), `"`+tt.key+`":"`+tt.want+`"`)
			if tt.in != tt.want {
				assert.NotContains(t, buf.String(), tt.in)
			}
		})
	}
}

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := observability.InitLogger(observability.LogConfig{
		Level:       "warn",
		Format:      "text",
		ServiceName: "messagingd",
		Environment: "test",
		Output:      &buf,
	})

	logger.Info("dropped")
	logger.Warn("kept", "api_key", "afk-1", "recipient", "22890123456")

	out := buf.String()
	assert.Contains(t, out, "recipient=***3456")
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "service=messagingd")
	assert.NotContains(t, out, "afk-1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, observability.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, observability.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, observability.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, observability.ParseLevel("bogus"))
}

func TestWithTraceID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Run("no span leaves logger unchanged", func(t *testing.T) {
		buf.Reset()
		observability.WithTraceID(context.Background(), base).Info("x")
		assert.NotContains(t, buf.String(), "trace_id")
	})

	t.Run("active span adds trace id", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()
		ctx, span := tp.Tracer("test").Start(context.Background(), "span")
		defer span.End()

		buf.Reset()
		observability.WithTraceID(ctx, base).Info("x")
		assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
	})
}
