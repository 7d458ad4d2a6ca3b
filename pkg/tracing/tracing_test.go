package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withRecorder installs an in-memory provider for the duration of the test.
func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "chatgate", cfg.ServiceName)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerURL)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tp.Enabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceStoreOperation(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := TraceStoreOperation(context.Background(), "add", "rooms/r1/messages")
	assert.NotEmpty(t, TraceID(ctx))
	RecordError(ctx, errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "store.add", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), CollectionKey.String("rooms/r1/messages"))
	assert.Contains(t, ended[0].Attributes(), OperationKey.String("add"))
}

func TestTraceTokenRequest(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := TraceTokenRequest(context.Background(), "Alice")
	MeasureDuration(ctx, time.Now().Add(-5*time.Millisecond))
	AddSpanAttributes(ctx, attribute.Bool("ok", true))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "video.token_request", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), IdentityKey.String("Alice"))
	assert.Contains(t, ended[0].Attributes(), attribute.Bool("ok", true))
}

func TestRecordErrorNil(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := TraceWebSocketMessage(context.Background(), "chat_message", "u1")
	RecordError(ctx, nil)
	span.End()

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, codes.Unset, rec.Ended()[0].Status().Code)
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}
