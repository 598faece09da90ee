package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNewWithWriter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter("checkout-api", "info", &buf), "checkout")

	l.Info("order committed", "order_id", 42)

	m := decode(t, &buf)
	assert.Equal(t, "checkout-api", m["service"])
	assert.Equal(t, "checkout", m["component"])
	assert.Equal(t, "order committed", m["msg"])
	assert.Equal(t, float64(42), m["order_id"])
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("svc", "warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestRequestIDContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter("svc", "info", &buf)
	ctx := WithRequestID(context.Background(), "req-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	FromContext(ctx, base).Info("hello")

	assert.Equal(t, "req-1", decode(t, &buf)["request_id"])
}

func TestFromContext_Stored(t *testing.T) {
	var buf bytes.Buffer
	stored := NewWithWriter("stored", "info", &buf)
	ctx := NewContext(context.Background(), stored)

	FromContext(ctx, Discard()).Info("x")

	assert.Equal(t, "stored", decode(t, &buf)["service"])
}
