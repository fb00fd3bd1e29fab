package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestContext(t *testing.T) {
	t.Run("carries every field", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), `"abc"`, "echo/index")
		tc := FromContext(ctx)

		_, err := uuid.Parse(tc.TraceID)
		assert.NoError(t, err)
		assert.Equal(t, `"abc"`, tc.RequestID)
		assert.Equal(t, "echo/index", tc.Plugin)
	})

	t.Run("omits empty fields", func(t *testing.T) {
		ctx := NewRequestContext(context.Background(), "", "")
		tc := FromContext(ctx)

		assert.NotEmpty(t, tc.TraceID)
		assert.Empty(t, tc.RequestID)
		assert.Empty(t, tc.Plugin)
	})

	t.Run("fresh trace per request", func(t *testing.T) {
		a := GetTraceID(NewRequestContext(context.Background(), "1", ""))
		b := GetTraceID(NewRequestContext(context.Background(), "1", ""))
		assert.NotEqual(t, a, b)
	})
}

func TestFromContext_Empty(t *testing.T) {
	assert.Equal(t, &TraceContext{}, FromContext(context.Background()))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithRequestID(WithTraceID(context.Background(), "t-1"), "7")
	lg := Logger(ctx, base)
	lg.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "t-1", entry["trace_id"])
	assert.Equal(t, "7", entry["request_id"])
	assert.NotContains(t, entry, "plugin")
}
