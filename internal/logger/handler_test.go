package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivo/internal/middleware"
)

func TestContextHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := middleware.WithCorrelationID(context.Background(), "test-correlation-id")
	logger.InfoContext(ctx, "indexing document")

	var logMap map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logMap))
	assert.Equal(t, "test-correlation-id", logMap["correlation_id"])
}

func TestContextHandler_NoCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "indexing document")

	var logMap map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logMap))
	_, present := logMap["correlation_id"]
	assert.False(t, present)
}
