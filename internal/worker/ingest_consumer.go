package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"archivo/internal/middleware"
)

// Indexer runs the full ingest pipeline for one document record.
type Indexer interface {
	IndexByID(ctx context.Context, id string) error
}

// IngestConsumer drains ingest.task and indexes the referenced documents.
type IngestConsumer struct {
	indexer Indexer
}

func NewIngestConsumer(indexer Indexer) *IngestConsumer {
	return &IngestConsumer{indexer: indexer}
}

// HandleMessage satisfies the nsq handler contract. Malformed messages are
// dropped rather than retried; indexing failures return the error so nsq
// requeues the task.
func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid ingest task message, dropping", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.DocumentID == "" {
		slog.ErrorContext(ctx, "ingest task missing document id, dropping")
		return nil
	}

	slog.InfoContext(ctx, "ingest task received", "document_id", payload.DocumentID)

	if err := h.indexer.IndexByID(ctx, payload.DocumentID); err != nil {
		slog.ErrorContext(ctx, "indexing failed", "document_id", payload.DocumentID, "error", err)
		return err
	}

	slog.InfoContext(ctx, "ingest task completed", "document_id", payload.DocumentID)
	return nil
}
