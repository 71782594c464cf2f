package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"archivo/internal/middleware"
	"archivo/internal/retrieval"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, opts *retrieval.Options) ([]retrieval.Hit, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(retriever Retriever) *Handler {
	return &Handler{retriever: retriever}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string         `json:"query"`
		K      int            `json:"k"`
		Filter map[string]any `json:"filter"`
		Rerank bool           `json:"rerank"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}

	hits, err := h.retriever.Retrieve(r.Context(), req.Query, &retrieval.Options{
		K:      req.K,
		Filter: req.Filter,
		Rerank: req.Rerank,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "search failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []retrieval.Hit{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": hits,
		"meta": map[string]int{"count": len(hits)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
