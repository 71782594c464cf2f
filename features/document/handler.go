package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"archivo/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		Type     string `json:"type"`
		HTMLText string `json:"html_text"`
		MediaURL string `json:"media_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Title is required", http.StatusBadRequest)
		return
	}
	switch req.Type {
	case "text", "html", "pdf", "docx":
	default:
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Type must be one of text, html, pdf, docx", http.StatusBadRequest)
		return
	}
	if (req.Type == "pdf" || req.Type == "docx") && req.MediaURL == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "media_url is required for pdf and docx documents", http.StatusBadRequest)
		return
	}
	if (req.Type == "text" || req.Type == "html") && req.HTMLText == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "html_text is required for text and html documents", http.StatusBadRequest)
		return
	}

	doc := &Document{
		Title:    req.Title,
		Type:     req.Type,
		HTMLText: req.HTMLText,
		MediaURL: req.MediaURL,
	}
	if err := h.service.Create(r.Context(), doc); err != nil {
		slog.ErrorContext(r.Context(), "failed to create document", "error", err, "title", req.Title)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if docs == nil {
		docs = []Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.EnqueueIndex(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(r.Context(), "indexing failed", "error", err, "document_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Indexing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Pages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Ranges []string `json:"ranges"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	excerpts, err := h.service.ContentByPageRanges(r.Context(), id, req.Ranges)
	if err != nil {
		h.writeExtractionError(r.Context(), w, id, err)
		return
	}
	if excerpts == nil {
		excerpts = []PageExcerpt{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": excerpts}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	from, err := strconv.Atoi(r.URL.Query().Get("pos_from"))
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "pos_from must be an integer", http.StatusBadRequest)
		return
	}
	to, err := strconv.Atoi(r.URL.Query().Get("pos_to"))
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "pos_to must be an integer", http.StatusBadRequest)
		return
	}

	excerpt, err := h.service.ContentByCharRange(r.Context(), id, from, to)
	if err != nil {
		h.writeExtractionError(r.Context(), w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": excerpt}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeExtractionError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
	case errors.Is(err, ErrWrongDocumentType):
		h.writeError(ctx, w, "WRONG_DOCUMENT_TYPE", err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidRange):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "extraction failed", "error", err, "document_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Extraction failed", http.StatusInternalServerError)
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
