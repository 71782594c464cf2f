package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"archivo/features/document"
	"archivo/features/search"
	"archivo/internal/adapter/docling"
	"archivo/internal/adapter/pdftext"
	"archivo/internal/adapter/reranker"
	"archivo/internal/config"
	"archivo/internal/loader"
	"archivo/internal/middleware"
	"archivo/internal/pgvector"
	"archivo/internal/retrieval"
	"archivo/internal/worker"
)

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	IngestConsumer  *worker.IngestConsumer

	port int
}

func New(cfg *config.Config, db *sql.DB, store *pgvector.Store, taskPub document.EventPublisher) (*App, error) {
	doclingClient := docling.NewClient(cfg.DoclingURL)
	docLoader := loader.New(doclingClient, pdftext.Parser{})

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, docLoader, store,
		taskPub, cfg.ChunkSize, cfg.ChunkOverlap, cfg.RelocOverlapWords)
	documentHandler := document.NewHandler(documentService)

	// Feature: Search
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	var rerankClient retrieval.Reranker
	if cfg.RerankProvider != "" {
		rerankClient = reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey)
	}
	retrievalService := retrieval.NewService(store, rerankClient, cfg.BaseURL, queryLogger)
	searchHandler := search.NewHandler(retrievalService)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Create)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	mux.Handle("POST /documents/{id}/index", middleware.CorrelationID(enableCORS(documentHandler.Index)))
	mux.Handle("POST /documents/{id}/pages", middleware.CorrelationID(enableCORS(documentHandler.Pages)))
	mux.Handle("GET /documents/{id}/content", middleware.CorrelationID(enableCORS(documentHandler.Content)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mux,
		DocumentService: documentService,
		IngestConsumer:  worker.NewIngestConsumer(documentService),
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
