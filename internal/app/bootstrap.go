package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"archivo/internal/adapter/gemini"
	"archivo/internal/adapter/openai"
	"archivo/internal/config"
	"archivo/internal/pgvector"
	"archivo/internal/worker"
)

type Dependencies struct {
	DB          *sql.DB
	Store       *pgvector.Store
	NSQProducer *nsq.Producer
}

// Bootstrap opens the database, runs migrations, initializes the vector
// index, and, when the ingest worker is enabled, builds the NSQ producer.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	embedder, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := CollectionWithRetry(ctx, db, embedder, cfg.IndexName, cfg.BootstrapRetryAttempts, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("vector index init error: %w", err)
	}

	deps := &Dependencies{DB: db, Store: store}

	if cfg.EnableIngestWorker {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

// NewEmbedder selects the embedding provider from config.
func NewEmbedder(ctx context.Context, cfg *config.Config) (pgvector.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "gemini":
		return gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	default:
		return openai.NewEmbedder(cfg.OpenAIAPIKey), nil
	}
}

// CollectionWithRetry rides out the window where postgres accepts
// connections but the vector extension is not installable yet.
func CollectionWithRetry(ctx context.Context, db *sql.DB, embedder pgvector.Embedder, name string, attempts int, delay time.Duration) (*pgvector.Store, error) {
	var (
		store *pgvector.Store
		err   error
	)
	for i := 0; i < attempts; i++ {
		if store, err = pgvector.Collection(ctx, db, embedder, name, pgvector.CollectionConfig{Dimensions: openai.Dimensions}); err == nil {
			return store, nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return nil, err
}

// NSQ creates topics lazily on publish, but consumers querying lookupd fail
// until the topic exists. Pre-create it over nsqd's HTTP API.
func createTopics(nsqdHTTP string) {
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, worker.TopicIngestTask)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", worker.TopicIngestTask, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}()
}
