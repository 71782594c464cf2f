package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"archivo"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"archivo"`

	// Name of the vector index table. One collection handle is kept per
	// index name for the lifetime of the process.
	IndexName string `envconfig:"INDEX_NAME" default:"search_index_documents"`

	// Embedding provider: "openai" or "gemini".
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`

	// Re-ranking provider: "cohere", "jina" or "" (disabled).
	RerankProvider string `envconfig:"RERANK_PROVIDER" default:"cohere"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`

	// DOCX -> HTML conversion sidecar.
	DoclingURL string `envconfig:"DOCLING_URL" default:"http://docling:8000"`

	// Chunking and relocation parameters.
	ChunkSize         int `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap      int `envconfig:"CHUNK_OVERLAP" default:"400"`
	RelocOverlapWords int `envconfig:"RELOC_OVERLAP_WORDS" default:"10"`

	// Async ingestion over NSQ. When disabled, indexing runs inline in the
	// HTTP request.
	EnableIngestWorker bool   `envconfig:"ENABLE_INGEST_WORKER" default:"false"`
	NSQLookupd         string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost           string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP           string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Server
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	BaseURL       string `envconfig:"BASE_URL" default:"http://localhost:8081"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; a missing .env is not an error.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.IndexName == "" {
		return fmt.Errorf("%w: INDEX_NAME", ErrMissingRequired)
	}
	switch c.EmbeddingProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER must be openai or gemini", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be non-negative and smaller than CHUNK_SIZE", ErrMissingRequired)
	}
	return nil
}
