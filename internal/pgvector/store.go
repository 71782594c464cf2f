package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"archivo/internal/text"
)

var (
	// ErrUnavailable wraps failures to reach or initialize the index table.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrMetadataCountMismatch is returned when a metadata merge/replace
	// matches any row count other than exactly one. The transaction is
	// rolled back, leaving all rows untouched.
	ErrMetadataCountMismatch = errors.New("metadata update row count mismatch")
)

// refIDKey is the metadata key tying every record back to its owning
// document. Upsert guarantees each record carries exactly one value for it.
const refIDKey = "ref_id"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CollectionConfig is fixed at first initialization of an index name.
type CollectionConfig struct {
	Dimensions         int
	HNSWM              int
	HNSWEfConstruction int
}

func (c CollectionConfig) withDefaults() CollectionConfig {
	if c.Dimensions == 0 {
		c.Dimensions = 1536
	}
	if c.HNSWM == 0 {
		c.HNSWM = 16
	}
	if c.HNSWEfConstruction == 0 {
		c.HNSWEfConstruction = 64
	}
	return c
}

// Store is a handle to one pgvector-backed index table.
type Store struct {
	db       *sql.DB
	embedder Embedder
	table    string
	cfg      CollectionConfig
}

// NewStore builds an uninitialized handle. Production code goes through
// Collection, which also creates the table and HNSW index once per process.
func NewStore(db *sql.DB, embedder Embedder, table string, cfg CollectionConfig) *Store {
	return &Store{db: db, embedder: embedder, table: table, cfg: cfg.withDefaults()}
}

// Name returns the index (table) name this handle writes to.
func (s *Store) Name() string {
	return s.table
}

// RecordID derives the deterministic id of one chunk's record, so that
// re-ingesting unchanged content overwrites rather than accumulates.
func RecordID(index, refID string, ordinal int) string {
	return fmt.Sprintf("doc:%s:%s:%d", index, refID, ordinal)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	table := pq.QuoteIdentifier(s.table)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			vector vector(%d),
			content text NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb
		)`, table, s.cfg.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (vector vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			pq.QuoteIdentifier(s.table+"_vector_idx"), table, s.cfg.HNSWM, s.cfg.HNSWEfConstruction),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, s.table, err)
		}
	}
	return nil
}

// Upsert embeds each chunk and writes one record per chunk. Record ids are
// derived from the chunk ordinal; same id replaces same id.
func (s *Store) Upsert(ctx context.Context, refID string, chunks []text.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", refID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`INSERT INTO %s (id, vector, content, metadata) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET vector = EXCLUDED.vector, content = EXCLUDED.content, metadata = EXCLUDED.metadata`,
		pq.QuoteIdentifier(s.table))

	for _, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("embed chunk %d of %s: %w", chunk.Ordinal, refID, err)
		}

		metadata := make(map[string]any, len(chunk.Metadata)+1)
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}
		metadata[refIDKey] = refID

		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", refID, err)
		}

		id := RecordID(s.table, refID, chunk.Ordinal)
		if _, err := tx.ExecContext(ctx, query, id, pgv.NewVector(vec), chunk.Content, raw); err != nil {
			return fmt.Errorf("upsert record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert %s: %w", refID, err)
	}

	slog.InfoContext(ctx, "chunks upserted", "index", s.table, "ref_id", refID, "count", len(chunks))
	return nil
}

// DeleteByReference removes every record carrying refID and returns the
// removed count. Zero is a valid result, not an error.
func (s *Store) DeleteByReference(ctx context.Context, refID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE metadata->>'%s' = $1`, pq.QuoteIdentifier(s.table), refIDKey)
	res, err := s.db.ExecContext(ctx, query, refID)
	if err != nil {
		return 0, fmt.Errorf("delete by reference %s: %w", refID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete by reference %s: %w", refID, err)
	}
	slog.InfoContext(ctx, "records deleted", "index", s.table, "ref_id", refID, "count", n)
	return n, nil
}

// MergeMetadata deep-merges patch into the metadata of the single record
// matching refID. Restricted to documents indexed as one chunk: any matched
// row count other than one is a contract violation and rolls back.
func (s *Store) MergeMetadata(ctx context.Context, refID string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch for %s: %w", refID, err)
	}
	query := fmt.Sprintf(`UPDATE %s SET metadata = metadata || $1::jsonb WHERE metadata->>'%s' = $2`,
		pq.QuoteIdentifier(s.table), refIDKey)
	return s.guardedUpdate(ctx, refID, query, raw)
}

// ReplaceMetadata fully overwrites the metadata of the single record matching
// refID. The ref id key is re-applied so the record stays reachable by
// reference after the overwrite. Same single-row invariant as MergeMetadata.
func (s *Store) ReplaceMetadata(ctx context.Context, refID string, metadata map[string]any) error {
	replacement := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		replacement[k] = v
	}
	replacement[refIDKey] = refID

	raw, err := json.Marshal(replacement)
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", refID, err)
	}
	query := fmt.Sprintf(`UPDATE %s SET metadata = $1::jsonb WHERE metadata->>'%s' = $2`,
		pq.QuoteIdentifier(s.table), refIDKey)
	return s.guardedUpdate(ctx, refID, query, raw)
}

func (s *Store) guardedUpdate(ctx context.Context, refID, query string, raw []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update metadata for %s: %w", refID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, query, raw, refID)
	if err != nil {
		return fmt.Errorf("update metadata for %s: %w", refID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update metadata for %s: %w", refID, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: expected 1 record, matched %d for %s=%s", ErrMetadataCountMismatch, n, refIDKey, refID)
	}
	return tx.Commit()
}

// Hit is one similarity-search candidate, nearest first.
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float64
}

// SimilaritySearch embeds the query and returns up to k nearest records by
// cosine distance, optionally restricted by a metadata containment filter.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, filter map[string]any) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	table := pq.QuoteIdentifier(s.table)
	var rows *sql.Rows
	if len(filter) > 0 {
		rawFilter, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		stmt := fmt.Sprintf(`SELECT id, content, metadata, vector <=> $1 AS distance FROM %s WHERE metadata @> $2::jsonb ORDER BY distance LIMIT $3`, table)
		rows, err = s.db.QueryContext(ctx, stmt, pgv.NewVector(vec), rawFilter, k)
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
	} else {
		stmt := fmt.Sprintf(`SELECT id, content, metadata, vector <=> $1 AS distance FROM %s ORDER BY distance LIMIT $2`, table)
		rows, err = s.db.QueryContext(ctx, stmt, pgv.NewVector(vec), k)
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit Hit
			raw []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Content, &raw, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if err := json.Unmarshal(raw, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", hit.ID, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}
