package pgvector

import (
	"context"
	"database/sql"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Process-wide registry of initialized collection handles, keyed by index
// name. Concurrent first calls for the same name share one in-flight
// initialization instead of racing to create the table twice.
var (
	registryMu sync.Mutex
	registry   = map[string]*Store{}
	initGroup  singleflight.Group
)

// Collection returns the shared handle for the named index, creating the
// table and its HNSW index on first use.
func Collection(ctx context.Context, db *sql.DB, embedder Embedder, name string, cfg CollectionConfig) (*Store, error) {
	registryMu.Lock()
	if s, ok := registry[name]; ok {
		registryMu.Unlock()
		return s, nil
	}
	registryMu.Unlock()

	v, err, _ := initGroup.Do(name, func() (any, error) {
		registryMu.Lock()
		if s, ok := registry[name]; ok {
			registryMu.Unlock()
			return s, nil
		}
		registryMu.Unlock()

		s := NewStore(db, embedder, name, cfg)
		if err := s.ensureSchema(ctx); err != nil {
			return nil, err
		}

		registryMu.Lock()
		registry[name] = s
		registryMu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// ResetRegistry drops all cached handles. Tests only.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]*Store{}
}
