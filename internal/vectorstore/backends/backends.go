// Package backends constructs the configured vector store
// implementation. It sits outside package vectorstore so the backends
// can depend on the Store contract without a cycle.
package backends

import (
	"context"
	"fmt"
	"strings"

	"ragkit/internal/config"
	"ragkit/internal/vectorstore"
	"ragkit/internal/vectorstore/memory"
	"ragkit/internal/vectorstore/pgvector"
	"ragkit/internal/vectorstore/qdrant"
)

// Open returns the store named by cfg.VectorStore: "memory",
// "pgvector" or "qdrant".
func Open(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VectorStore)) {
	case "", "memory":
		return memory.NewStore(), nil
	case "pgvector", "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("pgvector backend requires RAGKIT_POSTGRES_URL")
		}
		store, err := pgvector.NewStore(ctx, cfg.PostgresURL, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "qdrant":
		if cfg.QdrantURL == "" {
			return nil, fmt.Errorf("qdrant backend requires RAGKIT_QDRANT_URL")
		}
		return qdrant.NewStore(cfg.QdrantURL, cfg.QdrantKey), nil
	default:
		return nil, fmt.Errorf("unsupported vector store: %s", cfg.VectorStore)
	}
}
