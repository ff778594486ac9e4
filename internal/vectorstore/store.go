// Package vectorstore defines the backend-polymorphic persistence
// contract for embedded chunks. Implementations live in subpackages
// and are selected by backends.Open.
package vectorstore

import (
	"context"

	"ragkit/internal/models"
)

// QueryOptions shapes a nearest-neighbor query. ScoreThreshold is a
// pushdown hint; callers re-validate client-side because not every
// backend honors it natively.
type QueryOptions struct {
	TopK           int
	ScoreThreshold float64
	Filters        map[string]string
}

// Store is the uniform contract over all backends.
//
// Upsert is idempotent on record id. Query returns at most TopK results
// in descending similarity; ties break toward the most recently
// upserted record. Delete of an unknown id is a no-op. Connectivity
// failures surface as *ragerr.BackendUnavailableError and dimension
// mismatches as *ragerr.InvalidVectorError.
type Store interface {
	Upsert(ctx context.Context, collection string, records []models.VectorRecord) (int, error)
	Query(ctx context.Context, collection string, vector []float32, opts QueryOptions) ([]models.SearchResult, error)
	Delete(ctx context.Context, collection string, ids []string) (int, error)
	Health(ctx context.Context) error
	Close()
}
