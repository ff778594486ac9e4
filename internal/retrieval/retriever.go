// Package retrieval embeds a query and ranks stored chunks against it.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore"
)

// SearchParams tunes a single search. A nil SimilarityThreshold falls
// back to the configured default; an explicit zero disables threshold
// filtering even when a default is configured.
type SearchParams struct {
	TopK                int
	SimilarityThreshold *float64
	Filters             map[string]string
}

type Retriever struct {
	manager    *providers.Manager
	store      vectorstore.Store
	collection string

	defaultTopK      int
	defaultThreshold float64
}

func NewRetriever(manager *providers.Manager, store vectorstore.Store, collection string, defaultTopK int, defaultThreshold float64) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		manager:          manager,
		store:            store,
		collection:       collection,
		defaultTopK:      defaultTopK,
		defaultThreshold: defaultThreshold,
	}
}

// Search embeds the query and returns up to TopK chunks at or above the
// similarity threshold, best first. An empty result is a valid answer,
// not an error.
func (r *Retriever) Search(ctx context.Context, query string, p SearchParams) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ragerr.ConfigurationError{Reason: "query must not be empty"}
	}
	if p.TopK == 0 {
		p.TopK = r.defaultTopK
	}
	if p.TopK < 0 {
		return nil, &ragerr.ConfigurationError{Reason: fmt.Sprintf("top_k must be positive, got %d", p.TopK)}
	}
	threshold := r.defaultThreshold
	if p.SimilarityThreshold != nil {
		threshold = *p.SimilarityThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, &ragerr.ConfigurationError{Reason: fmt.Sprintf("similarity_threshold must be in [0, 1], got %g", threshold)}
	}

	provider, ref := r.manager.FirstEmbedProvider()
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: "query",
		Inputs:    []string{query},
		Dimension: r.manager.EmbedDim(),
	})
	if err != nil {
		return nil, &ragerr.EmbeddingError{Provider: ref.Name, Err: err}
	}
	if len(vectors) != 1 {
		return nil, &ragerr.EmbeddingError{Provider: info.Name, Err: fmt.Errorf("expected 1 vector, got %d", len(vectors))}
	}

	results, err := r.store.Query(ctx, r.collection, vectors[0], vectorstore.QueryOptions{
		TopK:           p.TopK,
		ScoreThreshold: threshold,
		Filters:        p.Filters,
	})
	if err != nil {
		return nil, err
	}

	// The threshold is only a pushdown hint, so re-validate here when
	// one applies.
	filtered := results[:0]
	for _, res := range results {
		if threshold > 0 && res.Score < threshold {
			continue
		}
		filtered = append(filtered, res)
	}
	if len(filtered) > p.TopK {
		filtered = filtered[:p.TopK]
	}
	return filtered, nil
}
