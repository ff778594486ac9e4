package retrieval

import (
	"context"
	"testing"

	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore/memory"

	"github.com/stretchr/testify/require"
)

const dim = 32

func threshold(v float64) *float64 { return &v }

func seedStore(t *testing.T, texts ...string) (*Retriever, *memory.Store) {
	t.Helper()
	m, err := providers.NewManager("mock", "mock", dim)
	require.NoError(t, err)
	store := memory.NewStore()

	p, _ := m.FirstEmbedProvider()
	vectors, _, err := p.Embed(context.Background(), providers.EmbedRequest{Inputs: texts, Dimension: dim})
	require.NoError(t, err)

	records := make([]models.VectorRecord, 0, len(texts))
	for i, text := range texts {
		records = append(records, models.VectorRecord{
			ID:         "doc:" + string(rune('0'+i)),
			DocumentID: "doc",
			Vector:     vectors[i],
			Text:       text,
		})
	}
	_, err = store.Upsert(context.Background(), "chunks", records)
	require.NoError(t, err)

	return NewRetriever(m, store, "chunks", 5, 0), store
}

func TestSearchFindsExactText(t *testing.T) {
	r, _ := seedStore(t, "the mitochondria is the powerhouse", "unrelated filler text", "another chunk entirely")

	results, err := r.Search(context.Background(), "the mitochondria is the powerhouse", SearchParams{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "the mitochondria is the powerhouse", results[0].Text)
	require.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestSearchDeterministicAcrossRuns(t *testing.T) {
	r, _ := seedStore(t, "alpha", "beta", "gamma", "delta")

	first, err := r.Search(context.Background(), "alpha beta", SearchParams{TopK: 4})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Search(context.Background(), "alpha beta", SearchParams{TopK: 4})
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestSearchEmptyResultIsValid(t *testing.T) {
	r, _ := seedStore(t, "something")

	results, err := r.Search(context.Background(), "query", SearchParams{TopK: 3, SimilarityThreshold: threshold(0.999)})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchValidatesParams(t *testing.T) {
	r, _ := seedStore(t, "something")
	var cfgErr *ragerr.ConfigurationError

	_, err := r.Search(context.Background(), "   ", SearchParams{})
	require.ErrorAs(t, err, &cfgErr)

	_, err = r.Search(context.Background(), "q", SearchParams{TopK: -1})
	require.ErrorAs(t, err, &cfgErr)

	_, err = r.Search(context.Background(), "q", SearchParams{SimilarityThreshold: threshold(1.5)})
	require.ErrorAs(t, err, &cfgErr)
}

func TestSearchExplicitZeroThresholdOverridesDefault(t *testing.T) {
	m, err := providers.NewManager("mock", "mock", dim)
	require.NoError(t, err)
	store := memory.NewStore()

	p, _ := m.FirstEmbedProvider()
	vectors, _, err := p.Embed(context.Background(), providers.EmbedRequest{Inputs: []string{"orthogonal chunk"}, Dimension: dim})
	require.NoError(t, err)
	_, err = store.Upsert(context.Background(), "chunks", []models.VectorRecord{
		{ID: "doc:0", DocumentID: "doc", Vector: vectors[0], Text: "orthogonal chunk"},
	})
	require.NoError(t, err)

	r := NewRetriever(m, store, "chunks", 5, 0.9)

	// The configured default hides the weakly similar chunk.
	results, err := r.Search(context.Background(), "completely different query", SearchParams{TopK: 5})
	require.NoError(t, err)
	require.Empty(t, results)

	// An explicit zero disables the threshold rather than falling back.
	results, err = r.Search(context.Background(), "completely different query", SearchParams{TopK: 5, SimilarityThreshold: threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Less(t, results[0].Score, 0.9)
}

func TestSearchDefaultsTopK(t *testing.T) {
	r, _ := seedStore(t, "a", "b", "c", "d", "e", "f", "g")

	results, err := r.Search(context.Background(), "a", SearchParams{})
	require.NoError(t, err)
	require.Len(t, results, 5)
}
