package generation

import (
	"context"
	"errors"
	"testing"

	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/retrieval"
	"ragkit/internal/vectorstore/memory"

	"github.com/stretchr/testify/require"
)

const dim = 32

func newGenerator(t *testing.T, texts ...string) *Generator {
	t.Helper()
	m, err := providers.NewManager("mock", "mock", dim)
	require.NoError(t, err)
	store := memory.NewStore()

	if len(texts) > 0 {
		p, _ := m.FirstEmbedProvider()
		vectors, _, err := p.Embed(context.Background(), providers.EmbedRequest{Inputs: texts, Dimension: dim})
		require.NoError(t, err)
		records := make([]models.VectorRecord, 0, len(texts))
		for i, text := range texts {
			records = append(records, models.VectorRecord{
				ID: "doc:" + string(rune('0'+i)), DocumentID: "doc", Vector: vectors[i], Text: text,
			})
		}
		_, err = store.Upsert(context.Background(), "chunks", records)
		require.NoError(t, err)
	}
	r := retrieval.NewRetriever(m, store, "chunks", 5, 0)
	return NewGenerator(m, r, 0.7, 500)
}

func TestAnswerGrounded(t *testing.T) {
	g := newGenerator(t, "photosynthesis converts light into chemical energy")

	res, err := g.Answer(context.Background(), "photosynthesis converts light into chemical energy", Params{TopK: 1})
	require.NoError(t, err)
	require.True(t, res.Grounded)
	require.Len(t, res.Sources, 1)
	require.Contains(t, res.Answer, "grounded")
	require.Equal(t, "mock", res.Provider)
	require.NotEmpty(t, res.Model)
}

func TestAnswerUngroundedWhenNothingRetrieved(t *testing.T) {
	g := newGenerator(t, "entirely unrelated text")

	high := 0.999
	res, err := g.Answer(context.Background(), "a question", Params{SimilarityThreshold: &high})
	require.NoError(t, err)
	require.False(t, res.Grounded)
	require.Empty(t, res.Sources)
	require.NotEmpty(t, res.Answer)
}

func TestAnswerWithExplicitEmptyContext(t *testing.T) {
	g := newGenerator(t, "stored text that must not be used")

	res, err := g.AnswerWithSources(context.Background(), "a question", []models.SearchResult{}, Params{})
	require.NoError(t, err)
	require.False(t, res.Grounded)
	require.Empty(t, res.Sources)
}

func TestAnswerWithProvidedContext(t *testing.T) {
	g := newGenerator(t)

	sources := []models.SearchResult{{ID: "x", Text: "the provided passage"}}
	res, err := g.AnswerWithSources(context.Background(), "a question", sources, Params{})
	require.NoError(t, err)
	require.True(t, res.Grounded)
	require.Equal(t, sources, res.Sources)
}

func TestAnswerValidatesParams(t *testing.T) {
	g := newGenerator(t)
	var cfgErr *ragerr.ConfigurationError

	bad := 2.5
	_, err := g.Answer(context.Background(), "q", Params{Temperature: &bad})
	require.ErrorAs(t, err, &cfgErr)

	zero := 0
	_, err = g.Answer(context.Background(), "q", Params{MaxTokens: &zero})
	require.ErrorAs(t, err, &cfgErr)

	_, err = g.AnswerWithSources(context.Background(), "  ", nil, Params{})
	require.ErrorAs(t, err, &cfgErr)
}

type failingLLM struct{}

func (failingLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{}, providers.ProviderInfo{Name: "static", Model: "fail-model"}, errors.New("upstream 500")
}

func TestAnswerSurfacesLLMFailure(t *testing.T) {
	m := providers.NewStaticManager(failingLLM{}, providers.NewMockProvider(dim), dim)
	r := retrieval.NewRetriever(m, memory.NewStore(), "chunks", 5, 0)
	g := NewGenerator(m, r, 0.7, 500)

	var llmErr *ragerr.LLMProviderError
	_, err := g.Answer(context.Background(), "q", Params{})
	require.ErrorAs(t, err, &llmErr)
	require.Equal(t, "static", llmErr.Provider)
	require.Equal(t, "fail-model", llmErr.Model)
}
