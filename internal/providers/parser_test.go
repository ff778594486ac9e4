package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("openai:work | ollama:nomic-embed-text |mock")
	require.Len(t, refs, 3)
	require.Equal(t, "openai", refs[0].Name)
	require.Equal(t, "work", refs[0].KeyAlias)
	require.Equal(t, "ollama", refs[1].Name)
	require.Equal(t, "nomic-embed-text", refs[1].KeyAlias)
	require.Equal(t, "mock", refs[2].Name)
}

func TestParseProviderListEmptyFallsBackToMock(t *testing.T) {
	refs := ParseProviderList("  ")
	require.Len(t, refs, 1)
	require.Equal(t, "mock", refs[0].Name)
}

func TestManagerMockFallback(t *testing.T) {
	m, err := NewManager("", "", 8)
	require.NoError(t, err)
	require.Equal(t, 1, m.LLMCount())
	require.Equal(t, 1, m.EmbedCount())

	p, ref := m.FirstEmbedProvider()
	require.Equal(t, "mock", ref.Name)
	vecs, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}, Dimension: 8})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Len(t, vecs[0], 8)
}

func TestManagerRejectsUnknownProvider(t *testing.T) {
	_, err := NewManager("carrier-pigeon", "mock", 8)
	require.Error(t, err)
}

func TestMockEmbeddingDeterministic(t *testing.T) {
	m := NewMockProvider(16)
	a, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"same text"}, Dimension: 16})
	require.NoError(t, err)
	b, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"same text"}, Dimension: 16})
	require.NoError(t, err)
	require.Equal(t, a, b)

	// L2 norm should be 1 so cosine self-similarity is 1.
	var sum float64
	for _, x := range a[0] {
		sum += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}
