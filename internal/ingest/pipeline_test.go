package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ragkit/internal/chunk"
	"ragkit/internal/extract"
	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore"
	"ragkit/internal/vectorstore/memory"

	"github.com/stretchr/testify/require"
)

const dim = 32

// alphabetText cycles through the alphabet so that no two chunks of the
// sliding window carry identical text.
func alphabetText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return string(b)
}

func newPipeline(t *testing.T, store vectorstore.Store) *Pipeline {
	t.Helper()
	m, err := providers.NewManager("mock", "mock", dim)
	require.NoError(t, err)
	return NewPipeline(extract.New(1<<20), m, store, "chunks", chunk.Params{Size: 40, Overlap: 10}, 2)
}

func TestIngestFileIndexesAllChunks(t *testing.T) {
	store := memory.NewStore()
	p := newPipeline(t, store)
	ctx := context.Background()

	text := alphabetText(100) // chunks at 0, 30, 60, 90, all distinct
	res, err := p.IngestFile(ctx, "doc.txt", []byte(text), map[string]string{"lang": "en"}, chunk.Params{})
	require.NoError(t, err)
	require.Equal(t, 4, res.ChunksCreated)
	require.Equal(t, "txt", res.MediaType)
	require.NotEmpty(t, res.DocumentID)

	// Query for the second chunk's exact text; it must rank first.
	m, err := providers.NewManager("mock", "mock", dim)
	require.NoError(t, err)
	embedder, _ := m.FirstEmbedProvider()
	vecs, _, err := embedder.Embed(ctx, providers.EmbedRequest{Inputs: []string{text[30:70]}, Dimension: dim})
	require.NoError(t, err)
	results, err := store.Query(ctx, "chunks", vecs[0], vectorstore.QueryOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, res.DocumentID+":1", results[0].ID)
	require.Equal(t, "en", results[0].Metadata["lang"])
	require.Equal(t, "doc.txt", results[0].Metadata["filename"])
}

func TestIngestIsIdempotentOnContent(t *testing.T) {
	store := memory.NewStore()
	p := newPipeline(t, store)
	ctx := context.Background()

	content := []byte(strings.Repeat("x", 100))
	first, err := p.IngestFile(ctx, "a.txt", content, nil, chunk.Params{})
	require.NoError(t, err)
	second, err := p.IngestFile(ctx, "a.txt", content, nil, chunk.Params{})
	require.NoError(t, err)
	require.Equal(t, first.DocumentID, second.DocumentID)

	removed, err := p.DeleteDocument(ctx, first.DocumentID)
	require.NoError(t, err)
	require.Equal(t, first.ChunksCreated, removed)
}

func TestComputeDocumentIDStreamingMatchesInMemory(t *testing.T) {
	content := []byte(alphabetText(1000))

	fromReader, err := ComputeDocumentIDFromReader(bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, ComputeDocumentID(content), fromReader)
	require.Len(t, fromReader, 16)
}

func TestIngestRejectsBadChunkOverride(t *testing.T) {
	p := newPipeline(t, memory.NewStore())

	var cfgErr *ragerr.ConfigurationError
	_, err := p.IngestFile(context.Background(), "a.txt", []byte("hello world"), nil, chunk.Params{Size: 10, Overlap: 10})
	require.ErrorAs(t, err, &cfgErr)
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	p := newPipeline(t, memory.NewStore())

	var unsupported *ragerr.UnsupportedFileTypeError
	_, err := p.IngestFile(context.Background(), "archive.zip", []byte("data"), nil, chunk.Params{})
	require.ErrorAs(t, err, &unsupported)
}

func TestDeleteUnknownDocumentIsNoOp(t *testing.T) {
	p := newPipeline(t, memory.NewStore())

	removed, err := p.DeleteDocument(context.Background(), "never-ingested")
	require.NoError(t, err)
	require.Zero(t, removed)
}

// flakyStore fails the nth Upsert call and delegates everything else.
type flakyStore struct {
	vectorstore.Store
	calls  int
	failOn int
}

func (s *flakyStore) Upsert(ctx context.Context, collection string, records []models.VectorRecord) (int, error) {
	s.calls++
	if s.calls == s.failOn {
		return 0, errors.New("backend hiccup")
	}
	return s.Store.Upsert(ctx, collection, records)
}

func TestIngestReportsPartialFailure(t *testing.T) {
	inner := memory.NewStore()
	store := &flakyStore{Store: inner, failOn: 2}
	p := newPipeline(t, store)

	// 100 runes with size 40 / overlap 10 -> 4 chunks, batch size 2 ->
	// two upserts; the second fails.
	text := strings.Repeat("abcdefghij", 10)
	var partial *ragerr.PartialIngestError
	_, err := p.IngestFile(context.Background(), "doc.txt", []byte(text), nil, chunk.Params{})
	require.ErrorAs(t, err, &partial)
	require.Equal(t, []int{0, 1}, partial.Succeeded)
	require.Equal(t, []int{2, 3}, partial.Failed)
}
