// Package ingest runs the extract -> chunk -> embed -> upsert pipeline
// for a single document.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"ragkit/internal/chunk"
	"ragkit/internal/extract"
	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/util"
	"ragkit/internal/vectorstore"
)

// deleteProbeBatch bounds the id probe loop in DeleteDocument. Chunk
// ids are sequential, so the first batch that removes nothing marks the
// end of the document.
const deleteProbeBatch = 64

type Result struct {
	DocumentID     string        `json:"document_id"`
	Filename       string        `json:"filename"`
	MediaType      string        `json:"media_type"`
	ChunksCreated  int           `json:"chunks_created"`
	ProcessingTime time.Duration `json:"processing_time"`
}

type Pipeline struct {
	extractor  *extract.Extractor
	manager    *providers.Manager
	store      vectorstore.Store
	collection string
	params     chunk.Params
	batchSize  int
}

func NewPipeline(extractor *extract.Extractor, manager *providers.Manager, store vectorstore.Store, collection string, params chunk.Params, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Pipeline{
		extractor:  extractor,
		manager:    manager,
		store:      store,
		collection: collection,
		params:     params,
		batchSize:  batchSize,
	}
}

// documentIDLen is the hex-hash prefix used as a document id.
const documentIDLen = 16

// ComputeDocumentID derives a stable id from file content, so the same
// bytes always ingest to the same document.
func ComputeDocumentID(content []byte) string {
	return util.ContentHashHex(content)[:documentIDLen]
}

// ComputeDocumentIDFromReader derives the same id as ComputeDocumentID
// while streaming, so large files need not be held in memory.
func ComputeDocumentIDFromReader(r io.Reader) (string, error) {
	sum, err := util.ContentHashHexFromReader(r)
	if err != nil {
		return "", err
	}
	return sum[:documentIDLen], nil
}

// IngestFile extracts text from an upload and indexes it. Chunk
// parameters may be overridden per call with a non-zero override.
func (p *Pipeline) IngestFile(ctx context.Context, filename string, content []byte, metadata map[string]string, override chunk.Params) (Result, error) {
	start := time.Now()
	mediaType, text, err := p.extractor.Extract(filename, content)
	if err != nil {
		return Result{}, err
	}
	doc := models.Document{
		DocumentID: ComputeDocumentID(content),
		Filename:   filename,
		MediaType:  mediaType,
		Text:       text,
		IngestedAt: start,
	}
	res, err := p.IngestDocument(ctx, doc, metadata, override)
	if err != nil {
		return Result{}, err
	}
	res.ProcessingTime = time.Since(start)
	return res, nil
}

// IngestDocument chunks already-extracted text, embeds the chunks in
// batches and upserts them. Batches that were upserted before a later
// batch failed stay in the store; the caller learns which chunk indices
// made it via PartialIngestError.
func (p *Pipeline) IngestDocument(ctx context.Context, doc models.Document, metadata map[string]string, override chunk.Params) (Result, error) {
	start := time.Now()
	params := p.params
	if override.Size > 0 {
		params = override
	}
	chunks, err := chunk.Split(doc.DocumentID, doc.Text, params)
	if err != nil {
		return Result{}, err
	}

	var succeeded []int
	for offset := 0; offset < len(chunks); offset += p.batchSize {
		batch := chunks[offset:min(offset+p.batchSize, len(chunks))]
		if err := p.indexBatch(ctx, batch, doc, metadata); err != nil {
			if len(succeeded) == 0 {
				return Result{}, err
			}
			failed := make([]int, 0, len(chunks)-len(succeeded))
			for _, c := range chunks[offset:] {
				failed = append(failed, c.Index)
			}
			return Result{}, &ragerr.PartialIngestError{
				DocumentID: doc.DocumentID,
				Succeeded:  succeeded,
				Failed:     failed,
				Err:        err,
			}
		}
		for _, c := range batch {
			succeeded = append(succeeded, c.Index)
		}
	}
	return Result{
		DocumentID:     doc.DocumentID,
		Filename:       doc.Filename,
		MediaType:      doc.MediaType,
		ChunksCreated:  len(chunks),
		ProcessingTime: time.Since(start),
	}, nil
}

func (p *Pipeline) indexBatch(ctx context.Context, batch []models.Chunk, doc models.Document, metadata map[string]string) error {
	inputs := make([]string, 0, len(batch))
	for _, c := range batch {
		inputs = append(inputs, c.Text)
	}
	provider, ref := p.manager.FirstEmbedProvider()
	vectors, _, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: "document",
		Inputs:    inputs,
		Dimension: p.manager.EmbedDim(),
	})
	if err != nil {
		return &ragerr.EmbeddingError{Provider: ref.Name, Err: err}
	}
	if len(vectors) != len(batch) {
		return &ragerr.EmbeddingError{Provider: ref.Name,
			Err: fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(vectors))}
	}

	records := make([]models.VectorRecord, 0, len(batch))
	for i, c := range batch {
		records = append(records, models.VectorRecord{
			ID:         c.ChunkID,
			DocumentID: c.DocumentID,
			Vector:     vectors[i],
			Text:       c.Text,
			Metadata:   chunkMetadata(c, doc, metadata),
		})
	}
	_, err = p.store.Upsert(ctx, p.collection, records)
	return err
}

// DeleteDocument removes a document's chunks by probing sequential
// chunk ids until a whole batch misses. Deleting an unknown document is
// a no-op that reports zero chunks removed.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	total := 0
	for from := 0; ; from += deleteProbeBatch {
		ids := make([]string, 0, deleteProbeBatch)
		for i := from; i < from+deleteProbeBatch; i++ {
			ids = append(ids, chunkID(documentID, i))
		}
		removed, err := p.store.Delete(ctx, p.collection, ids)
		if err != nil {
			return total, err
		}
		total += removed
		if removed == 0 {
			return total, nil
		}
	}
}

func chunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

func chunkMetadata(c models.Chunk, doc models.Document, extra map[string]string) map[string]string {
	md := map[string]string{
		"filename":    doc.Filename,
		"media_type":  doc.MediaType,
		"chunk_index": strconv.Itoa(c.Index),
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}
