// Package activities implements the Temporal activities behind batch
// ingestion. Each activity is a thin adapter over the extract, chunk,
// providers and vectorstore packages.
package activities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"ragkit/internal/chunk"
	"ragkit/internal/config"
	"ragkit/internal/extract"
	"ragkit/internal/ingest"
	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/vectorstore"
)

type Activities struct {
	cfg       *config.Config
	extractor *extract.Extractor
	manager   *providers.Manager
	store     vectorstore.Store
}

func New(cfg *config.Config, manager *providers.Manager, store vectorstore.Store) *Activities {
	return &Activities{
		cfg:       cfg,
		extractor: extract.New(cfg.MaxFileSize),
		manager:   manager,
		store:     store,
	}
}

// ListFilesActivity returns the ingestable files directly under
// in.InputDir, sorted for a deterministic batch order.
func (a *Activities) ListFilesActivity(ctx context.Context, in ListFilesInput) (ListFilesOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListFilesOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := extract.MediaType(e.Name()); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(in.InputDir, e.Name()))
	}
	sort.Strings(paths)
	return ListFilesOutput{Paths: paths}, nil
}

func (a *Activities) ComputeDocumentIDActivity(ctx context.Context, in ComputeDocumentIDInput) (ComputeDocumentIDOutput, error) {
	_ = ctx
	f, err := os.Open(in.FilePath)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("open %s: %w", in.FilePath, err)
	}
	defer f.Close()
	documentID, err := ingest.ComputeDocumentIDFromReader(f)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("hash %s: %w", in.FilePath, err)
	}
	return ComputeDocumentIDOutput{
		DocumentID: documentID,
		Filename:   filepath.Base(in.FilePath),
	}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	content, err := os.ReadFile(in.FilePath)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("read %s: %w", in.FilePath, err)
	}
	mediaType, text, err := a.extractor.Extract(filepath.Base(in.FilePath), content)
	if err != nil {
		return ExtractTextOutput{}, err
	}
	return ExtractTextOutput{MediaType: mediaType, Text: text}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	params := chunk.Params{Size: in.ChunkSize, Overlap: in.ChunkOverlap}
	if params.Size <= 0 {
		params = chunk.Params{Size: a.cfg.ChunkSize, Overlap: a.cfg.ChunkOverlap}
	}
	chunks, err := chunk.Split(in.DocumentID, in.Text, params)
	if err != nil {
		return ChunkTextOutput{}, err
	}
	return ChunkTextOutput{Chunks: chunks}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, ref := a.manager.EmbedProviderByIndex(in.ProviderIndex)
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    in.Inputs,
		Dimension: a.manager.EmbedDim(),
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed via %s: %w", ref.Raw, err)
	}
	if len(vectors) != len(in.Inputs) {
		return EmbedChunksOutput{}, fmt.Errorf("embed via %s: want %d vectors, got %d", ref.Raw, len(in.Inputs), len(vectors))
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: info.Name, Model: info.Model}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) (UpsertChunksOutput, error) {
	if len(in.Chunks) != len(in.Vectors) {
		return UpsertChunksOutput{}, fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(in.Chunks), len(in.Vectors))
	}
	records := make([]models.VectorRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		md := map[string]string{
			"filename":    in.Filename,
			"media_type":  in.MediaType,
			"chunk_index": strconv.Itoa(c.Index),
		}
		for k, v := range in.Metadata {
			md[k] = v
		}
		records = append(records, models.VectorRecord{
			ID:         c.ChunkID,
			DocumentID: c.DocumentID,
			Vector:     in.Vectors[i],
			Text:       c.Text,
			Metadata:   md,
		})
	}
	n, err := a.store.Upsert(ctx, a.cfg.Collection, records)
	if err != nil {
		return UpsertChunksOutput{}, err
	}
	return UpsertChunksOutput{Upserted: n}, nil
}
