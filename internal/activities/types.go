package activities

import "ragkit/internal/models"

type ListFilesInput struct {
	InputDir string `json:"input_dir"`
}

type ListFilesOutput struct {
	Paths []string `json:"paths"`
}

type ComputeDocumentIDInput struct {
	FilePath string `json:"file_path"`
}

type ComputeDocumentIDOutput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

type ExtractTextInput struct {
	FilePath string `json:"file_path"`
}

type ExtractTextOutput struct {
	MediaType string `json:"media_type"`
	Text      string `json:"text"`
}

type ChunkTextInput struct {
	DocumentID   string `json:"document_id"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

type ChunkTextOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Operation     string   `json:"operation"`
	Inputs        []string `json:"inputs"`
	ProviderIndex int      `json:"provider_index"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type UpsertChunksInput struct {
	Filename  string            `json:"filename"`
	MediaType string            `json:"media_type"`
	Chunks    []models.Chunk    `json:"chunks"`
	Vectors   [][]float32       `json:"vectors"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type UpsertChunksOutput struct {
	Upserted int `json:"upserted"`
}
