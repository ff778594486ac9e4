package workflows

type BatchIngestInput struct {
	BatchID               string            `json:"batch_id"`
	InputDir              string            `json:"input_dir"`
	MaxConcurrentChildren int               `json:"max_concurrent_children"`
	ChunkSize             int               `json:"chunk_size"`
	ChunkOverlap          int               `json:"chunk_overlap"`
	EmbedProviders        int               `json:"embed_providers"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

type DocumentIngestInput struct {
	BatchID        string            `json:"batch_id"`
	FilePath       string            `json:"file_path"`
	ChunkSize      int               `json:"chunk_size"`
	ChunkOverlap   int               `json:"chunk_overlap"`
	EmbedProviders int               `json:"embed_providers"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type DocumentStatus struct {
	DocumentID  string            `json:"document_id"`
	FilePath    string            `json:"file_path"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	Provider    string            `json:"provider,omitempty"`
	Steps       map[string]string `json:"steps"`
}

type BatchIngestProgress struct {
	BatchID       string            `json:"batch_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerFile       map[string]string `json:"per_file_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
