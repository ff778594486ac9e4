// Package api exposes the HTTP surface: document upload and deletion,
// search, generation, batch ingestion and operational endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"ragkit/internal/chunk"
	"ragkit/internal/config"
	"ragkit/internal/extract"
	"ragkit/internal/generation"
	"ragkit/internal/ingest"
	"ragkit/internal/metrics"
	"ragkit/internal/models"
	"ragkit/internal/providers"
	"ragkit/internal/ragerr"
	"ragkit/internal/retrieval"
	"ragkit/internal/util"
	"ragkit/internal/vectorstore"
	"ragkit/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg       config.Config
	store     vectorstore.Store
	manager   *providers.Manager
	retriever *retrieval.Retriever
	generator *generation.Generator
	pipeline  *ingest.Pipeline
	collector *metrics.Collector
	temporal  tclient.Client
}

// NewServer wires the request-path components. temporal may be nil;
// the batch endpoints then answer 503 while the rest of the API keeps
// working.
func NewServer(cfg config.Config, store vectorstore.Store, manager *providers.Manager, collector *metrics.Collector, temporal tclient.Client) *Server {
	retriever := retrieval.NewRetriever(manager, store, cfg.Collection, cfg.TopK, cfg.SimilarityThreshold)
	return &Server{
		cfg:       cfg,
		store:     store,
		manager:   manager,
		retriever: retriever,
		generator: generation.NewGenerator(manager, retriever, cfg.Temperature, cfg.MaxTokens),
		pipeline: ingest.NewPipeline(extract.New(cfg.MaxFileSize), manager, store, cfg.Collection,
			chunk.Params{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}, cfg.EmbedBatchSize),
		collector: collector,
		temporal:  temporal,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/ingest/batch", s.handleBatchStart)
	mux.HandleFunc("/ingest/batch/", s.handleBatchStatus)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeOK := s.store.Health(ctx) == nil
	llmOK := s.manager.LLMHealth(ctx) == nil
	embedOK := s.manager.EmbedHealth(ctx) == nil
	s.collector.SetComponentHealth("vector_store", storeOK)
	s.collector.SetComponentHealth("llm", llmOK)
	s.collector.SetComponentHealth("embeddings", embedOK)

	status := http.StatusOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ok": storeOK && llmOK && embedOK,
		"components": map[string]bool{
			"vector_store": storeOK,
			"llm":          llmOK,
			"embeddings":   embedOK,
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("file is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	override := chunk.Params{}
	if v := r.FormValue("chunk_size"); v != "" {
		override.Size, err = strconv.Atoi(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("chunk_size must be an integer: %q", v))
			return
		}
		if v := r.FormValue("chunk_overlap"); v != "" {
			override.Overlap, err = strconv.Atoi(v)
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("chunk_overlap must be an integer: %q", v))
				return
			}
		}
	}
	metadata := map[string]string{}
	for k, vs := range r.MultipartForm.Value {
		if strings.HasPrefix(k, "meta_") && len(vs) > 0 {
			metadata[strings.TrimPrefix(k, "meta_")] = vs[0]
		}
	}

	start := time.Now()
	res, err := s.pipeline.IngestFile(r.Context(), header.Filename, content, metadata, override)
	s.collector.RecordIngest(res.ChunksCreated, time.Since(start), err)
	if err != nil {
		writeTypedErr(w, err)
		return
	}

	// Keep a copy of the original upload for batch re-processing.
	if err := util.EnsureDir(s.cfg.DataInRoot); err == nil {
		_ = os.WriteFile(util.SafeJoin(s.cfg.DataInRoot, header.Filename), content, 0o644)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id":        res.DocumentID,
		"filename":           res.Filename,
		"media_type":         res.MediaType,
		"chunks_created":     res.ChunksCreated,
		"processing_time_ms": res.ProcessingTime.Milliseconds(),
	})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	documentID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	if documentID == "" || strings.Contains(documentID, "/") {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodDelete {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	removed, err := s.pipeline.DeleteDocument(r.Context(), documentID)
	if err != nil {
		writeTypedErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    documentID,
		"chunks_removed": removed,
	})
}

type searchRequest struct {
	Query               string            `json:"query"`
	TopK                int               `json:"top_k"`
	SimilarityThreshold *float64          `json:"similarity_threshold,omitempty"`
	Filters             map[string]string `json:"filters,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	start := time.Now()
	results, err := s.retriever.Search(r.Context(), req.Query, retrieval.SearchParams{
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		Filters:             req.Filters,
	})
	s.collector.RecordSearch(time.Since(start), err)
	if err != nil {
		writeTypedErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

type generateRequest struct {
	Query               string            `json:"query"`
	Context             *[]string         `json:"context,omitempty"`
	TopK                int               `json:"top_k"`
	SimilarityThreshold *float64          `json:"similarity_threshold,omitempty"`
	Temperature         *float64          `json:"temperature,omitempty"`
	MaxTokens           *int              `json:"max_tokens,omitempty"`
	Filters             map[string]string `json:"filters,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	params := generation.Params{
		Temperature:         req.Temperature,
		MaxTokens:           req.MaxTokens,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		Filters:             req.Filters,
	}

	start := time.Now()
	var (
		result models.GenerationResult
		err    error
	)
	if req.Context != nil {
		// Caller supplied context explicitly; an empty list means
		// "answer without any context", not "go retrieve some".
		sources := make([]models.SearchResult, 0, len(*req.Context))
		for i, text := range *req.Context {
			sources = append(sources, models.SearchResult{ID: fmt.Sprintf("provided:%d", i), Text: text})
		}
		result, err = s.generator.AnswerWithSources(r.Context(), req.Query, sources, params)
	} else {
		result, err = s.generator.Answer(r.Context(), req.Query, params)
	}
	s.collector.RecordGeneration(time.Since(start), err)
	if err != nil {
		writeTypedErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":             result.Answer,
		"sources":            result.Sources,
		"grounded":           result.Grounded,
		"provider":           result.Provider,
		"model":              result.Model,
		"generation_time_ms": result.GenerationTime.Milliseconds(),
	})
}

type batchStartRequest struct {
	InputDir              string            `json:"input_dir"`
	MaxConcurrentChildren int               `json:"max_concurrent_children"`
	ChunkSize             int               `json:"chunk_size"`
	ChunkOverlap          int               `json:"chunk_overlap"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("batch ingestion requires a temporal connection"))
		return
	}
	var req batchStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.InputDir) == "" {
		req.InputDir = s.cfg.DataInRoot
	}
	if req.MaxConcurrentChildren <= 0 {
		req.MaxConcurrentChildren = s.cfg.IngestMaxChildren
	}

	batchID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "batch-" + batchID,
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.BatchIngestWorkflow, workflows.BatchIngestInput{
		BatchID:               batchID,
		InputDir:              req.InputDir,
		MaxConcurrentChildren: req.MaxConcurrentChildren,
		ChunkSize:             req.ChunkSize,
		ChunkOverlap:          req.ChunkOverlap,
		EmbedProviders:        s.manager.EmbedCount(),
		Metadata:              req.Metadata,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batchID,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("batch ingestion requires a temporal connection"))
		return
	}
	workflowID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ingest/batch/"), "/")
	if workflowID == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetBatchProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("batch not found: %w", err))
		return
	}
	var progress workflows.BatchIngestProgress
	if err := resp.Get(&progress); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	state := "running"
	if desc, err := s.temporal.DescribeWorkflowExecution(r.Context(), workflowID, ""); err == nil {
		switch desc.GetWorkflowExecutionInfo().GetStatus() {
		case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
			state = "completed"
		case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
			enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
			enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
			state = "failed"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"state":       state,
		"progress":    progress,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeTypedErr maps the shared typed errors to HTTP statuses.
func writeTypedErr(w http.ResponseWriter, err error) {
	var (
		cfgErr      *ragerr.ConfigurationError
		unsupported *ragerr.UnsupportedFileTypeError
		tooLarge    *ragerr.FileTooLargeError
		extraction  *ragerr.ExtractionError
		invalidVec  *ragerr.InvalidVectorError
		unavailable *ragerr.BackendUnavailableError
		embedding   *ragerr.EmbeddingError
		llm         *ragerr.LLMProviderError
		partial     *ragerr.PartialIngestError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &invalidVec):
		writeErr(w, http.StatusBadRequest, err)
	case errors.As(err, &unsupported):
		writeErr(w, http.StatusUnsupportedMediaType, err)
	case errors.As(err, &tooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, err)
	case errors.As(err, &extraction):
		writeErr(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &unavailable):
		writeErr(w, http.StatusServiceUnavailable, err)
	case errors.As(err, &embedding), errors.As(err, &llm), errors.As(err, &partial):
		writeErr(w, http.StatusBadGateway, err)
	default:
		writeErr(w, http.StatusInternalServerError, err)
	}
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"status":  code,
			"message": err.Error(),
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
