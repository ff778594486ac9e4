// Package workflows orchestrates batch document ingestion on Temporal.
package workflows

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"ragkit/internal/activities"
	"ragkit/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetDocumentStatus = "GetDocumentStatus"
	QueryGetBatchProgress  = "GetBatchProgress"
)

// BatchIngestWorkflow fans a directory of uploads out to per-document
// child workflows, at most MaxConcurrentChildren at a time, and tracks
// per-file outcomes for the progress query.
func BatchIngestWorkflow(ctx workflow.Context, input BatchIngestInput) (string, error) {
	progress := BatchIngestProgress{
		BatchID:       input.BatchID,
		PerFile:       map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetBatchProgress, func() (BatchIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListFilesOutput
	if err := workflow.ExecuteActivity(ctx, "ListFilesActivity", activities.ListFilesInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := min(i+maxChildren, len(paths))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			progress.PerFile[path] = "processing"
			workflowID := "document-" + sanitizeID(input.BatchID) + "-" + sanitizeID(filepath.Base(path))
			cwo := workflow.ChildWorkflowOptions{WorkflowID: workflowID}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				BatchID:        input.BatchID,
				FilePath:       path,
				ChunkSize:      input.ChunkSize,
				ChunkOverlap:   input.ChunkOverlap,
				EmbedProviders: input.EmbedProviders,
				Metadata:       input.Metadata,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			if err != nil {
				progress.Failed++
				progress.PerFile[path] = "failed"
				continue
			}
			if childStatus == "failed" {
				progress.Failed++
			}
			progress.Done++
			progress.PerFile[path] = childStatus
		}
	}
	return "completed", nil
}

// DocumentIngestWorkflow runs one document through compute-id, extract,
// chunk, embed and upsert. Unrecoverable document problems (unsupported
// type, no extractable text, oversize upload) complete the workflow
// with status "failed" instead of erroring, so the batch carries on.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := DocumentStatus{
		FilePath:    input.FilePath,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	filename := filepath.Base(input.FilePath)

	status.CurrentStep = "compute_document_id"
	status.Steps[status.CurrentStep] = "processing"
	var computeOut activities.ComputeDocumentIDOutput
	if err := workflow.ExecuteActivity(ctx, "ComputeDocumentIDActivity", activities.ComputeDocumentIDInput{FilePath: input.FilePath}).Get(ctx, &computeOut); err != nil {
		return "", err
	}
	status.DocumentID = computeOut.DocumentID
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "extract_text"
	status.Steps[status.CurrentStep] = "processing"
	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{FilePath: input.FilePath}).Get(ctx, &textOut); err != nil {
		if isDocumentError(err) {
			status.Status = "failed"
			status.FailReason = rootMessage(err)
			status.Steps[status.CurrentStep] = "failed"
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_text"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{
		DocumentID:   computeOut.DocumentID,
		Text:         textOut.Text,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunkOut); err != nil {
		return "", err
	}
	status.ChunkCount = len(chunkOut.Chunks)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	inputs := make([]string, 0, len(chunkOut.Chunks))
	for _, c := range chunkOut.Chunks {
		inputs = append(inputs, c.Text)
	}
	embedOut, err := embedWithFailover(ctx, input.EmbedProviders, activities.EmbedChunksInput{
		Operation: "document",
		Inputs:    inputs,
	})
	if err != nil {
		return "", err
	}
	status.Provider = embedOut.ProviderName
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "upsert_chunks"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		Filename:  filename,
		MediaType: textOut.MediaType,
		Chunks:    chunkOut.Chunks,
		Vectors:   embedOut.Vectors,
		Metadata:  input.Metadata,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "processed"
	return status.Status, nil
}

// embedWithFailover walks the configured embedding providers in order
// until one succeeds. Retry within a provider is the activity retry
// policy's job; this only advances past quota, rate and transient
// failures — a permanent error fails the document immediately.
func embedWithFailover(ctx workflow.Context, providerCount int, in activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
	if providerCount <= 0 {
		providerCount = 1
	}
	var lastErr error
	for i := 0; i < providerCount; i++ {
		in.ProviderIndex = i
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", in).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !providers.Retryable(providers.ClassifyError(err)) {
			break
		}
	}
	return activities.EmbedChunksOutput{}, lastErr
}

func isDocumentError(err error) bool {
	msg := strings.ToLower(rootMessage(err))
	return strings.Contains(msg, "unsupported file type") ||
		strings.Contains(msg, "no extractable text") ||
		strings.Contains(msg, "exceeds limit")
}

func rootMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
