// Package ragerr defines the typed errors shared across the ingestion,
// retrieval and generation components. Callers match them with errors.As
// and map them to client-visible responses at the API boundary.
package ragerr

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports invalid operation parameters (bad chunk
// sizes, out-of-range generation params). It is fatal for the operation
// and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// UnsupportedFileTypeError rejects uploads whose extension maps to no
// known extractor.
type UnsupportedFileTypeError struct {
	Filename string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Filename)
}

// FileTooLargeError rejects uploads above the configured size limit.
type FileTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file size %d exceeds limit %d", e.Size, e.Limit)
}

// ExtractionError wraps a failure to obtain plain text from an upload.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError wraps an embedding-provider failure.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// BackendUnavailableError marks a vector-store backend as unreachable.
// The caller decides whether to retry.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("vector store backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// InvalidVectorError reports a dimension mismatch between a vector and
// the collection it targets.
type InvalidVectorError struct {
	Expected int
	Actual   int
}

func (e *InvalidVectorError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// LLMProviderError wraps a language-model backend failure (timeout,
// rate limit, malformed response). Retry policy, if any, lives in the
// provider adapter, not in the caller.
type LLMProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *LLMProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("llm provider %s (%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("llm provider %s: %v", e.Provider, e.Err)
}

func (e *LLMProviderError) Unwrap() error { return e.Err }

// PartialIngestError reports a document that was only partially indexed.
// Succeeded and Failed hold chunk sequence indices.
type PartialIngestError struct {
	DocumentID string
	Succeeded  []int
	Failed     []int
	Err        error
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("document %s partially ingested (%d ok, failed chunks [%s]): %v",
		e.DocumentID, len(e.Succeeded), joinInts(e.Failed), e.Err)
}

func (e *PartialIngestError) Unwrap() error { return e.Err }

func joinInts(xs []int) string {
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, x := range sorted {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return strings.Join(parts, ",")
}
