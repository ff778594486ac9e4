// Package chunk splits extracted document text into overlapping,
// size-bounded windows. Chunking operates on raw rune offsets, not on
// sentence or paragraph boundaries; this is a deliberate simplicity
// tradeoff.
package chunk

import (
	"fmt"

	"ragkit/internal/models"
	"ragkit/internal/ragerr"
)

// Params bounds a sliding window. Size and Overlap are measured in
// runes.
type Params struct {
	Size    int `json:"chunk_size"`
	Overlap int `json:"chunk_overlap"`
}

// Validate rejects parameter combinations that would loop forever or
// produce empty windows.
func (p Params) Validate() error {
	if p.Size <= 0 {
		return &ragerr.ConfigurationError{Reason: fmt.Sprintf("chunk size must be positive, got %d", p.Size)}
	}
	if p.Overlap < 0 {
		return &ragerr.ConfigurationError{Reason: fmt.Sprintf("chunk overlap must not be negative, got %d", p.Overlap)}
	}
	if p.Overlap >= p.Size {
		return &ragerr.ConfigurationError{Reason: fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", p.Overlap, p.Size)}
	}
	return nil
}

// Split advances a window of p.Size runes over text with a stride of
// p.Size-p.Overlap. The final window is truncated to the remaining
// length. Empty input yields an empty sequence. Chunk ids are derived
// from the document id and sequence index.
func Split(documentID, text string, p Params) ([]models.Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	stride := p.Size - p.Overlap
	out := make([]models.Chunk, 0, (len(runes)+stride-1)/stride)
	for start := 0; start < len(runes); start += stride {
		end := start + p.Size
		if end > len(runes) {
			end = len(runes)
		}
		// Overlap records the runes actually shared with the
		// predecessor; a truncated predecessor shares fewer than
		// p.Overlap.
		overlap := 0
		if len(out) > 0 {
			if prevEnd := out[len(out)-1].End; prevEnd > start {
				overlap = prevEnd - start
			}
		}
		idx := len(out)
		out = append(out, models.Chunk{
			DocumentID: documentID,
			ChunkID:    fmt.Sprintf("%s:%d", documentID, idx),
			Index:      idx,
			Start:      start,
			End:        end,
			Overlap:    overlap,
			Text:       string(runes[start:end]),
		})
	}
	return out, nil
}

// Reassemble reconstructs the original text from a chunk sequence by
// concatenating each chunk minus its overlap with the predecessor.
// Used by tests and re-ingestion checks.
func Reassemble(chunks []models.Chunk) string {
	var out []rune
	for _, c := range chunks {
		r := []rune(c.Text)
		if c.Overlap > len(r) {
			continue
		}
		out = append(out, r[c.Overlap:]...)
	}
	return string(out)
}
