// Package memory is an in-process vector store using brute-force cosine
// similarity. It is the default backend for tests and small corpora.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"ragkit/internal/models"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore"
)

type record struct {
	models.VectorRecord
	seq uint64
}

type collection struct {
	dimension int
	records   map[string]*record
}

// Store keeps all records in memory. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	nextSeq     uint64
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{collections: map[string]*collection{}}
}

func (s *Store) Upsert(ctx context.Context, name string, records []models.VectorRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[name]
	if col == nil {
		col = &collection{records: map[string]*record{}}
		s.collections[name] = col
	}
	// Validate the whole batch before mutating anything.
	for _, r := range records {
		dim := col.dimension
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return 0, &ragerr.InvalidVectorError{Expected: dim, Actual: len(r.Vector)}
		}
	}
	for _, r := range records {
		if col.dimension == 0 {
			col.dimension = len(r.Vector)
		}
		s.nextSeq++
		col.records[r.ID] = &record{VectorRecord: r, seq: s.nextSeq}
	}
	return len(records), nil
}

func (s *Store) Query(ctx context.Context, name string, vector []float32, opts vectorstore.QueryOptions) ([]models.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[name]
	if col == nil || len(col.records) == 0 {
		return []models.SearchResult{}, nil
	}
	if len(vector) != col.dimension {
		return nil, &ragerr.InvalidVectorError{Expected: col.dimension, Actual: len(vector)}
	}

	type scored struct {
		rec   *record
		score float64
	}
	candidates := make([]scored, 0, len(col.records))
	for _, r := range col.records {
		if !matchesFilters(r.Metadata, r.DocumentID, opts.Filters) {
			continue
		}
		score := cosineSimilarity(vector, r.Vector)
		// Zero threshold means none was requested; negative-cosine
		// candidates still count toward TopK then.
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		candidates = append(candidates, scored{rec: r, score: score})
	}
	// Descending score; equal scores break toward the most recent
	// upsert so repeated queries over a fixed state are deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq > candidates[j].rec.seq
	})
	if len(candidates) > opts.TopK {
		candidates = candidates[:opts.TopK]
	}
	out := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, models.SearchResult{
			ID:         c.rec.ID,
			DocumentID: c.rec.DocumentID,
			Text:       c.rec.Text,
			Score:      c.score,
			Metadata:   c.rec.Metadata,
		})
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[name]
	if col == nil {
		return 0, nil
	}
	removed := 0
	for _, id := range ids {
		if _, ok := col.records[id]; ok {
			delete(col.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Health(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

func matchesFilters(metadata map[string]string, documentID string, filters map[string]string) bool {
	for k, want := range filters {
		if k == "document_id" {
			if documentID != want {
				return false
			}
			continue
		}
		if metadata[k] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
