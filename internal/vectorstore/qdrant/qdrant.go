// Package qdrant talks to a Qdrant instance over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ragkit/internal/models"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore"

	"github.com/google/uuid"
)

// pointNamespace seeds deterministic point UUIDs so upserts stay
// idempotent on the caller's record id. Qdrant only accepts integer or
// UUID point ids.
var pointNamespace = uuid.MustParse("9f2c3e44-7b1a-4c53-9b7e-d41ce1a0f8aa")

type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu      sync.Mutex
	ensured map[string]bool
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(baseURL, apiKey string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		ensured: map[string]bool{},
	}
}

func pointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func (s *Store) ensureCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	done := s.ensured[name]
	s.mu.Unlock()
	if done {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	// 409 means the collection already exists, which is fine.
	if err := s.do(ctx, http.MethodPut, "/collections/"+name, body, nil, http.StatusConflict); err != nil {
		return err
	}
	s.mu.Lock()
	s.ensured[name] = true
	s.mu.Unlock()
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, records []models.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dim := len(records[0].Vector)
	for _, r := range records {
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return 0, &ragerr.InvalidVectorError{Expected: dim, Actual: len(r.Vector)}
		}
	}
	if err := s.ensureCollection(ctx, collection, dim); err != nil {
		return 0, err
	}

	points := make([]map[string]any, 0, len(records))
	now := time.Now().UnixNano()
	for i, r := range records {
		payload := map[string]any{
			"record_id":   r.ID,
			"document_id": r.DocumentID,
			"text":        r.Text,
			"updated_at":  now + int64(i),
		}
		for k, v := range r.Metadata {
			payload["meta_"+k] = v
		}
		points = append(points, map[string]any{
			"id":      pointID(r.ID),
			"vector":  r.Vector,
			"payload": payload,
		})
	}
	err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true",
		map[string]any{"points": points}, nil)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

type searchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *Store) Query(ctx context.Context, collection string, vector []float32, opts vectorstore.QueryOptions) ([]models.SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        opts.TopK,
		"with_payload": true,
	}
	if opts.ScoreThreshold > 0 {
		body["score_threshold"] = opts.ScoreThreshold
	}
	if len(opts.Filters) > 0 {
		must := make([]map[string]any, 0, len(opts.Filters))
		for k, v := range opts.Filters {
			key := "meta_" + k
			if k == "document_id" {
				key = "document_id"
			}
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": v},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []searchHit `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp)
	if err != nil {
		if isMissingCollection(err) {
			return []models.SearchResult{}, nil
		}
		return nil, err
	}

	type hit struct {
		result    models.SearchResult
		updatedAt int64
	}
	hits := make([]hit, 0, len(resp.Result))
	for _, h := range resp.Result {
		r := models.SearchResult{Score: h.Score}
		meta := map[string]string{}
		var updatedAt int64
		for k, v := range h.Payload {
			switch {
			case k == "record_id":
				r.ID, _ = v.(string)
			case k == "document_id":
				r.DocumentID, _ = v.(string)
			case k == "text":
				r.Text, _ = v.(string)
			case k == "updated_at":
				if f, ok := v.(float64); ok {
					updatedAt = int64(f)
				}
			case strings.HasPrefix(k, "meta_"):
				if sv, ok := v.(string); ok {
					meta[strings.TrimPrefix(k, "meta_")] = sv
				}
			}
		}
		if len(meta) > 0 {
			r.Metadata = meta
		}
		hits = append(hits, hit{result: r, updatedAt: updatedAt})
	}
	// Qdrant orders by score only; re-sort so equal scores break toward
	// the most recent upsert, matching the other backends.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].result.Score != hits[j].result.Score {
			return hits[i].result.Score > hits[j].result.Score
		}
		return hits[i].updatedAt > hits[j].updatedAt
	})
	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.result)
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pids := make([]string, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, pointID(id))
	}

	// Qdrant's delete does not report how many points existed, so count
	// them first.
	var existing struct {
		Result []struct {
			ID string `json:"id"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points",
		map[string]any{"ids": pids}, &existing)
	if err != nil {
		if isMissingCollection(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(existing.Result) == 0 {
		return 0, nil
	}
	err = s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true",
		map[string]any{"points": pids}, nil)
	if err != nil {
		return 0, err
	}
	return len(existing.Result), nil
}

func (s *Store) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return &ragerr.BackendUnavailableError{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ragerr.BackendUnavailableError{Backend: "qdrant", Err: fmt.Errorf("readyz returned %d", resp.StatusCode)}
	}
	return nil
}

func (s *Store) Close() {}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("qdrant returned %d: %s", e.Status, e.Body)
}

func isMissingCollection(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

// do sends a JSON request and decodes the JSON response into out when
// out is non-nil. Extra acceptable statuses beyond 2xx may be listed.
func (s *Store) do(ctx context.Context, method, path string, body any, out any, okStatuses ...int) error {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, buf)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return &ragerr.BackendUnavailableError{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		accepted := false
		for _, st := range okStatuses {
			if resp.StatusCode == st {
				accepted = true
				break
			}
		}
		if !accepted {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
