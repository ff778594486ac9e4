package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragkit/internal/models"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore"

	"github.com/stretchr/testify/require"
)

func newFakeQdrant(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/c", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
	})
	mux.HandleFunc("/collections/c/points", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})
			return
		}
		// Retrieve: pretend exactly one of the requested ids exists.
		var req struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		result := []map[string]any{}
		if len(req.IDs) > 0 {
			result = append(result, map[string]any{"id": req.IDs[0]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	})
	mux.HandleFunc("/collections/c/points/search", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"score": 0.93, "payload": map[string]any{
					"record_id": "doc:0", "document_id": "doc", "text": "hello",
					"updated_at": 10, "meta_lang": "en",
				}},
				{"score": 0.93, "payload": map[string]any{
					"record_id": "doc:1", "document_id": "doc", "text": "newer",
					"updated_at": 20,
				}},
			},
		})
	})
	mux.HandleFunc("/collections/c/points/delete", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestUpsertCreatesCollectionOnce(t *testing.T) {
	srv, paths := newFakeQdrant(t)
	s := NewStore(srv.URL, "")
	ctx := context.Background()

	recs := []models.VectorRecord{{ID: "doc:0", DocumentID: "doc", Vector: []float32{1, 0}, Text: "hello"}}
	n, err := s.Upsert(ctx, "c", recs)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.Upsert(ctx, "c", recs)
	require.NoError(t, err)

	created := 0
	for _, p := range *paths {
		if p == "PUT /collections/c" {
			created++
		}
	}
	require.Equal(t, 1, created)
}

func TestUpsertRejectsMixedDimensions(t *testing.T) {
	srv, _ := newFakeQdrant(t)
	s := NewStore(srv.URL, "")

	var invalid *ragerr.InvalidVectorError
	_, err := s.Upsert(context.Background(), "c", []models.VectorRecord{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{1, 0, 0}},
	})
	require.ErrorAs(t, err, &invalid)
}

func TestQueryDecodesPayloadAndBreaksTiesOnRecency(t *testing.T) {
	srv, _ := newFakeQdrant(t)
	s := NewStore(srv.URL, "")

	results, err := s.Query(context.Background(), "c", []float32{1, 0}, vectorstore.QueryOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "doc:1", results[0].ID)
	require.Equal(t, "doc:0", results[1].ID)
	require.Equal(t, "hello", results[1].Text)
	require.Equal(t, map[string]string{"lang": "en"}, results[1].Metadata)
}

func TestDeleteCountsExistingPoints(t *testing.T) {
	srv, _ := newFakeQdrant(t)
	s := NewStore(srv.URL, "")

	removed, err := s.Delete(context.Background(), "c", []string{"doc:0", "ghost"})
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestHealthAgainstUnreachableHost(t *testing.T) {
	s := NewStore("http://127.0.0.1:1", "")
	var unavailable *ragerr.BackendUnavailableError
	err := s.Health(context.Background())
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, "qdrant", unavailable.Backend)
}

func TestPointIDDeterministic(t *testing.T) {
	require.Equal(t, pointID("doc:0"), pointID("doc:0"))
	require.NotEqual(t, pointID("doc:0"), pointID("doc:1"))
}
