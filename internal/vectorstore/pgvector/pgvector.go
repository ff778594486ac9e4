// Package pgvector persists vector records in Postgres using the
// pgvector extension and the pgx connection pool.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ragkit/internal/models"
	"ragkit/internal/ragerr"
	"ragkit/internal/vectorstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	dim  int
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("pgvector requires a positive embedding dimension, got %d", dim)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &ragerr.BackendUnavailableError{Backend: "pgvector", Err: err}
	}
	return &Store{pool: pool, dim: dim}, nil
}

// EnsureSchema creates the extension and record table if absent. Called
// once at service start. The embedding column is typed to the
// configured dimension so the server rejects mismatched vectors.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS vector_records (
  collection  text NOT NULL,
  record_id   text NOT NULL,
  document_id text NOT NULL,
  text        text NOT NULL,
  metadata    jsonb NOT NULL DEFAULT '{}',
  embedding   vector(%d) NOT NULL,
  seq         bigserial,
  updated_at  timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (collection, record_id)
)`, s.dim))
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, records []models.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, r := range records {
		meta, err := json.Marshal(metaOrEmpty(r.Metadata))
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO vector_records (collection, record_id, document_id, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
ON CONFLICT (collection, record_id)
DO UPDATE SET
  document_id = EXCLUDED.document_id,
  text = EXCLUDED.text,
  metadata = EXCLUDED.metadata,
  embedding = EXCLUDED.embedding,
  seq = nextval(pg_get_serial_sequence('vector_records', 'seq')),
  updated_at = now()`,
			collection, r.ID, r.DocumentID, r.Text, meta, ToLiteral(r.Vector),
		)
		if err != nil {
			return 0, wrapErr(fmt.Errorf("upsert record %s: %w", r.ID, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr(err)
	}
	return len(records), nil
}

func (s *Store) Query(ctx context.Context, collection string, vector []float32, opts vectorstore.QueryOptions) ([]models.SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	vecLiteral := ToLiteral(vector)
	args := []any{collection, vecLiteral, opts.TopK}
	filterSQL := ""
	if docID, ok := opts.Filters["document_id"]; ok {
		args = append(args, docID)
		filterSQL += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	if rest := withoutKey(opts.Filters, "document_id"); len(rest) > 0 {
		meta, err := json.Marshal(rest)
		if err != nil {
			return nil, fmt.Errorf("marshal filters: %w", err)
		}
		args = append(args, meta)
		filterSQL += fmt.Sprintf(" AND metadata @> $%d::jsonb", len(args))
	}
	if opts.ScoreThreshold > 0 {
		args = append(args, opts.ScoreThreshold)
		filterSQL += fmt.Sprintf(" AND 1 - (embedding <=> $2::vector) >= $%d", len(args))
	}

	query := `
SELECT record_id, document_id, text, metadata,
       1 - (embedding <=> $2::vector) AS score
FROM vector_records
WHERE collection = $1` + filterSQL + `
ORDER BY embedding <=> $2::vector ASC, seq DESC
LIMIT $3`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(fmt.Errorf("query vector search: %w", err))
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, opts.TopK)
	for rows.Next() {
		var (
			r    models.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(fmt.Errorf("iterate search rows: %w", err))
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
DELETE FROM vector_records WHERE collection = $1 AND record_id = ANY($2)`, collection, ids)
	if err != nil {
		return 0, wrapErr(fmt.Errorf("delete records: %w", err))
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &ragerr.BackendUnavailableError{Backend: "pgvector", Err: err}
	}
	return nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// ToLiteral renders a vector in pgvector's input syntax.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// pgvector phrases dimension mismatches two ways: typed columns report
// "expected N dimensions, not M", untyped operator comparisons report
// "different vector dimensions N and M".
var dimensionRes = []*regexp.Regexp{
	regexp.MustCompile(`expected (\d+) dimensions?, not (\d+)`),
	regexp.MustCompile(`different vector dimensions (\d+) and (\d+)`),
}

// wrapErr maps server-reported dimension mismatches to
// InvalidVectorError and everything the server never saw to
// BackendUnavailableError.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, re := range dimensionRes {
			if m := re.FindStringSubmatch(pgErr.Message); m != nil {
				expected, _ := strconv.Atoi(m[1])
				actual, _ := strconv.Atoi(m[2])
				return &ragerr.InvalidVectorError{Expected: expected, Actual: actual}
			}
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ragerr.BackendUnavailableError{Backend: "pgvector", Err: err}
}

func metaOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func withoutKey(m map[string]string, key string) map[string]string {
	if _, ok := m[key]; !ok {
		return m
	}
	out := make(map[string]string, len(m)-1)
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}
