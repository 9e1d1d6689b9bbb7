// Package corpus persists text chunks with their embedding vectors and
// serves nearest-neighbor retrieval.
//
// Backed by PostgreSQL with the pgvector extension. Distance is L2 (the
// <-> operator), matching the vector_l2_ops ivfflat index created by the
// migrations; the metric and the index must never disagree.
package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// corpus dimensionality. This is a configuration error and always fatal,
// never silently truncated.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one bounded-length text segment of a source document together
// with its embedding. ChunkIndex values for a source URL are contiguous
// from 0 in document order; they exist for traceability, not ranking.
type Chunk struct {
	ID         int64
	SourceURL  string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// DB is the subset of *pgxpool.Pool the store uses. Defined on the
// consumer side so tests can substitute a double.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages chunk rows. Safe for concurrent use; batch writes are
// transactional so concurrent writers see each batch entirely or not at all.
type Store struct {
	db         DB
	dimensions int
	logger     log.Logger
}

// New creates a Store. dimensions is the fixed corpus dimensionality (the
// vector column width in the schema).
func New(db DB, dimensions int, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		db:         db,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Dimensions returns the fixed corpus dimensionality.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// PutChunks appends chunks in one atomic batch: on any failure nothing from
// the batch becomes visible. Every embedding is dimension-checked before
// the first write. No deduplication is applied; re-ingesting a source URL
// appends duplicate rows.
func (s *Store) PutChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return fmt.Errorf("%w: chunk %d of %s has %d dimensions, corpus uses %d",
				ErrDimensionMismatch, i, c.SourceURL, len(c.Embedding), s.dimensions)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	for i, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (source_url, chunk_index, text, embedding)
			 VALUES ($1, $2, $3, $4)`,
			c.SourceURL, c.ChunkIndex, c.Text, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", i, c.SourceURL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}

	s.logger.Debug("stored chunks", "source_url", chunks[0].SourceURL, "count", len(chunks))
	return nil
}

// TopK returns the k chunks nearest to query under L2 distance, nearest
// first, ties broken by insertion order (smaller id first). Fewer than k
// stored chunks returns all of them; k <= 0 returns an empty result without
// touching the database.
func (s *Store) TopK(ctx context.Context, query []float32, k int) ([]Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, corpus uses %d",
			ErrDimensionMismatch, len(query), s.dimensions)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, source_url, chunk_index, text, embedding
		 FROM chunks
		 ORDER BY embedding <-> $1, id
		 LIMIT $2`,
		pgvector.NewVector(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c   Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.SourceURL, &c.ChunkIndex, &c.Text, &vec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}

	return chunks, nil
}

// CountBySource returns how many chunks are stored for a source URL.
func (s *Store) CountBySource(ctx context.Context, sourceURL string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE source_url = $1`, sourceURL,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}
