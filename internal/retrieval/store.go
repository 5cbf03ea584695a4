package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store runs nearest-neighbor chunk searches against PostgreSQL with
// pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a retrieval Store.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// SearchChunks returns the user's chunks nearest to queryVec by cosine
// distance, closest first. Only saved notes are searched; an open draft has
// no chunks by construction but the stored_date filter keeps that invariant
// out of the query's hands.
func (s *Store) SearchChunks(ctx context.Context, userID uuid.UUID, queryVec []float32, maxDistance float64, limit int) ([]ChunkHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.note_id, c.chunk_index, c.section, c.content,
		       n.title, n.stored_date,
		       c.embedding <=> $2 AS distance
		FROM chunks AS c
		JOIN notes AS n ON n.id = c.note_id
		WHERE n.user_id = $1
		  AND n.stored_date IS NOT NULL
		  AND c.embedding <=> $2 < $3
		ORDER BY distance
		LIMIT $4`,
		userID, pgvector.NewVector(queryVec), maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.NoteID, &h.ChunkIndex, &h.Section, &h.Content, &h.Title, &h.StoredDate, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	return hits, nil
}
