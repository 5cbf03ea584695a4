package note

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/halvard/minne/internal/fault"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const noteCols = `id, user_id, title, content, stored_date, created_at`

// Store persists notes and their embedded chunks in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a note Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Draft returns the user's open draft, creating it when absent. The partial
// unique index on (user_id) WHERE stored_date IS NULL makes the create side
// race-safe: a concurrent insert loses the conflict and falls through to the
// select.
func (s *Store) Draft(ctx context.Context, userID uuid.UUID) (Note, error) {
	n, err := s.findDraft(ctx, userID)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return Note{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO notes (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) WHERE stored_date IS NULL DO NOTHING
		RETURNING `+noteCols,
		userID)

	n, err = scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race; the draft now exists.
		return s.findDraft(ctx, userID)
	}
	if err != nil {
		return Note{}, fmt.Errorf("creating draft: %w", err)
	}
	return n, nil
}

// findDraft returns the user's open draft or fault.ErrNotFound.
func (s *Store) findDraft(ctx context.Context, userID uuid.UUID) (Note, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+noteCols+`
		FROM notes
		WHERE user_id = $1 AND stored_date IS NULL`,
		userID)

	n, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, fmt.Errorf("%w: no draft note", fault.ErrNotFound)
	}
	if err != nil {
		return Note{}, fmt.Errorf("finding draft: %w", err)
	}
	return n, nil
}

// UpdateDraftContent replaces the content of the user's open draft.
func (s *Store) UpdateDraftContent(ctx context.Context, userID uuid.UUID, content string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notes
		SET content = $2
		WHERE user_id = $1 AND stored_date IS NULL`,
		userID, content)
	if err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no draft note", fault.ErrNotFound)
	}
	return nil
}

// Get returns one of the user's notes.
func (s *Store) Get(ctx context.Context, userID, noteID uuid.UUID) (Note, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+noteCols+`
		FROM notes
		WHERE id = $1 AND user_id = $2`,
		noteID, userID)

	n, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, fmt.Errorf("%w: note %s", fault.ErrNotFound, noteID)
	}
	if err != nil {
		return Note{}, fmt.Errorf("getting note: %w", err)
	}
	return n, nil
}

// List returns summaries of the user's saved notes, most recent first.
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, stored_date
		FROM notes
		WHERE user_id = $1 AND stored_date IS NOT NULL
		ORDER BY stored_date DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.StoredDate); err != nil {
			return nil, fmt.Errorf("scanning note summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return summaries, nil
}

// Delete removes one of the user's notes; its chunks go with it via the
// foreign key cascade.
func (s *Store) Delete(ctx context.Context, userID, noteID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notes
		WHERE id = $1 AND user_id = $2`,
		noteID, userID)
	if err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: note %s", fault.ErrNotFound, noteID)
	}
	return nil
}

// Save stores the draft's final content, title, and stored date, and replaces
// its chunk set, all in one transaction. An empty chunk list still clears the
// previous chunks: a note with no retrievable content is a valid terminal
// state. A single invalid vector aborts the whole transaction.
func (s *Store) Save(ctx context.Context, noteID uuid.UUID, title, content string, storedDate time.Time, chunks []EmbeddedChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin save: %v", fault.ErrInternal, err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "note_id", noteID, "error", rbErr)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE notes
		SET title = $2, content = $3, stored_date = $4
		WHERE id = $1`,
		noteID, title, content, storedDate)
	if err != nil {
		return fmt.Errorf("%w: storing note: %v", fault.ErrInternal, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: note %s", fault.ErrNotFound, noteID)
	}

	if err := replaceChunks(ctx, tx, noteID, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit save: %v", fault.ErrInternal, err)
	}

	s.logger.Info("note saved", "note_id", noteID, "chunks", len(chunks))
	return nil
}

// replaceChunks deletes the note's existing chunks and inserts the new set.
// Vectors are validated right before insertion.
func replaceChunks(ctx context.Context, q querier, noteID uuid.UUID, chunks []EmbeddedChunk) error {
	if _, err := q.Exec(ctx, `DELETE FROM chunks WHERE note_id = $1`, noteID); err != nil {
		return fmt.Errorf("%w: clearing chunks: %v", fault.ErrInternal, err)
	}

	for _, c := range chunks {
		if err := validateVector(c.Vector); err != nil {
			return fmt.Errorf("%w: chunk %d: %v", fault.ErrInternal, c.Index, err)
		}
		_, err := q.Exec(ctx, `
			INSERT INTO chunks (id, note_id, chunk_index, section, start_offset, end_offset, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, noteID, c.Index, c.Section, c.Start, c.End, c.Content, pgvector.NewVector(c.Vector))
		if err != nil {
			return fmt.Errorf("%w: inserting chunk %d: %v", fault.ErrInternal, c.Index, err)
		}
	}
	return nil
}

// CountChunks returns the number of stored chunks for a note.
func (s *Store) CountChunks(ctx context.Context, noteID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE note_id = $1`, noteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.StoredDate, &n.CreatedAt)
	return n, err
}
