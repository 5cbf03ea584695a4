// Package user persists user records and their model configuration.
//
// Authentication and role administration live outside this service; the only
// user state the RAG pipeline needs is which chat and embedding models each
// user has chosen.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halvard/minne/internal/fault"
)

// User is an account with its model configuration. Nil model fields mean no
// model has been chosen yet.
type User struct {
	ID             uuid.UUID
	Name           string
	ChatModel      *string
	EmbeddingModel *string
	CreatedAt      time.Time
}

// Store persists users in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a user Store.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Create inserts a user with no models chosen.
func (s *Store) Create(ctx context.Context, name string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (name)
		VALUES ($1)
		RETURNING id, name, chat_model, embedding_model, created_at`,
		name)

	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.ChatModel, &u.EmbeddingModel, &u.CreatedAt); err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// Get returns a user by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, chat_model, embedding_model, created_at
		FROM users
		WHERE id = $1`,
		id)

	var u User
	err := row.Scan(&u.ID, &u.Name, &u.ChatModel, &u.EmbeddingModel, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %s", fault.ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// Models returns the user's configured model names (nil = not chosen).
func (s *Store) Models(ctx context.Context, userID uuid.UUID) (chatModel, embeddingModel *string, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chat_model, embedding_model
		FROM users
		WHERE id = $1`,
		userID)

	err = row.Scan(&chatModel, &embeddingModel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: user %s", fault.ErrNotFound, userID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("getting user models: %w", err)
	}
	return chatModel, embeddingModel, nil
}

// SetModels updates the user's chosen chat and embedding models. Nil clears
// a selection.
func (s *Store) SetModels(ctx context.Context, userID uuid.UUID, chatModel, embeddingModel *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET chat_model = $2, embedding_model = $3
		WHERE id = $1`,
		userID, chatModel, embeddingModel)
	if err != nil {
		return fmt.Errorf("setting user models: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", fault.ErrNotFound, userID)
	}
	return nil
}
