// Package note manages notes and their embedded chunks.
//
// A user has at most one draft note (stored_date NULL); saving the draft
// freezes its content, titles it, and replaces its chunk set with freshly
// embedded chunks in a single transaction.
package note

import (
	"time"

	"github.com/google/uuid"
)

// Note is a user's note. StoredDate is nil while the note is an open draft;
// once set, the note is immutable.
type Note struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Title      *string
	Content    string
	StoredDate *time.Time
	CreatedAt  time.Time
}

// Saved reports whether the note has been stored.
func (n *Note) Saved() bool { return n.StoredDate != nil }

// Summary is the listing projection of a note, without content.
type Summary struct {
	ID         uuid.UUID
	Title      *string
	StoredDate *time.Time
}

// EmbeddedChunk is a chunk of note content together with its embedding
// vector and positional metadata, ready for persistence.
type EmbeddedChunk struct {
	ID      uuid.UUID
	Index   int
	Section string
	Start   int
	End     int
	Content string
	Vector  []float32
}
