// Package retrieval finds the note chunks most relevant to a question.
//
// A query is embedded, nearest neighbors are fetched from the vector index
// scoped to the asking user, and the surviving chunks are grouped by source
// note, ranked, and rendered into the context text handed to the chat model.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halvard/minne/internal/fault"
)

// NoMatchesSentinel is the exact context string used when no chunk passed
// the distance threshold. The chat system prompt instructs the model to
// recognize it and answer from general knowledge while saying no notes
// matched.
const NoMatchesSentinel = "No related note chunks were found for this question."

// NoteReference summarizes one retrieved note for presentation alongside a
// chat answer. Index is the 1-based display number in ranked order.
type NoteReference struct {
	NoteID     uuid.UUID  `json:"noteId"`
	Index      int        `json:"index"`
	Title      string     `json:"title"`
	StoredDate *time.Time `json:"storedDate,omitempty"`
}

// ChunkHit is one row returned by the vector search, ordered by distance
// ascending.
type ChunkHit struct {
	ChunkID    uuid.UUID
	NoteID     uuid.UUID
	ChunkIndex int
	Section    string
	Content    string
	Title      *string
	StoredDate *time.Time
	Distance   float64
}

// Embedder generates query embeddings. *ollama.Client satisfies it.
type Embedder interface {
	Embeddings(ctx context.Context, model, prompt string) ([]float32, error)
}

// Searcher runs the nearest-neighbor query. Defined here, implemented by
// Store, mocked in tests.
type Searcher interface {
	SearchChunks(ctx context.Context, userID uuid.UUID, queryVec []float32, maxDistance float64, limit int) ([]ChunkHit, error)
}

// Result is what retrieval hands to the chat service: the ranked references
// and the context text for the model.
type Result struct {
	References []NoteReference
	Context    string
}

// Retriever embeds queries and assembles ranked retrieval results.
type Retriever struct {
	searcher    Searcher
	embedder    Embedder
	maxDistance float64
	limit       int
	logger      *slog.Logger
}

// NewRetriever creates a Retriever. maxDistance is the cosine distance
// threshold excluding irrelevant matches; limit caps the number of chunks
// considered.
func NewRetriever(searcher Searcher, embedder Embedder, maxDistance float64, limit int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		searcher:    searcher,
		embedder:    embedder,
		maxDistance: maxDistance,
		limit:       limit,
		logger:      logger,
	}
}

// Retrieve embeds the query, searches the user's chunks, and returns ranked
// references plus the context text. No matches yields empty references and
// the sentinel context.
func (r *Retriever) Retrieve(ctx context.Context, userID uuid.UUID, embeddingModel, query string) (Result, error) {
	vec, err := r.embedder.Embeddings(ctx, embeddingModel, query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: embedding prompt: %v", fault.ErrInternal, err)
	}
	if len(vec) == 0 {
		return Result{}, fmt.Errorf("%w: empty prompt embedding", fault.ErrInternal)
	}

	hits, err := r.searcher.SearchChunks(ctx, userID, vec, r.maxDistance, r.limit)
	if err != nil {
		return Result{}, fmt.Errorf("%w: searching chunks: %v", fault.ErrInternal, err)
	}

	groups := rankGroups(groupHits(hits, r.maxDistance))
	r.logger.Debug("retrieval complete", "user_id", userID, "hits", len(hits), "notes", len(groups))

	return Result{
		References: buildReferences(groups),
		Context:    buildContext(groups),
	}, nil
}

// group collects the hits from one note, with the closest distance and the
// richest title/date seen across its rows.
type group struct {
	noteID      uuid.UUID
	minDistance float64
	title       *string
	storedDate  *time.Time
	chunks      []ChunkHit
}

// groupHits buckets hits by source note, dropping rows beyond maxDistance.
// First-seen order of notes is preserved for deterministic tie handling.
func groupHits(hits []ChunkHit, maxDistance float64) []group {
	byNote := make(map[uuid.UUID]int)
	var groups []group

	for _, hit := range hits {
		if hit.Distance >= maxDistance {
			continue
		}

		idx, ok := byNote[hit.NoteID]
		if !ok {
			idx = len(groups)
			byNote[hit.NoteID] = idx
			groups = append(groups, group{
				noteID:      hit.NoteID,
				minDistance: hit.Distance,
			})
		}

		g := &groups[idx]
		if hit.Distance < g.minDistance {
			g.minDistance = hit.Distance
		}
		if g.title == nil && hit.Title != nil {
			g.title = hit.Title
		}
		if g.storedDate == nil && hit.StoredDate != nil {
			g.storedDate = hit.StoredDate
		}
		g.chunks = append(g.chunks, hit)
	}

	return groups
}

// rankGroups orders groups by stored date descending (recent notes win),
// tie-broken by ascending minimum distance (closer match wins). Groups
// without a date sort last.
func rankGroups(groups []group) []group {
	sort.SliceStable(groups, func(i, j int) bool {
		di, dj := groups[i].storedDate, groups[j].storedDate
		switch {
		case di == nil && dj == nil:
			// Fall through to distance.
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.After(*dj)
		}
		return groups[i].minDistance < groups[j].minDistance
	})
	return groups
}

// buildReferences numbers the ranked groups 1..K.
func buildReferences(groups []group) []NoteReference {
	refs := make([]NoteReference, 0, len(groups))
	for i, g := range groups {
		refs = append(refs, NoteReference{
			NoteID:     g.noteID,
			Index:      i + 1,
			Title:      titleOrDefault(g.title),
			StoredDate: g.storedDate,
		})
	}
	return refs
}

// buildContext renders the model-facing context: one block per group, header
// first, chunks sorted by their position in the note and labeled with it.
func buildContext(groups []group) string {
	if len(groups) == 0 {
		return NoMatchesSentinel
	}

	blocks := make([]string, 0, len(groups))
	for i, g := range groups {
		var b strings.Builder
		fmt.Fprintf(&b, "Note [%d]: %q", i+1, titleOrDefault(g.title))
		if g.storedDate != nil {
			fmt.Fprintf(&b, " (saved %s)", g.storedDate.Format("2006-01-02"))
		}

		chunks := append([]ChunkHit(nil), g.chunks...)
		sort.Slice(chunks, func(x, y int) bool { return chunks[x].ChunkIndex < chunks[y].ChunkIndex })

		for _, c := range chunks {
			b.WriteString("\n")
			fmt.Fprintf(&b, "[part %d", c.ChunkIndex+1)
			if c.Section != "" {
				fmt.Fprintf(&b, ", %s", c.Section)
			}
			b.WriteString("] ")
			b.WriteString(c.Content)
		}
		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n\n")
}

func titleOrDefault(title *string) string {
	if title != nil && strings.TrimSpace(*title) != "" {
		return *title
	}
	return "Untitled note"
}
