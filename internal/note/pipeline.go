package note

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/halvard/minne/internal/chunk"
	"github.com/halvard/minne/internal/fault"
	"github.com/halvard/minne/internal/ollama"
)

// ModelClient is the slice of the inference client the save pipeline needs.
// *ollama.Client satisfies it; tests substitute fakes.
type ModelClient interface {
	Embeddings(ctx context.Context, model, prompt string) ([]float32, error)
	Chat(ctx context.Context, model string, messages []ollama.Message) (ollama.Message, error)
}

// UserModels reports a user's configured model names (nil = not chosen).
type UserModels interface {
	Models(ctx context.Context, userID uuid.UUID) (chatModel, embeddingModel *string, err error)
}

// Pipeline runs the note save operation: draft lookup, chunking, concurrent
// embedding, title generation, and the transactional write.
type Pipeline struct {
	store       *Store
	users       UserModels
	client      ModelClient
	splitter    *chunk.Splitter
	concurrency int
	dimension   int
	logger      *slog.Logger

	now func() time.Time
}

// NewPipeline creates a save pipeline. concurrency bounds the number of
// embedding calls in flight for a single save. dimension, when positive, is
// the vector length every embedding must have; it must match the width of
// the chunks.embedding column.
func NewPipeline(store *Store, users UserModels, client ModelClient, splitter *chunk.Splitter, concurrency, dimension int, logger *slog.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:       store,
		users:       users,
		client:      client,
		splitter:    splitter,
		concurrency: concurrency,
		dimension:   dimension,
		logger:      logger,
		now:         time.Now,
	}
}

// SaveDraft stores the user's open draft: it becomes immutable, gains a
// title and stored date, and its chunk set is replaced with freshly embedded
// chunks. Retrying after a failure is idempotent at the granularity of "the
// one open draft for this user".
//
// Errors: fault.ErrNotFound when there is no draft or no embedding model is
// chosen; fault.ErrBadRequest when the draft is empty; fault.ErrInternal when
// embedding or persistence fails.
func (p *Pipeline) SaveDraft(ctx context.Context, userID uuid.UUID) (Note, error) {
	draft, err := p.store.findDraft(ctx, userID)
	if err != nil {
		return Note{}, err
	}

	content := strings.TrimSpace(strings.ReplaceAll(draft.Content, "\r\n", "\n"))
	if content == "" {
		return Note{}, fmt.Errorf("%w: cannot save an empty note", fault.ErrBadRequest)
	}

	chatModel, embeddingModel, err := p.users.Models(ctx, userID)
	if err != nil {
		return Note{}, err
	}
	if embeddingModel == nil {
		return Note{}, fmt.Errorf("%w: no embedding model chosen", fault.ErrNotFound)
	}

	pieces := p.splitter.Split(content)
	if len(pieces) == 0 {
		// Non-empty note that chunked to nothing: embed it whole.
		pieces = []chunk.Chunk{{
			Index:   0,
			Content: content,
			Start:   0,
			End:     len([]rune(content)),
		}}
	}

	p.logger.Debug("embedding chunks", "note_id", draft.ID, "chunks", len(pieces))
	embedded, err := p.embedChunks(ctx, *embeddingModel, pieces)
	if err != nil {
		return Note{}, fmt.Errorf("%w: embedding note chunks: %v", fault.ErrInternal, err)
	}

	title := p.titleFor(ctx, chatModel, content)
	storedDate := p.now().UTC()

	if err := p.store.Save(ctx, draft.ID, title, content, storedDate, embedded); err != nil {
		return Note{}, err
	}

	saved := draft
	saved.Title = &title
	saved.Content = content
	saved.StoredDate = &storedDate
	return saved, nil
}

// embedChunks embeds every chunk with bounded concurrency. Completion order
// is arbitrary; results land in their original slots so the stored order
// matches chunk index. Any failure aborts the whole batch: partial chunk
// sets are never persisted.
func (p *Pipeline) embedChunks(ctx context.Context, model string, pieces []chunk.Chunk) ([]EmbeddedChunk, error) {
	embedded := make([]EmbeddedChunk, len(pieces))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := p.client.Embeddings(ctx, model, piece.Content)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", piece.Index, err)
			}
			if p.dimension > 0 && len(vec) != p.dimension {
				return fmt.Errorf("chunk %d: embedding has %d dimensions, want %d; the configured dimension must match the deployed embedding model", piece.Index, len(vec), p.dimension)
			}
			embedded[i] = EmbeddedChunk{
				ID:      uuid.New(),
				Index:   piece.Index,
				Section: piece.Section,
				Start:   piece.Start,
				End:     piece.End,
				Content: piece.Content,
				Vector:  vec,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embedded, nil
}
