// Package chat answers questions over a user's notes.
//
// Each question is grounded by retrieval: the relevant chunks become the
// model's context, and the answer streams back as events with the note
// references up front so a client can render citations before the first
// token arrives.
package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/halvard/minne/internal/fault"
	"github.com/halvard/minne/internal/ollama"
	"github.com/halvard/minne/internal/retrieval"
)

const systemPromptTemplate = `You are a helpful assistant answering questions about the user's personal notes.

Note chunks relevant to the question are provided below. Ground your answer in them and cite notes by their bracketed number, for example [1]. If the provided context is exactly "%s", say that no saved notes matched the question and answer from general knowledge instead.

Context:
%s`

// Streamer is the slice of the inference client the chat service needs.
// *ollama.Client satisfies it.
type Streamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message) iter.Seq2[ollama.ChatFragment, error]
}

// ModelSource reports a user's configured model names (nil = not chosen).
type ModelSource interface {
	Models(ctx context.Context, userID uuid.UUID) (chatModel, embeddingModel *string, err error)
}

// NoteRetriever finds the chunks relevant to a question.
type NoteRetriever interface {
	Retrieve(ctx context.Context, userID uuid.UUID, embeddingModel, query string) (retrieval.Result, error)
}

// Service wires retrieval and the chat model into a streaming answer.
type Service struct {
	users     ModelSource
	retriever NoteRetriever
	client    Streamer
	logger    *slog.Logger
}

// NewService creates a chat Service.
func NewService(users ModelSource, retriever NoteRetriever, client Streamer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		retriever: retriever,
		client:    client,
		logger:    logger,
	}
}

// Ask answers the conversation's latest user message over the user's notes.
// Failures before the model starts generating (missing models, retrieval
// errors) are returned directly; failures mid-stream surface as an error
// event in the sequence.
//
// Errors: fault.ErrBadRequest when there is no user message to answer;
// fault.ErrNotFound when the user or a required model is missing;
// fault.ErrInternal when retrieval fails.
func (s *Service) Ask(ctx context.Context, userID uuid.UUID, messages []ollama.Message) (iter.Seq[Event], error) {
	query := latestUserMessage(messages)
	if query == "" {
		return nil, fmt.Errorf("%w: no user message to answer", fault.ErrBadRequest)
	}

	chatModel, embeddingModel, err := s.users.Models(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chatModel == nil {
		return nil, fmt.Errorf("%w: no chat model chosen", fault.ErrNotFound)
	}
	if embeddingModel == nil {
		return nil, fmt.Errorf("%w: no embedding model chosen", fault.ErrNotFound)
	}

	result, err := s.retriever.Retrieve(ctx, userID, *embeddingModel, query)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("answering question", "user_id", userID, "references", len(result.References))

	prompt := []ollama.Message{{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptTemplate, retrieval.NoMatchesSentinel, result.Context),
	}}
	prompt = append(prompt, messages...)

	upstream := s.client.ChatStream(ctx, *chatModel, prompt)
	return Compose(result.References, upstream), nil
}

// latestUserMessage returns the trimmed content of the last user-role
// message, or "" when there is none.
func latestUserMessage(messages []ollama.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}
