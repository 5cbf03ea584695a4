package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/halvard/minne/internal/chat"
	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/ollama"
	"github.com/halvard/minne/internal/retrieval"
)

// ChatHandler handles the streaming chat endpoint.
//
// Endpoint:
//   - POST /api/chat - answer a question over the user's notes (SSE)
//
// The response is a Server-Sent Events stream. The first event is always
// "references" with the ranked source notes; "data" events carry answer
// fragments; an "error" event terminates a stream that failed after it
// started.
type ChatHandler struct {
	svc    *chat.Service
	logger log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *chat.Service, logger log.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// SSEReferencesData is the data for "references" events.
type SSEReferencesData struct {
	References []retrieval.NoteReference `json:"references"`
}

// SSEChunkData is the data for "data" events.
type SSEChunkData struct {
	Text string `json:"text"`
}

// SSEErrorData is the data for "error" events.
type SSEErrorData struct {
	Message string `json:"message"`
}

// handleChat handles POST /api/chat.
//
// Request body: {"messages": [{"role": "user", "content": "..."}]}
// Response: Server-Sent Events stream.
//
// Errors before the stream starts (bad request, missing models, retrieval
// failure) come back as plain JSON errors; once streaming has begun they
// arrive in-band as an "error" event.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	var req struct {
		Messages []ollama.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	events, err := h.svc.Ask(r.Context(), userID, req.Messages)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ctx := r.Context()
	h.logger.Info("chat stream started", "user_id", userID)

	for event := range events {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "user_id", userID)
			return
		default:
		}

		switch event.Type {
		case chat.EventReferences:
			writeSSE(w, flusher, "references", SSEReferencesData{References: event.References})
		case chat.EventData:
			writeSSE(w, flusher, "data", SSEChunkData{Text: event.Data})
		case chat.EventError:
			h.logger.Error("chat stream failed", "error", event.Error, "user_id", userID)
			writeSSE(w, flusher, "error", SSEErrorData{Message: event.Error})
			return
		}
	}

	h.logger.Info("chat stream completed", "user_id", userID)
}

// writeSSE writes one event to the SSE stream.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
