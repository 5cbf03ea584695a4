package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/halvard/minne/internal/fault"
	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/note"
)

// NoteHandler handles draft and note endpoints.
type NoteHandler struct {
	notes    *note.Store
	pipeline *note.Pipeline
	logger   log.Logger
}

// NewNoteHandler creates a new note handler.
func NewNoteHandler(notes *note.Store, pipeline *note.Pipeline, logger log.Logger) *NoteHandler {
	return &NoteHandler{notes: notes, pipeline: pipeline, logger: logger}
}

// RegisterRoutes registers note routes on the given mux.
func (h *NoteHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/draft", h.getDraft)
	mux.HandleFunc("PUT /api/draft", h.updateDraft)
	mux.HandleFunc("POST /api/draft/save", h.saveDraft)
	mux.HandleFunc("GET /api/notes", h.list)
	mux.HandleFunc("GET /api/notes/{id}", h.get)
	mux.HandleFunc("DELETE /api/notes/{id}", h.delete)
}

// NoteResponse is the JSON shape of a full note.
type NoteResponse struct {
	ID         uuid.UUID  `json:"id"`
	Title      *string    `json:"title"`
	Content    string     `json:"content"`
	StoredDate *time.Time `json:"storedDate"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NoteSummaryResponse is the JSON shape of a note in list results.
type NoteSummaryResponse struct {
	ID         uuid.UUID  `json:"id"`
	Title      *string    `json:"title"`
	StoredDate *time.Time `json:"storedDate"`
}

func toNoteResponse(n note.Note) NoteResponse {
	return NoteResponse{
		ID:         n.ID,
		Title:      n.Title,
		Content:    n.Content,
		StoredDate: n.StoredDate,
		CreatedAt:  n.CreatedAt,
	}
}

// getDraft handles GET /api/draft. The draft is created on first access.
func (h *NoteHandler) getDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	draft, err := h.notes.Draft(r.Context(), userID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toNoteResponse(draft))
}

// updateDraft handles PUT /api/draft.
// Request body: {"content": "..."}
func (h *NoteHandler) updateDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if err := h.notes.UpdateDraftContent(r.Context(), userID, req.Content); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveDraft handles POST /api/draft/save. The draft becomes a saved note:
// chunked, embedded, titled, and stored in one transaction.
func (h *NoteHandler) saveDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	saved, err := h.pipeline.SaveDraft(r.Context(), userID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	h.logger.Info("draft saved", "user_id", userID, "note_id", saved.ID)
	writeJSON(w, h.logger, http.StatusOK, toNoteResponse(saved))
}

// list handles GET /api/notes. Only saved notes appear, most recent first.
func (h *NoteHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	summaries, err := h.notes.List(r.Context(), userID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	resp := make([]NoteSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, NoteSummaryResponse{ID: s.ID, Title: s.Title, StoredDate: s.StoredDate})
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// get handles GET /api/notes/{id}.
func (h *NoteHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	noteID, err := pathNoteID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	n, err := h.notes.Get(r.Context(), userID, noteID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toNoteResponse(n))
}

// delete handles DELETE /api/notes/{id}.
func (h *NoteHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	noteID, err := pathNoteID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	if err := h.notes.Delete(r.Context(), userID, noteID); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	h.logger.Info("note deleted", "user_id", userID, "note_id", noteID)
	w.WriteHeader(http.StatusNoContent)
}

func pathNoteID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid note id", fault.ErrBadRequest)
	}
	return id, nil
}
