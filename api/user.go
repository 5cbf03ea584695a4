package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/user"
)

// UserHandler handles user and model selection endpoints.
type UserHandler struct {
	users  *user.Store
	logger log.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *user.Store, logger log.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// RegisterRoutes registers user routes on the given mux.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", h.create)
	mux.HandleFunc("GET /api/user", h.get)
	mux.HandleFunc("PUT /api/user/models", h.setModels)
}

// UserResponse is the JSON shape of a user.
type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	ChatModel      *string   `json:"chatModel"`
	EmbeddingModel *string   `json:"embeddingModel"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toUserResponse(u user.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		ChatModel:      u.ChatModel,
		EmbeddingModel: u.EmbeddingModel,
		CreatedAt:      u.CreatedAt,
	}
}

// create handles POST /api/users.
// Request body: {"name": "..."}
func (h *UserHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	u, err := h.users.Create(r.Context(), req.Name)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	h.logger.Info("user created", "user_id", u.ID, "name", u.Name)
	writeJSON(w, h.logger, http.StatusCreated, toUserResponse(u))
}

// get handles GET /api/user.
func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toUserResponse(u))
}

// setModels handles PUT /api/user/models.
// Request body: {"chatModel": "...", "embeddingModel": "..."}; null clears
// a selection.
func (h *UserHandler) setModels(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	var req struct {
		ChatModel      *string `json:"chatModel"`
		EmbeddingModel *string `json:"embeddingModel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if err := h.users.SetModels(r.Context(), userID, req.ChatModel, req.EmbeddingModel); err != nil {
		writeFault(w, h.logger, err)
		return
	}

	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toUserResponse(u))
}
