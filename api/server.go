// Package api provides the HTTP REST API for Minne.
//
// Endpoints:
//
//	GET    /health             liveness probe
//	GET    /ready              readiness probe (pings the database)
//	POST   /api/users          create a user
//	GET    /api/user           get the calling user
//	PUT    /api/user/models    choose chat and embedding models
//	GET    /api/draft          get (or create) the open draft
//	PUT    /api/draft          replace the draft content
//	POST   /api/draft/save     save the draft: chunk, embed, title, store
//	GET    /api/notes          list saved notes
//	GET    /api/notes/{id}     get one note
//	DELETE /api/notes/{id}     delete one note
//	POST   /api/chat           answer a question over the notes (SSE)
//
// Every /api endpoint except user creation identifies the caller via the
// X-User-ID header.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints (/health, /ready)
//   - user.go: user and model selection endpoints
//   - note.go: draft and note endpoints
//   - chat.go: streaming chat endpoint (SSE)
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halvard/minne/internal/chat"
	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/note"
	"github.com/halvard/minne/internal/user"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for Minne's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health *HealthHandler
	user   *UserHandler
	note   *NoteHandler
	chat   *ChatHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, users *user.Store, notes *note.Store, pipeline *note.Pipeline, chatSvc *chat.Service, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:    mux,
		logger: logger,
		health: NewHealthHandler(pool, logger),
		user:   NewUserHandler(users, logger),
		note:   NewNoteHandler(notes, pipeline, logger),
		chat:   NewChatHandler(chatSvc, logger),
	}

	s.health.RegisterRoutes(mux)
	s.user.RegisterRoutes(mux)
	s.note.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
//
// No WriteTimeout is set on the server: the chat endpoint holds an SSE
// stream open for as long as the model generates. Non-streaming handlers
// are bounded by their own work.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
