// Package httpapi is the REST surface beside the websocket endpoint:
// account registration and login, document CRUD, sharing, history and
// restore. The hot edit path never goes through here.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/inklet-dev/inklet/internal/auth"
	"github.com/inklet-dev/inklet/internal/store"
)

// Restorer is the engine surface the restore endpoint needs: rewinding a
// document serializes with live edits inside the engine.
type Restorer interface {
	RestoreVersion(ctx context.Context, documentID string, version int64, userID string) (*store.Document, error)
}

// Server holds the handler dependencies.
type Server struct {
	Docs   store.DocumentStore
	Users  store.UserStore
	Tokens *auth.Service
	Engine Restorer
	WS     http.Handler
	Client string // allowed CORS origin
}

// Routes assembles the router: health and auth are open, everything
// under /api/documents requires a bearer token, and /ws does its own
// handshake authentication.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{s.Client},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.With(rateLimit(loginLimit)).Post("/login", s.Login)
	})

	r.Route("/api/documents", func(r chi.Router) {
		r.Use(s.Tokens.Middleware)

		r.Post("/", s.CreateDocument)
		r.Get("/", s.ListDocuments)
		r.Get("/{id}", s.GetDocument)
		r.Patch("/{id}", s.RenameDocument)
		r.Delete("/{id}", s.DeleteDocument)

		r.Put("/{id}/shares", s.SetShare)
		r.Delete("/{id}/shares/{userId}", s.RemoveShare)

		r.Get("/{id}/history", s.GetHistory)
		r.Post("/{id}/restore", s.RestoreDocument)
	})

	if s.WS != nil {
		r.Handle("/ws", s.WS)
	}

	log.Info().Msg("HTTP routes registered")
	return r
}
