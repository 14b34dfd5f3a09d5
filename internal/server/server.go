// Package server implements the HTTP edge: four Anthropic-compatible
// endpoints under /v1, dispatching to the request converter, token
// manager, upstream client, and SSE emitter (spec §4.8).
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/brightloop/qgateway/internal/telemetry"
	"github.com/brightloop/qgateway/internal/token"
	"github.com/brightloop/qgateway/internal/upstream"
)

// Server wires the HTTP edge's dependencies together.
type Server struct {
	Tokens    *token.Manager
	Upstream  *upstream.Client
	Telemetry telemetry.Hook
	Logger    *slog.Logger
	APIKey    string // if non-empty, required via x-api-key/Authorization

	router chi.Router
}

// New builds a Server with its routes registered.
func New(s *Server) *Server {
	if s.Telemetry == nil {
		s.Telemetry = telemetry.Noop{}
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer) // a panic in a handler must never crash the process (spec §7)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(10 * time.Second)).Get("/models", s.handleListModels)
		r.With(middleware.Timeout(10 * time.Second)).Get("/models/{id}", s.handleGetModel)
		r.With(s.requireAPIKey).Post("/messages", s.handleMessages) // no short timeout: streams run up to 12 minutes
		r.With(s.requireAPIKey, middleware.Timeout(30*time.Second)).Post("/messages/count_tokens", s.handleCountTokens)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("x-api-key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				key = auth[7:]
			}
		}
		if key != s.APIKey {
			writeAuthError(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
