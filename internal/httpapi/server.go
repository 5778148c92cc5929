// Package httpapi is the REST surface over the chat core.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/auth"
	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/service"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	Chat     *service.Chat
	Verifier auth.Verifier
	WS       http.Handler
}

// Routes creates the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Recoverer)

	// Health check (unauthenticated)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	// The socket authenticates itself via the token query parameter.
	if s.WS != nil {
		r.Get("/ws/chat", s.WS.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Verifier))

		r.Post("/v1/conversations/support", s.OpenSupportConversation)
		r.Get("/v1/conversations", s.ListConversations)
		r.Get("/v1/conversations/{id}", s.GetConversation)
		r.Get("/v1/conversations/{id}/messages", s.ListMessages)
		r.Post("/v1/conversations/{id}/messages", s.SendMessage)
		r.Post("/v1/conversations/{id}/read", s.MarkRead)

		r.Get("/v1/admin/conversations", s.AdminListConversations)
		r.Get("/v1/admin/conversations/{id}", s.AdminGetConversation)
		r.Post("/v1/admin/conversations/{id}/assign", s.AssignConversation)
		r.Post("/v1/admin/conversations/{id}/close", s.CloseConversation)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError maps core error kinds to their HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, chat.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, chat.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, chat.ErrValidation):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, code, map[string]string{"detail": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}

// parseLimit parses a limit query param with default and max
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// pathID parses the {id} path parameter as a UUID.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, chat.ErrValidation
	}
	return id, nil
}

// principal pulls the authenticated caller; the auth middleware guarantees
// presence on every route in the group.
func principal(r *http.Request) chat.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
