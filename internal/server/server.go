// Package server is the HTTP surface of the bot: slash commands come in as
// form posts, button clicks come in as interaction payloads, and both end
// up in the parsing core.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mberti/spesa/internal/expense"
	"github.com/mberti/spesa/internal/mail"
	"github.com/mberti/spesa/internal/slack"
)

// Chat is the slice of the chat client the server needs; satisfied by
// *slack.Client.
type Chat interface {
	PostMessage(ctx context.Context, channelID, text string) error
	PostBlocks(ctx context.Context, channelID, fallback string, blocks []slack.Block) error
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	ReplaceOriginal(ctx context.Context, responseURL, text string) error
	UploadFile(ctx context.Context, channelID, filename string, data []byte, comment string) (string, error)
	DownloadFile(ctx context.Context, fileID string) (string, []byte, error)
}

// Server routes chat-platform requests to the expense service.
type Server struct {
	service *expense.Service
	chat    Chat
	sender  mail.Sender // nil disables email verification
	mux     *http.ServeMux
}

// New creates a Server with a default mux. sender may be nil when outbound
// mail is not configured.
func New(service *expense.Service, chat Chat, sender mail.Sender) *Server {
	return NewWithMux(service, chat, sender, http.NewServeMux())
}

// NewWithMux creates a Server on a caller-provided mux, used by tests.
func NewWithMux(service *expense.Service, chat Chat, sender mail.Sender, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		chat:    chat,
		sender:  sender,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /slack/command", s.logged(s.handleCommand))
	s.mux.HandleFunc("POST /slack/interact", s.logged(s.handleInteraction))
	s.mux.HandleFunc("POST /slack/events", s.logged(s.handleEvent))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("request", "method", r.Method, "path", r.URL.Path)
		next(w, r)
	}
}

// Start runs the HTTP server on addr, blocking.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
