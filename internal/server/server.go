// Package server implements the HTTP/SSE surface: routes for listing,
// creating and deleting chats, posting messages, subscribing to a chat's
// event stream, and uploading files into a chat's working directory.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/chatd/internal/apperror"
	"github.com/user/chatd/internal/executor"
	"github.com/user/chatd/internal/session"
	"github.com/user/chatd/internal/types"
)

// Server wires the chat Store and session Registry to the HTTP API
// described in the external interface contract.
type Server struct {
	registry *session.Registry
	store    types.Store
	exec     *executor.Executor
	mux      *http.ServeMux
}

// NewServer builds a Server ready to serve the chat API. exec is used only
// for file-upload conversion (§ file processor); all other command
// execution happens inside sessions via their own tool registry.
func NewServer(registry *session.Registry, store types.Store, exec *executor.Executor) *Server {
	s := &Server{registry: registry, store: store, exec: exec, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /api/chats", s.handleListChats)
	s.mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	s.mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	s.mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	s.mux.HandleFunc("POST /api/chats/{id}/messages", s.handlePostMessage)
	s.mux.HandleFunc("GET /api/chats/{id}/subscribe", s.handleSubscribe)
	s.mux.HandleFunc("POST /api/chats/{id}/files", s.handleUploadFile)
	s.mux.HandleFunc("GET /", s.handleStatic)

	return s
}

// ServeHTTP implements http.Handler, wrapping the mux with CORS.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withCORS(s.mux).ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps the apperror taxonomy to an HTTP status code, per the
// error handling design's "escalate only pre-stream" policy.
func statusFor(err error) int {
	switch {
	case apperror.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case apperror.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type chatListEntry struct {
	ID        types.ChatID `json:"id"`
	Title     string       `json:"title"`
	CreatedAt string       `json:"created_at"`
	Online    bool         `json:"online"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		slog.Error("list chats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]chatListEntry, 0, len(summaries))
	for _, c := range summaries {
		_, online := s.registry.Lookup(c.ID)
		out = append(out, chatListEntry{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt.Format(timeFormat),
			Online:    online,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

type createChatRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // absent/empty body is fine, title stays ""
	}
	title := req.Title
	if title == "" {
		title = types.DefaultTitle
	}

	id := types.NewChatID()
	if _, err := s.store.Create(r.Context(), id, title); err != nil {
		slog.Error("create chat", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if _, err := s.registry.GetOrStart(r.Context(), id); err != nil {
		slog.Error("start session", "chat_id", string(id), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": string(id), "title": title})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := types.ChatID(r.PathValue("id"))

	chat, err := s.store.Get(r.Context(), id)
	if err != nil {
		if apperror.Is(err, apperror.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		slog.Error("get chat", "chat_id", string(id), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	_, online := s.registry.Lookup(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       chat.ID,
		"title":    chat.Title,
		"messages": chat.Messages,
		"online":   online,
	})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := types.ChatID(r.PathValue("id"))
	if err := s.registry.Delete(r.Context(), id); err != nil {
		slog.Error("delete chat", "chat_id", string(id), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
