package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/user/chatd/internal/apperror"
	"github.com/user/chatd/internal/types"
)

type postMessageRequest struct {
	Content string `json:"content"`
}

// handlePostMessage streams the events of exactly one turn, terminated by
// the [DONE] sentinel once the agent loop finishes.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := types.ChatID(r.PathValue("id"))

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.registry.GetOrStart(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			writeError(w, status, "internal server error")
		} else {
			writeError(w, status, err.Error())
		}
		return
	}

	out, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := sess.NewSubscriber()
	defer sess.Unsubscribe(sub)

	sess.SendMessage(r.Context(), req.Content, sub)

	for {
		select {
		case frame := <-sub.Events():
			if frame.Done {
				out.writeDone()
				return
			}
			if frame.Event != nil {
				if err := out.writeEvent(frame.Event); err != nil {
					return
				}
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleSubscribe opens a long-lived SSE stream receiving every
// subsequent turn's events until the client disconnects.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := types.ChatID(r.PathValue("id"))

	sess, err := s.registry.GetOrStart(r.Context(), id)
	if err != nil {
		if apperror.Is(err, apperror.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := sess.NewSubscriber()
	sess.Subscribe(sub)
	defer sess.Unsubscribe(sub)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case frame := <-sub.Events():
			if frame.Done {
				if err := out.writeDone(); err != nil {
					return
				}
				continue
			}
			if frame.Event != nil {
				if err := out.writeEvent(frame.Event); err != nil {
					return
				}
			}
		case <-heartbeat.C:
			if err := out.writeHeartbeat(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
