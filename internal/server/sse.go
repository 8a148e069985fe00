package server

import (
	"encoding/json"
	"net/http"

	"github.com/user/chatd/internal/session"
)

// heartbeatComment is written periodically on long-lived subscribe
// connections so intermediaries (proxies, load balancers) don't treat the
// connection as idle and close it.
const heartbeatComment = ": heartbeat\n\n"

// sseWriter wraps a ResponseWriter already upgraded to text/event-stream
// and flushes after every frame so subscribers see events as they happen.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseWriter{w: w, f: f}, true
}

func (s *sseWriter) writeEvent(ev *session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *sseWriter) writeDone() error {
	if _, err := s.w.Write([]byte("data: [DONE]\n\n")); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *sseWriter) writeHeartbeat() error {
	if _, err := s.w.Write([]byte(heartbeatComment)); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
