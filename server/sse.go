package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lexcodex/reactchat/framework"
)

// sseSink writes each event as one `data:` frame and flushes immediately.
// After the first write error further events are dropped; the driver notices
// the disconnect through the request context.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	broken  bool
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Emit(event framework.Event) {
	if s.broken {
		return
	}
	frame, err := encodeSSE(event)
	if err != nil {
		slog.Default().Error("encode stream event", "type", event.Type, "error", err)
		frame, _ = encodeSSE(framework.Event{Type: framework.EventError, Data: framework.ErrorEvent{Message: "Internal server error"}})
	}
	if _, err := s.w.Write(frame); err != nil {
		s.broken = true
		return
	}
	s.flusher.Flush()
}

func encodeSSE(event framework.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data)), nil
}
