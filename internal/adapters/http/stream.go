package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

// sseWriter frames pipeline events as `data: {json}\n\n`, flushing every frame. Headers
// go out with the first frame so a failure before it can still be answered with JSON.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) Send(event domain.DeepSearchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// textStream writes a streamed plain-text reply, flushing after every chunk.
type textStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newTextStream(w http.ResponseWriter) *textStream {
	flusher, _ := w.(http.Flusher)
	return &textStream{w: w, flusher: flusher}
}

func (s *textStream) start() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *textStream) Write(p []byte) (int, error) {
	s.start()
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return n, nil
}
