package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSEWriter writes text/event-stream frames to an HTTP response. The poll
// loop and the heartbeat ticker both write through it, so every write takes
// the mutex; after Close, writes are silent no-ops because disconnect races
// are expected.
type SSEWriter struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	flush  http.Flusher
	closed bool
}

// NewSSEWriter prepares the response for event streaming.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flush: flusher}, nil
}

// Comment writes a comment frame (": text").
func (s *SSEWriter) Comment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flush.Flush()
}

// Data writes one JSON object as a data frame.
func (s *SSEWriter) Data(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.flush.Flush()
	return nil
}

// Close marks the writer closed. Subsequent writes are dropped.
func (s *SSEWriter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
