// Package sse serializes public stream events onto an HTTP response as
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"

	chatmodels "parley/internal/domain/models/chat"
)

// Writer writes SSE frames for one streaming request. Event writes and
// keep-alive comments can come from different goroutines, so all writes are
// serialized through one mutex.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

// NewWriter prepares the response for event streaming. Returns an error when
// the underlying writer cannot flush, which SSE requires.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so deltas reach the client as they happen.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Emit writes one named event with a JSON payload and flushes. After the
// first write failure every subsequent call fails fast.
func (s *Writer) Emit(event string, data interface{}) error {
	frame, err := chatmodels.FormatSSE(event, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return fmt.Errorf("sse connection already failed")
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		s.failed = true
		return fmt.Errorf("sse write failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment line. Comments are ignored by clients
// but keep proxies from timing out idle connections, e.g. during backoff
// sleeps between retry attempts.
func (s *Writer) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return fmt.Errorf("sse connection already failed")
	}
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		s.failed = true
		return fmt.Errorf("keepalive write failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}
