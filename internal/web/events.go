// pattern: Imperative Shell

package web

import (
	"fmt"
	"net/http"
	"sync"
)

// eventBroker fans out "tree changed" signals to SSE subscribers. Each
// signal carries the reason for the change ("clone", "worktree", "fs").
type eventBroker struct {
	mu          sync.Mutex
	subscribers map[chan string]struct{}
	closed      chan struct{}
	closeOnce   sync.Once
}

func newEventBroker() *eventBroker {
	return &eventBroker{
		subscribers: make(map[chan string]struct{}),
		closed:      make(chan struct{}),
	}
}

// Subscribe returns a buffered channel that receives a reason on each Notify call.
// The caller must call Unsubscribe when done.
func (b *eventBroker) Subscribe() chan string {
	ch := make(chan string, 1)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *eventBroker) Unsubscribe(ch chan string) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
}

// Notify sends reason to all subscribers. Non-blocking: if a subscriber
// still has a pending signal, the new one is dropped and the subscriber
// refreshes on the pending one.
func (b *eventBroker) Notify(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- reason:
		default:
		}
	}
}

// Done is closed by Close; open streams end when it is.
func (b *eventBroker) Done() <-chan struct{} {
	return b.closed
}

// Close ends all open streams. Safe to call more than once.
func (b *eventBroker) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// handleEvents is the SSE endpoint. It sends a "connected" event on open,
// then a "refresh" event each time the broker is notified.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	fmt.Fprintf(w, "event: connected\ndata: ok\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.events.Done():
			return
		case reason := <-ch:
			fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", reason)
			flusher.Flush()
		}
	}
}
