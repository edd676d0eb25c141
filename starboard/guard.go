package starboard

import "sync"

// Guard is the in-process mutual-exclusion set of message IDs with a
// crosspost attempt in flight. It is intentionally process-local: a
// multi-instance deployment needs a store-level claim instead.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// TryAcquire marks a message as having a crosspost attempt in flight.
// It returns false if another attempt already holds the message.
func (g *Guard) TryAcquire(messageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inflight[messageID]; held {
		return false
	}
	g.inflight[messageID] = struct{}{}
	return true
}

// Release frees a message for future attempts. It must run after every
// attempt, successful or not, so a failed publish can be retried.
func (g *Guard) Release(messageID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, messageID)
}
