package karaschat

import (
	"sync"
	"time"
)

// TypingWindow is how long a typing signal stays live without a matching
// stop event. Stop events can be lost, so expiry is mandatory client-side.
const TypingWindow = 5 * time.Second

// TypingTracker tracks which peers are currently typing in one conversation.
type TypingTracker struct {
	mu    sync.Mutex
	seen  map[uint]time.Time
	now   func() time.Time
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{seen: make(map[uint]time.Time), now: time.Now}
}

// Start records a user_typing event.
func (t *TypingTracker) Start(userID uint) {
	t.mu.Lock()
	t.seen[userID] = t.now()
	t.mu.Unlock()
}

// Stop records a user_stop_typing event.
func (t *TypingTracker) Stop(userID uint) {
	t.mu.Lock()
	delete(t.seen, userID)
	t.mu.Unlock()
}

// Typing returns the users whose typing signal is still inside the window,
// dropping expired entries as a side effect.
func (t *TypingTracker) Typing() []uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-TypingWindow)
	out := make([]uint, 0, len(t.seen))
	for id, at := range t.seen {
		if at.Before(cutoff) {
			delete(t.seen, id)
			continue
		}
		out = append(out, id)
	}
	return out
}
