// Package karaschat implements the client-side state required to talk to the
// Karas Chat realtime engine: optimistic send reconciliation, typing-indicator
// expiry and the two-party call state machine.
package karaschat

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the authoritative record as delivered by the engine.
type Message struct {
	ID           uint      `json:"id"`
	SenderID     uint      `json:"sender_id"`
	Kind         string    `json:"kind"`
	Content      string    `json:"content"`
	FileName     string    `json:"file_name,omitempty"`
	ReplyToID    *uint     `json:"reply_to_id,omitempty"`
	ReplySnippet string    `json:"reply_snippet,omitempty"`
	ClientTag    string    `json:"client_tag,omitempty"`
	Deleted      bool      `json:"deleted"`
	CreatedAt    time.Time `json:"created_at"`
}

// Provisional is a locally rendered message that has not been confirmed yet.
type Provisional struct {
	TempID    string
	ClientTag string
	SenderID  uint
	Kind      string
	Content   string
	CreatedAt time.Time
}

// Entry is one row of the merged view: exactly one of Message/Provisional set.
type Entry struct {
	Message     *Message
	Provisional *Provisional
}

// Timeline merges the authoritative event stream with the client's own
// optimistic sends without ever double-displaying a message. The merged view
// is recomputed from scratch on every change, not maintained incrementally.
type Timeline struct {
	mu            sync.Mutex
	selfID        uint
	authoritative map[uint]*Message
	provisional   []*Provisional
}

func NewTimeline(selfID uint) *Timeline {
	return &Timeline{selfID: selfID, authoritative: make(map[uint]*Message)}
}

// Submit records an optimistic message for immediate display and returns it.
// The returned ClientTag must be sent with the intent so the server can echo
// it back; reconciliation keys on that tag.
func (t *Timeline) Submit(kind, content string) *Provisional {
	p := &Provisional{
		TempID:    "temp-" + uuid.NewString(),
		ClientTag: uuid.NewString(),
		SenderID:  t.selfID,
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now(),
	}
	t.mu.Lock()
	t.provisional = append(t.provisional, p)
	t.mu.Unlock()
	return p
}

// ApplyNew folds an authoritative new_message record in, removing any
// provisional entry it confirms. The correlation tag is the primary
// deduplication key; the (content, sender, kind) triple is the fallback for
// engines or peers that did not echo a tag.
func (t *Timeline) ApplyNew(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authoritative[m.ID] = &m

	match := func(p *Provisional) bool {
		if m.ClientTag != "" {
			return p.ClientTag == m.ClientTag
		}
		return p.Content == m.Content && p.SenderID == m.SenderID && p.Kind == m.Kind
	}
	for i, p := range t.provisional {
		if match(p) {
			t.provisional = append(t.provisional[:i], t.provisional[i+1:]...)
			break
		}
	}
}

// ApplyDeleted blanks a message by id in both stores. The shape of the entry
// is preserved so rendering code needs no special case.
func (t *Timeline) ApplyDeleted(messageID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.authoritative[messageID]; ok {
		m.Kind = "text"
		m.Content = ""
		m.FileName = ""
		m.Deleted = true
	}
}

// DropProvisional removes an optimistic entry by temp id, for sends the
// client has given up on.
func (t *Timeline) DropProvisional(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.provisional {
		if p.TempID == tempID {
			t.provisional = append(t.provisional[:i], t.provisional[i+1:]...)
			return
		}
	}
}

// Render returns the merged display sequence: all authoritative records plus
// any provisional record not yet confirmed, sorted by timestamp ascending.
func (t *Timeline) Render() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	confirmed := make(map[string]bool, len(t.authoritative))
	out := make([]Entry, 0, len(t.authoritative)+len(t.provisional))
	for _, m := range t.authoritative {
		if m.ClientTag != "" {
			confirmed[m.ClientTag] = true
		}
		out = append(out, Entry{Message: m})
	}
	for _, p := range t.provisional {
		if confirmed[p.ClientTag] {
			continue
		}
		out = append(out, Entry{Provisional: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].at().Before(out[j].at())
	})
	return out
}

func (e Entry) at() time.Time {
	if e.Message != nil {
		return e.Message.CreatedAt
	}
	return e.Provisional.CreatedAt
}
