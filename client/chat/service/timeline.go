package service

import (
	"sort"
	"sync"

	"takahome/client/chat/domain"
)

// Timeline is the ordered message list of one room. Messages that arrive
// through both the history endpoint and the socket are kept once, by id, and
// the list stays ordered by creation time.
type Timeline struct {
	roomID string

	mu       sync.Mutex
	messages []domain.Message
	seen     map[string]struct{}
}

func NewTimeline(roomID string) *Timeline {
	return &Timeline{roomID: roomID, seen: map[string]struct{}{}}
}

func (t *Timeline) RoomID() string {
	return t.roomID
}

// Append adds msg unless it belongs to another room or its id is already
// present. It reports whether the message was added.
func (t *Timeline) Append(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(msg)
}

// Merge adds a batch, typically a history page, and returns how many were new.
func (t *Timeline) Merge(history []domain.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, msg := range history {
		if t.insertLocked(msg) {
			added++
		}
	}
	return added
}

func (t *Timeline) insertLocked(msg domain.Message) bool {
	if msg.ChatroomID != "" && msg.ChatroomID != t.roomID {
		return false
	}
	if msg.ID != "" {
		if _, dup := t.seen[msg.ID]; dup {
			return false
		}
		t.seen[msg.ID] = struct{}{}
	}
	// After every message with the same or an earlier timestamp.
	idx := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[idx+1:], t.messages[idx:])
	t.messages[idx] = msg
	return true
}

func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
