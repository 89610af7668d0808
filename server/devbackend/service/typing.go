package service

import (
	"sort"
	"sync"
	"time"

	chat "takahome/client/chat/domain"
)

const DefaultTypingTTL = 6 * time.Second

// TypingTracker aggregates typing state per room. Entries expire after the
// ttl so a client that vanishes mid-typing does not stay typing forever.
type TypingTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	rooms map[string]map[string]chat.TypingUser
	now   func() time.Time
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{ttl: ttl, rooms: map[string]map[string]chat.TypingUser{}, now: time.Now}
}

// Set records a typing update and reports whether the room's set of typing
// users changed. A repeated typing=true only refreshes the entry.
func (t *TypingTracker) Set(roomID, userID, fullName string, typing bool) ([]chat.TypingUser, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.rooms[roomID]
	_, was := users[userID]
	if typing {
		if users == nil {
			users = map[string]chat.TypingUser{}
			t.rooms[roomID] = users
		}
		users[userID] = chat.TypingUser{
			UserID:    userID,
			FullName:  fullName,
			IsTyping:  true,
			Timestamp: t.now().UnixMilli(),
		}
	} else if was {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
	}
	return t.snapshotLocked(roomID), was != typing
}

func (t *TypingTracker) Snapshot(roomID string) []chat.TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(roomID)
}

// ClearUser drops the user from every room and returns the new snapshot of
// each room it was typing in.
func (t *TypingTracker) ClearUser(userID string) map[string][]chat.TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := map[string][]chat.TypingUser{}
	for roomID, users := range t.rooms {
		if _, ok := users[userID]; !ok {
			continue
		}
		delete(users, userID)
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
		changed[roomID] = t.snapshotLocked(roomID)
	}
	return changed
}

// Sweep removes expired entries and returns the new snapshot of each room
// that lost a typist.
func (t *TypingTracker) Sweep() map[string][]chat.TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.ttl).UnixMilli()
	changed := map[string][]chat.TypingUser{}
	for roomID, users := range t.rooms {
		expired := false
		for userID, u := range users {
			if u.Timestamp <= cutoff {
				delete(users, userID)
				expired = true
			}
		}
		if !expired {
			continue
		}
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
		changed[roomID] = t.snapshotLocked(roomID)
	}
	return changed
}

func (t *TypingTracker) snapshotLocked(roomID string) []chat.TypingUser {
	users := t.rooms[roomID]
	out := make([]chat.TypingUser, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp == out[j].Timestamp {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
