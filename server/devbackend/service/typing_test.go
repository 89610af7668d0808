package service

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "takahome/client/chat/domain"
	commonlog "takahome/common/log"
)

func TestMain(m *testing.M) {
	commonlog.Configure(commonlog.Options{Level: "error", DisableFile: true})
	os.Exit(m.Run())
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTracker(ttl time.Duration) (*TypingTracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := NewTypingTracker(ttl)
	tr.now = clock.Now
	return tr, clock
}

func userIDs(users []chat.TypingUser) []string {
	out := []string{}
	for _, u := range users {
		out = append(out, u.UserID)
	}
	return out
}

func TestTypingTrackerSnapshots(t *testing.T) {
	tr, clock := newTracker(time.Minute)

	users, changed := tr.Set("A", "u1", "An", true)
	assert.True(t, changed)
	require.Len(t, users, 1)
	assert.Equal(t, chat.TypingUser{UserID: "u1", FullName: "An", IsTyping: true, Timestamp: clock.now.UnixMilli()}, users[0])

	clock.advance(time.Second)
	users, changed = tr.Set("A", "u2", "Binh", true)
	assert.True(t, changed)
	assert.Equal(t, []string{"u1", "u2"}, userIDs(users))

	clock.advance(time.Second)
	_, changed = tr.Set("A", "u1", "An", true)
	assert.False(t, changed, "refresh keeps the set")
	assert.Equal(t, []string{"u2", "u1"}, userIDs(tr.Snapshot("A")))

	users, changed = tr.Set("A", "u2", "Binh", false)
	assert.True(t, changed)
	assert.Equal(t, []string{"u1"}, userIDs(users))

	_, changed = tr.Set("A", "u2", "Binh", false)
	assert.False(t, changed)

	users, changed = tr.Set("A", "u1", "An", false)
	assert.True(t, changed)
	assert.Empty(t, users)
	assert.NotNil(t, users)

	assert.Empty(t, tr.Snapshot("B"))
}

func TestTypingTrackerClearUser(t *testing.T) {
	tr, _ := newTracker(time.Minute)
	tr.Set("A", "u1", "An", true)
	tr.Set("B", "u1", "An", true)
	tr.Set("B", "u2", "Binh", true)
	tr.Set("C", "u2", "Binh", true)

	changed := tr.ClearUser("u1")
	require.Len(t, changed, 2)
	assert.Empty(t, changed["A"])
	assert.Equal(t, []string{"u2"}, userIDs(changed["B"]))
	assert.Empty(t, tr.ClearUser("u1"))
}

func TestTypingTrackerSweep(t *testing.T) {
	tr, clock := newTracker(5 * time.Second)
	tr.Set("A", "u1", "An", true)
	clock.advance(3 * time.Second)
	tr.Set("A", "u2", "Binh", true)

	assert.Empty(t, tr.Sweep())

	clock.advance(2 * time.Second)
	changed := tr.Sweep()
	require.Contains(t, changed, "A")
	assert.Equal(t, []string{"u2"}, userIDs(changed["A"]))

	clock.advance(10 * time.Second)
	changed = tr.Sweep()
	require.Contains(t, changed, "A")
	assert.Empty(t, changed["A"])
	assert.Empty(t, tr.Sweep())
}
