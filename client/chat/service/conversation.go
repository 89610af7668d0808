package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"takahome/client/chat/domain"
	commonlog "takahome/common/log"
)

const DefaultTypingIdle = 3 * time.Second

var ErrEmptyMessage = errors.New("message content is empty")

type messageStore interface {
	RoomMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	PersistMessage(ctx context.Context, req domain.PersistMessageRequest) (domain.Message, error)
}

type ConversationOptions struct {
	RoomID string
	UserID string
	// OnMessage is called for every message newly added to the timeline from
	// the socket.
	OnMessage  func(domain.Message)
	TypingIdle time.Duration
}

// Conversation is one open chat room: its timeline, membership and the
// typing indicator of the local user.
type Conversation struct {
	roomID     string
	userID     string
	manager    *SessionManager
	store      messageStore
	timeline   *Timeline
	onMessage  func(domain.Message)
	typingIdle time.Duration

	mu          sync.Mutex
	unsubscribe []func()
	typing      bool
	idleTimer   *time.Timer
	closed      bool
}

// OpenConversation subscribes to the room, loads its history and joins it.
// The subscription is made before the history load so nothing sent in
// between is missed; the timeline drops the overlap.
func OpenConversation(ctx context.Context, manager *SessionManager, store messageStore, opts ConversationOptions) (*Conversation, error) {
	roomID := strings.TrimSpace(opts.RoomID)
	if roomID == "" {
		return nil, errors.New("room id is required")
	}
	idle := opts.TypingIdle
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	c := &Conversation{
		roomID:     roomID,
		userID:     opts.UserID,
		manager:    manager,
		store:      store,
		timeline:   NewTimeline(roomID),
		onMessage:  opts.OnMessage,
		typingIdle: idle,
	}
	c.unsubscribe = append(c.unsubscribe, manager.OnMessage(c.handleMessage))

	history, err := store.RoomMessages(ctx, roomID)
	if err != nil {
		c.release()
		return nil, err
	}
	added := c.timeline.Merge(history)
	manager.JoinRoom(roomID)
	commonlog.Infof("event=chat_conversation action=open status=ok room_id=%s history=%d", roomID, added)
	return c, nil
}

func (c *Conversation) RoomID() string {
	return c.roomID
}

func (c *Conversation) Messages() []domain.Message {
	return c.timeline.Messages()
}

func (c *Conversation) handleMessage(msg domain.Message) {
	if msg.ChatroomID != c.roomID {
		return
	}
	if !c.timeline.Append(msg) {
		return
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// Send persists the message over REST, then broadcasts it on the socket with
// the persisted id. The persisted message is returned even when the
// broadcast fails; the error then wraps ErrNotConnected or the emit error.
func (c *Conversation) Send(ctx context.Context, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	c.stopTyping()

	persisted, err := c.store.PersistMessage(ctx, domain.PersistMessageRequest{
		Content:    content,
		SenderID:   c.userID,
		ChatroomID: c.roomID,
	})
	if err != nil {
		commonlog.Errorf("event=chat_conversation action=send status=failed stage=persist room_id=%s error=%v", c.roomID, err)
		return domain.Message{}, err
	}
	c.timeline.Append(persisted)

	if err := c.manager.SendMessage(domain.SendMessagePayload{
		ChatroomID: c.roomID,
		Content:    content,
		ID:         persisted.ID,
	}); err != nil {
		commonlog.Warnf("event=chat_conversation action=send status=persisted_only room_id=%s message_id=%s error=%v", c.roomID, persisted.ID, err)
		return persisted, fmt.Errorf("broadcast message %s: %w", persisted.ID, err)
	}
	return persisted, nil
}

// Keystroke marks the local user as typing. A typing=false update follows
// after the idle period without further keystrokes.
func (c *Conversation) Keystroke() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	start := !c.typing
	c.typing = true
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.typingIdle, c.stopTyping)
	c.mu.Unlock()

	if start {
		c.manager.SendTyping(c.roomID, true)
	}
}

func (c *Conversation) stopTyping() {
	c.mu.Lock()
	wasTyping := c.typing
	c.typing = false
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.mu.Unlock()

	if wasTyping {
		c.manager.SendTyping(c.roomID, false)
	}
}

// Close stops typing, unsubscribes and leaves the room.
func (c *Conversation) Close() {
	c.stopTyping()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.release()
	c.manager.LeaveRoom(c.roomID)
	commonlog.Infof("event=chat_conversation action=close status=ok room_id=%s", c.roomID)
}

func (c *Conversation) release() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
}
