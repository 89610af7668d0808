package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takahome/client/chat/domain"
	"takahome/common/apiclient"
	"takahome/common/auth"
)

func at(minute int) time.Time {
	return time.Date(2026, 3, 1, 9, minute, 0, 0, time.UTC)
}

func TestTimelineDedupesAndOrders(t *testing.T) {
	tl := NewTimeline("A")
	added := tl.Merge([]domain.Message{
		{ID: "m3", ChatroomID: "A", CreatedAt: at(3)},
		{ID: "m1", ChatroomID: "A", CreatedAt: at(1)},
		{ID: "m2", CreatedAt: at(2)},
	})
	assert.Equal(t, 3, added)

	assert.False(t, tl.Append(domain.Message{ID: "m2", ChatroomID: "A", CreatedAt: at(2)}))
	assert.False(t, tl.Append(domain.Message{ID: "x", ChatroomID: "B", CreatedAt: at(0)}))
	assert.True(t, tl.Append(domain.Message{ID: "m2b", ChatroomID: "A", CreatedAt: at(2)}))
	assert.True(t, tl.Append(domain.Message{ID: "m0", ChatroomID: "A", CreatedAt: at(0)}))

	ids := []string{}
	for _, msg := range tl.Messages() {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m2b", "m3"}, ids)
	assert.Equal(t, 5, tl.Len())
}

type fakeStore struct {
	mu        sync.Mutex
	history   []domain.Message
	persisted []domain.PersistMessageRequest
	err       error
}

func (f *fakeStore) RoomMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	return f.history, f.err
}

func (f *fakeStore) PersistMessage(ctx context.Context, req domain.PersistMessageRequest) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, req)
	return domain.Message{
		ID:         "srv-1",
		ChatroomID: req.ChatroomID,
		Sender:     domain.Sender{ID: req.SenderID},
		Content:    req.Content,
		CreatedAt:  at(10),
	}, nil
}

func TestConversationLifecycle(t *testing.T) {
	m, ft := connectedManager(t)
	store := &fakeStore{history: []domain.Message{{ID: "h1", ChatroomID: "A", CreatedAt: at(1)}}}

	var live []string
	conv, err := OpenConversation(context.Background(), m, store, ConversationOptions{
		RoomID:     "A",
		UserID:     "me",
		OnMessage:  func(msg domain.Message) { live = append(live, msg.ID) },
		TypingIdle: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "A", m.CurrentRoom())
	assert.Equal(t, []emitted{{domain.EventJoinRoom, room("A")}}, ft.sent())
	ft.reset()

	ft.push(t, domain.EventNewMessage, domain.Message{ID: "h1", ChatroomID: "A", CreatedAt: at(1)})
	ft.push(t, domain.EventNewMessage, domain.Message{ID: "r1", ChatroomID: "A", CreatedAt: at(5)})
	ft.push(t, domain.EventNewMessage, domain.Message{ID: "other", ChatroomID: "B", CreatedAt: at(6)})
	assert.Equal(t, []string{"r1"}, live)

	sent, err := conv.Send(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", sent.ID)
	assert.Equal(t, []domain.PersistMessageRequest{{Content: "hello", SenderID: "me", ChatroomID: "A"}}, store.persisted)
	assert.Equal(t, []emitted{{domain.EventSendMessage, domain.SendMessagePayload{ChatroomID: "A", Content: "hello", ID: "srv-1"}}}, ft.sent())

	ft.push(t, domain.EventNewMessage, domain.Message{ID: "srv-1", ChatroomID: "A", CreatedAt: at(10)})
	assert.Equal(t, []string{"r1"}, live, "echo of our own message is deduplicated")
	assert.Len(t, conv.Messages(), 3)

	_, err = conv.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	ft.reset()
	conv.Close()
	assert.Equal(t, []emitted{{domain.EventLeaveRoom, room("A")}}, ft.sent())
	ft.push(t, domain.EventNewMessage, domain.Message{ID: "late", ChatroomID: "A", CreatedAt: at(11)})
	assert.Equal(t, []string{"r1"}, live)
}

func TestConversationTypingIdle(t *testing.T) {
	m, ft := connectedManager(t)
	conv, err := OpenConversation(context.Background(), m, &fakeStore{}, ConversationOptions{RoomID: "A", TypingIdle: 20 * time.Millisecond})
	require.NoError(t, err)
	ft.reset()

	conv.Keystroke()
	conv.Keystroke()
	assert.Equal(t, []emitted{{domain.EventTyping, domain.TypingPayload{ChatroomID: "A", IsTyping: true}}}, ft.sent())

	assert.Eventually(t, func() bool { return len(ft.sent()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, emitted{domain.EventTyping, domain.TypingPayload{ChatroomID: "A", IsTyping: false}}, ft.sent()[1])
	conv.Close()
}

func TestConversationSendWhileDisconnectedKeepsPersisted(t *testing.T) {
	m, _ := newManager(nil)
	conv, err := OpenConversation(context.Background(), m, &fakeStore{}, ConversationOptions{RoomID: "A", UserID: "me"})
	require.NoError(t, err)

	msg, err := conv.Send(context.Background(), "offline")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Len(t, conv.Messages(), 1)
}

func TestConversationHistoryFailure(t *testing.T) {
	m, ft := connectedManager(t)
	_, err := OpenConversation(context.Background(), m, &fakeStore{err: errors.New("boom")}, ConversationOptions{RoomID: "A"})
	require.Error(t, err)
	assert.Equal(t, "", m.CurrentRoom())
	assert.Empty(t, ft.sent())
}

func TestHistoryClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/chatmessages/chatroom/A":
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":[
				{"id":"m1","chatroom":{"id":"A"},"sender":{"id":"u1","fullName":"An"},"content":"hi","createdAt":"2026-03-01T09:00:00Z"},
				{"id":"m2","sender":{"id":"u2"},"content":"yo","createdAt":"2026-03-01T09:01:00Z"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/chatrooms/my-chats":
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":[{"id":"A","user1":{"id":"me"},"user2":{"id":"u1","fullName":"An"},
				"property":{"id":"p1","title":"Studio"},"createdAt":"2026-03-01T08:00:00Z","updatedAt":"2026-03-01T08:00:00Z"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/chatmessages":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"code":201,"message":"Created","data":{"id":"m3","content":"new","createdAt":"2026-03-01T09:02:00Z"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/chatrooms/property/p1":
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":{"id":"A","property":{"id":"p1"},"createdAt":"2026-03-01T08:00:00Z","updatedAt":"2026-03-01T08:00:00Z"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHistoryClient(apiclient.New(auth.StaticToken("tok"), apiclient.Options{}, srv.URL+"/api"))
	ctx := context.Background()

	msgs, err := client.RoomMessages(ctx, "A")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "A", msgs[0].ChatroomID)
	assert.Equal(t, "A", msgs[1].ChatroomID)
	assert.Equal(t, "An", msgs[0].Sender.FullName)

	rooms, err := client.MyChatrooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "An", rooms[0].Peer("me").FullName)

	persisted, err := client.PersistMessage(ctx, domain.PersistMessageRequest{Content: "new", SenderID: "me", ChatroomID: "A"})
	require.NoError(t, err)
	assert.Equal(t, "m3", persisted.ID)
	assert.Equal(t, "A", persisted.ChatroomID)

	started, err := client.StartChatForProperty(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "A", started.ID)
}

func TestHistoryClientRejectsEnvelopeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chatmessages":
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":{"content":"no id"}}`))
		default:
			_, _ = w.Write([]byte(`{"code":500,"message":"chat service unavailable"}`))
		}
	}))
	defer srv.Close()

	client := NewHistoryClient(apiclient.New(nil, apiclient.Options{}, srv.URL+"/api"))
	ctx := context.Background()

	var apiErr *apiclient.Error
	_, err := client.RoomMessages(ctx, "A")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "500", apiErr.Code)
	_, err = client.MyChatrooms(ctx)
	require.ErrorAs(t, err, &apiErr)

	_, err = client.PersistMessage(ctx, domain.PersistMessageRequest{Content: "x", SenderID: "me", ChatroomID: "A"})
	require.Error(t, err)
}

func TestConversationSendDoesNotBroadcastFailedPersist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":500,"message":"write failed"}`))
	}))
	defer srv.Close()

	m, ft := connectedManager(t)
	conv, err := OpenConversation(context.Background(), m, NewHistoryClient(apiclient.New(nil, apiclient.Options{}, srv.URL)), ConversationOptions{RoomID: "A", UserID: "me"})
	require.NoError(t, err)
	ft.reset()

	_, err = conv.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, ft.sent())
	assert.Empty(t, conv.Messages())
	conv.Close()
}
