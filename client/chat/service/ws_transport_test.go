package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takahome/client/chat/domain"
)

func TestSocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:3000/api", "ws://localhost:3000/chat"},
		{"https://api.takahome.vn/api/", "wss://api.takahome.vn/chat"},
		{"https://takahome.vn", "wss://takahome.vn/chat"},
		{"http://10.0.2.2:3000/v2/api", "ws://10.0.2.2:3000/v2/chat"},
		{"ws://127.0.0.1:8080", "ws://127.0.0.1:8080/chat"},
	}
	for _, tc := range cases {
		got, err := SocketURL(tc.base, DefaultNamespace)
		require.NoError(t, err, tc.base)
		assert.Equal(t, tc.want, got)
	}

	_, err := SocketURL("ftp://host/api", DefaultNamespace)
	assert.Error(t, err)
	_, err = SocketURL("/api", DefaultNamespace)
	assert.Error(t, err)
}

func TestReconnectBackoff(t *testing.T) {
	p := DefaultReconnectPolicy()
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(10))
	assert.Equal(t, time.Second, p.Backoff(0))
}

type chatServer struct {
	connections atomic.Int32
	authHeader  atomic.Value
	joins       chan string
	// dropFirst closes the first connection right after its join.
	dropFirst bool
}

func (s *chatServer) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		s.authHeader.Store(r.Header.Get("Authorization") + "|" + r.URL.Query().Get("token"))
		n := s.connections.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame domain.Frame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			switch frame.Event {
			case domain.EventJoinRoom:
				var payload domain.RoomPayload
				_ = json.Unmarshal(frame.Data, &payload)
				s.joins <- payload.ChatroomID
				if s.dropFirst && n == 1 {
					return
				}
			case domain.EventSendMessage:
				var payload domain.SendMessagePayload
				_ = json.Unmarshal(frame.Data, &payload)
				msg := domain.Message{
					ID:         payload.ID,
					ChatroomID: payload.ChatroomID,
					Sender:     domain.Sender{ID: "u1", FullName: "An"},
					Content:    payload.Content,
					CreatedAt:  time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
				}
				data, _ := json.Marshal(msg)
				out, _ := json.Marshal(domain.Frame{Event: domain.EventNewMessage, Data: data})
				_ = conn.WriteMessage(websocket.TextMessage, out)
			}
		}
	})
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for chat event")
	}
	var zero T
	return zero
}

func TestWSTransportRoundTrip(t *testing.T) {
	server := &chatServer{joins: make(chan string, 4)}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	m := NewSessionManager(WSTransportFactory(WSOptions{BaseURL: srv.URL + "/api", Reconnect: DefaultReconnectPolicy()}), nil)
	connected := make(chan struct{}, 1)
	messages := make(chan domain.Message, 1)
	m.OnConnect(func() { connected <- struct{}{} })
	m.OnMessage(func(msg domain.Message) { messages <- msg })

	m.JoinRoom("room-1")
	require.NoError(t, m.Connect(context.Background(), "secret-token"))
	waitFor(t, connected)
	assert.Equal(t, "room-1", waitFor(t, server.joins))
	assert.Equal(t, "Bearer secret-token|secret-token", server.authHeader.Load())

	require.NoError(t, m.SendMessage(domain.SendMessagePayload{ChatroomID: "room-1", Content: "xin chao", ID: "m-42"}))
	msg := waitFor(t, messages)
	assert.Equal(t, "m-42", msg.ID)
	assert.Equal(t, "xin chao", msg.Content)
	assert.Equal(t, "An", msg.Sender.FullName)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestWSTransportRejoinsAfterDrop(t *testing.T) {
	server := &chatServer{joins: make(chan string, 4), dropFirst: true}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	policy := ReconnectPolicy{Enabled: true, Attempts: 3, Delay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
	m := NewSessionManager(WSTransportFactory(WSOptions{BaseURL: srv.URL, Reconnect: policy}), nil)
	drops := make(chan DisconnectInfo, 4)
	m.OnDisconnect(func(info DisconnectInfo) { drops <- info })

	m.JoinRoom("room-7")
	require.NoError(t, m.Connect(context.Background(), "tok"))
	assert.Equal(t, "room-7", waitFor(t, server.joins))
	info := waitFor(t, drops)
	assert.True(t, info.Reconnecting)
	assert.Equal(t, "room-7", waitFor(t, server.joins))
	assert.Equal(t, int32(2), server.connections.Load())
	m.Disconnect()
}

func TestWSTransportExhaustsReconnects(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	policy := ReconnectPolicy{Enabled: true, Attempts: 2, Delay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond}
	m := NewSessionManager(WSTransportFactory(WSOptions{BaseURL: base, Reconnect: policy}), nil)
	var connectErrors atomic.Int32
	m.OnError(func(error) { connectErrors.Add(1) })
	terminal := make(chan DisconnectInfo, 1)
	m.OnDisconnect(func(info DisconnectInfo) { terminal <- info })

	require.NoError(t, m.Connect(context.Background(), ""))
	info := waitFor(t, terminal)
	assert.False(t, info.Reconnecting)
	assert.True(t, strings.Contains(info.Reason, ErrReconnectExhausted.Error()))
	assert.Equal(t, int32(3), connectErrors.Load())
	assert.Equal(t, StateDisconnected, m.State())
}
