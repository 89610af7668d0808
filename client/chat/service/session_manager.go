package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"takahome/client/chat/domain"
	"takahome/common/auth"
	commonlog "takahome/common/log"
)

var ErrNotConnected = errors.New("chat socket not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ServerError is an error event pushed by the chat server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "chat server: " + e.Message
}

// SessionManager owns the chat connection, the joined room and its typing
// state, and fans inbound events out to subscribers. At most one room is
// joined at a time. Subscribers run outside the lock, in registration order.
type SessionManager struct {
	newTransport TransportFactory
	tokens       auth.TokenProvider

	// opMu orders outbound room operations so a leave is always emitted
	// before the following join.
	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	transport Transport
	room      string
	typing    []domain.TypingUser

	nextHandlerID uint64
	onMessage     handlerSet[MessageHandler]
	onTyping      handlerSet[TypingHandler]
	onError       handlerSet[ErrorHandler]
	onConnect     handlerSet[ConnectHandler]
	onDisconnect  handlerSet[DisconnectHandler]
	onPresence    handlerSet[PresenceHandler]
}

func NewSessionManager(newTransport TransportFactory, tokens auth.TokenProvider) *SessionManager {
	return &SessionManager{newTransport: newTransport, tokens: tokens}
}

func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SessionManager) Connected() bool {
	return m.State() == StateConnected
}

func (m *SessionManager) CurrentRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// TypingUsers returns the users currently typing in the joined room.
func (m *SessionManager) TypingUsers() []domain.TypingUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TypingUser, len(m.typing))
	copy(out, m.typing)
	return out
}

// Connect opens the chat connection. It is a no-op while connecting or
// connected. An empty token is replaced by the token provider's; if that
// fails the connection proceeds without one and the server decides.
func (m *SessionManager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if strings.TrimSpace(token) == "" {
		token = m.providerToken(ctx)
	}

	transport, err := m.newTransport()
	if err != nil {
		m.resetConnecting(gen)
		commonlog.Errorf("event=chat_session action=connect status=failed stage=transport error=%v", err)
		return fmt.Errorf("create chat transport: %w", err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = transport.Close()
		return nil
	}
	m.transport = transport
	m.mu.Unlock()

	if err := transport.Open(ctx, token, &generationEvents{m: m, gen: gen}); err != nil {
		m.resetConnecting(gen)
		_ = transport.Close()
		commonlog.Errorf("event=chat_session action=connect status=failed stage=open error=%v", err)
		return fmt.Errorf("open chat transport: %w", err)
	}
	commonlog.Infof("event=chat_session action=connect status=connecting token_present=%t", token != "")
	return nil
}

func (m *SessionManager) providerToken(ctx context.Context) string {
	if m.tokens == nil {
		return ""
	}
	token, err := m.tokens.Token(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNoToken) {
			commonlog.Warnf("event=chat_session action=read_token status=failed error=%v", err)
		}
		return ""
	}
	return token
}

func (m *SessionManager) resetConnecting(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.state = StateDisconnected
		m.transport = nil
	}
}

// Disconnect tears the connection down and forgets the joined room. Safe to
// call when already disconnected.
func (m *SessionManager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected && m.transport == nil {
		m.mu.Unlock()
		return
	}
	wasConnected := m.state == StateConnected
	transport := m.transport
	m.state = StateDisconnected
	m.transport = nil
	m.gen++
	m.room = ""
	m.typing = nil
	handlers := m.onDisconnect.snapshot()
	m.mu.Unlock()

	if transport != nil {
		if err := transport.Close(); err != nil {
			commonlog.Warnf("event=chat_session action=disconnect status=close_failed error=%v", err)
		}
	}
	commonlog.Infof("event=chat_session action=disconnect status=ok was_connected=%t", wasConnected)
	if wasConnected {
		info := DisconnectInfo{Reason: "client disconnect"}
		for _, h := range handlers {
			h(info)
		}
	}
}

// JoinRoom makes roomID the joined room, leaving the previous one first. The
// room's typing state is reset on every call. While not connected the join is
// recorded and emitted once the connection opens.
func (m *SessionManager) JoinRoom(roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	previous := m.room
	m.room = roomID
	m.typing = nil
	transport := m.connectedTransportLocked()
	m.mu.Unlock()

	if transport == nil {
		commonlog.Debugf("event=chat_session action=join_room status=deferred room_id=%s", roomID)
		return
	}
	if previous != "" && previous != roomID {
		m.emit(transport, domain.EventLeaveRoom, domain.RoomPayload{ChatroomID: previous})
	}
	m.emit(transport, domain.EventJoinRoom, domain.RoomPayload{ChatroomID: roomID})
}

// LeaveRoom leaves roomID if it is the joined room; otherwise it does nothing.
func (m *SessionManager) LeaveRoom(roomID string) {
	roomID = strings.TrimSpace(roomID)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if roomID == "" || roomID != m.room {
		m.mu.Unlock()
		return
	}
	m.room = ""
	m.typing = nil
	transport := m.connectedTransportLocked()
	m.mu.Unlock()

	if transport != nil {
		m.emit(transport, domain.EventLeaveRoom, domain.RoomPayload{ChatroomID: roomID})
	}
}

// SendMessage is the only operation that fails when not connected.
func (m *SessionManager) SendMessage(payload domain.SendMessagePayload) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	transport := m.connectedTransportLocked()
	m.mu.Unlock()
	if transport == nil {
		return ErrNotConnected
	}
	if err := transport.Emit(domain.EventSendMessage, payload); err != nil {
		commonlog.Warnf("event=chat_session action=send_message status=failed room_id=%s error=%v", payload.ChatroomID, err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendTyping is best effort and silently dropped when not connected.
func (m *SessionManager) SendTyping(roomID string, isTyping bool) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	transport := m.connectedTransportLocked()
	m.mu.Unlock()
	if transport == nil {
		return
	}
	m.emit(transport, domain.EventTyping, domain.TypingPayload{ChatroomID: roomID, IsTyping: isTyping})
}

// RequestOnlineUsers asks for an online-users event; dropped when not connected.
func (m *SessionManager) RequestOnlineUsers() {
	m.mu.Lock()
	transport := m.connectedTransportLocked()
	m.mu.Unlock()
	if transport == nil {
		commonlog.Debugf("event=chat_session action=get_online_users status=skipped reason=not_connected")
		return
	}
	m.emit(transport, domain.EventGetOnlineUsers, struct{}{})
}

func (m *SessionManager) connectedTransportLocked() Transport {
	if m.state != StateConnected || m.transport == nil || !m.transport.Connected() {
		return nil
	}
	return m.transport
}

func (m *SessionManager) emit(transport Transport, event string, payload any) {
	if err := transport.Emit(event, payload); err != nil {
		commonlog.Debugf("event=chat_session action=emit status=failed name=%s error=%v", event, err)
	}
}

func (m *SessionManager) OnMessage(fn MessageHandler) func() {
	return m.subscribe(func(id uint64) { m.onMessage.add(id, fn) }, func(id uint64) { m.onMessage.remove(id) })
}

func (m *SessionManager) OnTyping(fn TypingHandler) func() {
	return m.subscribe(func(id uint64) { m.onTyping.add(id, fn) }, func(id uint64) { m.onTyping.remove(id) })
}

func (m *SessionManager) OnError(fn ErrorHandler) func() {
	return m.subscribe(func(id uint64) { m.onError.add(id, fn) }, func(id uint64) { m.onError.remove(id) })
}

func (m *SessionManager) OnConnect(fn ConnectHandler) func() {
	return m.subscribe(func(id uint64) { m.onConnect.add(id, fn) }, func(id uint64) { m.onConnect.remove(id) })
}

func (m *SessionManager) OnDisconnect(fn DisconnectHandler) func() {
	return m.subscribe(func(id uint64) { m.onDisconnect.add(id, fn) }, func(id uint64) { m.onDisconnect.remove(id) })
}

func (m *SessionManager) OnPresence(fn PresenceHandler) func() {
	return m.subscribe(func(id uint64) { m.onPresence.add(id, fn) }, func(id uint64) { m.onPresence.remove(id) })
}

func (m *SessionManager) subscribe(add, remove func(id uint64)) func() {
	m.mu.Lock()
	m.nextHandlerID++
	id := m.nextHandlerID
	add(id)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			remove(id)
			m.mu.Unlock()
		})
	}
}

// generationEvents ties transport callbacks to the Connect call that created
// the transport, so a late callback from a torn down transport is ignored.
type generationEvents struct {
	m   *SessionManager
	gen uint64
}

func (e *generationEvents) OnOpen() {
	m := e.m
	m.mu.Lock()
	if m.gen != e.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	room := m.room
	m.mu.Unlock()
	commonlog.Infof("event=chat_session action=open status=connected room_id=%s", room)

	if room != "" {
		m.rejoin(e.gen, room)
	}

	m.mu.Lock()
	handlers := m.onConnect.snapshot()
	m.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (m *SessionManager) rejoin(gen uint64, room string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	if m.gen != gen || m.room != room {
		m.mu.Unlock()
		return
	}
	transport := m.connectedTransportLocked()
	m.mu.Unlock()
	if transport != nil {
		m.emit(transport, domain.EventJoinRoom, domain.RoomPayload{ChatroomID: room})
	}
}

func (e *generationEvents) OnDrop(err error, reconnecting bool) {
	m := e.m
	m.mu.Lock()
	if m.gen != e.gen {
		m.mu.Unlock()
		return
	}
	if reconnecting {
		m.state = StateConnecting
	} else {
		m.state = StateDisconnected
		m.transport = nil
	}
	m.typing = nil
	handlers := m.onDisconnect.snapshot()
	m.mu.Unlock()

	reason := "transport closed"
	if err != nil {
		reason = err.Error()
	}
	commonlog.Warnf("event=chat_session action=drop status=disconnected reconnecting=%t reason=%q", reconnecting, reason)
	info := DisconnectInfo{Reason: reason, Reconnecting: reconnecting}
	for _, h := range handlers {
		h(info)
	}
}

func (e *generationEvents) OnConnectError(err error) {
	m := e.m
	m.mu.Lock()
	if m.gen != e.gen {
		m.mu.Unlock()
		return
	}
	handlers := m.onError.snapshot()
	m.mu.Unlock()
	commonlog.Warnf("event=chat_session action=connect status=error error=%v", err)
	for _, h := range handlers {
		h(err)
	}
}

func (e *generationEvents) OnEvent(event string, data json.RawMessage) {
	m := e.m
	m.mu.Lock()
	current := m.gen == e.gen
	m.mu.Unlock()
	if !current {
		return
	}
	switch event {
	case domain.EventNewMessage:
		var msg domain.Message
		if !decodeEvent(event, data, &msg) {
			return
		}
		m.dispatchMessage(msg)
	case domain.EventUserTyping:
		var snapshot domain.TypingEvent
		if !decodeEvent(event, data, &snapshot) {
			return
		}
		m.dispatchTyping(snapshot)
	case domain.EventJoinedRoom:
		var payload domain.RoomPayload
		_ = json.Unmarshal(data, &payload)
		commonlog.Debugf("event=chat_session action=joined_room status=ok room_id=%s", payload.ChatroomID)
	case domain.EventUserJoinedRoom, domain.EventUserLeftRoom:
		var payload domain.RoomMemberEvent
		if !decodeEvent(event, data, &payload) {
			return
		}
		kind := domain.PresenceJoinedRoom
		if event == domain.EventUserLeftRoom {
			kind = domain.PresenceLeftRoom
		}
		m.dispatchPresence(domain.PresenceEvent{Kind: kind, ChatroomID: payload.ChatroomID, UserID: payload.UserID, FullName: payload.FullName})
	case domain.EventUserOnline, domain.EventUserOffline:
		var payload domain.PresencePayload
		if !decodeEvent(event, data, &payload) {
			return
		}
		kind := domain.PresenceOnline
		if event == domain.EventUserOffline {
			kind = domain.PresenceOffline
		}
		m.dispatchPresence(domain.PresenceEvent{Kind: kind, UserID: payload.UserID, FullName: payload.FullName})
	case domain.EventOnlineUsers:
		var payload domain.OnlineUsersPayload
		if !decodeEvent(event, data, &payload) {
			return
		}
		m.dispatchPresence(domain.PresenceEvent{Kind: domain.PresenceSnapshot, UserIDs: payload.Users})
	case domain.EventError:
		var payload domain.ErrorPayload
		if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
			payload.Message = strings.Trim(string(data), `"`)
		}
		m.dispatchError(&ServerError{Message: payload.Message})
	default:
		commonlog.Debugf("event=chat_session action=receive status=ignored name=%s", event)
	}
}

func decodeEvent(event string, data json.RawMessage, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		commonlog.Warnf("event=chat_session action=decode status=failed name=%s error=%v", event, err)
		return false
	}
	return true
}

func (m *SessionManager) dispatchMessage(msg domain.Message) {
	m.mu.Lock()
	handlers := m.onMessage.snapshot()
	m.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

// dispatchTyping turns one snapshot into per-user updates, or a single
// cleared update when nobody is typing. Only a snapshot for the joined room
// replaces the tracked typing state.
func (m *SessionManager) dispatchTyping(snapshot domain.TypingEvent) {
	m.mu.Lock()
	if snapshot.ChatroomID != "" && snapshot.ChatroomID == m.room {
		typing := make([]domain.TypingUser, 0, len(snapshot.Users))
		for _, user := range snapshot.Users {
			if user.IsTyping {
				typing = append(typing, user)
			}
		}
		m.typing = typing
	}
	handlers := m.onTyping.snapshot()
	m.mu.Unlock()

	updates := make([]domain.TypingUpdate, 0, len(snapshot.Users))
	for _, user := range snapshot.Users {
		updates = append(updates, domain.TypingUpdate{ChatroomID: snapshot.ChatroomID, TypingUser: user})
	}
	if len(updates) == 0 {
		updates = append(updates, domain.TypingUpdate{
			ChatroomID: snapshot.ChatroomID,
			TypingUser: domain.TypingUser{Timestamp: nowMillis()},
		})
	}
	for _, update := range updates {
		for _, h := range handlers {
			h(update)
		}
	}
}

func (m *SessionManager) dispatchPresence(event domain.PresenceEvent) {
	m.mu.Lock()
	handlers := m.onPresence.snapshot()
	m.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (m *SessionManager) dispatchError(err error) {
	m.mu.Lock()
	handlers := m.onError.snapshot()
	m.mu.Unlock()
	commonlog.Warnf("event=chat_session action=receive status=server_error error=%v", err)
	for _, h := range handlers {
		h(err)
	}
}
