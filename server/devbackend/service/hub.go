package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	chat "takahome/client/chat/domain"
	commonlog "takahome/common/log"
	"takahome/common/middleware"
	"takahome/common/transport/httpresp"
	"takahome/server/devbackend/store"
)

const (
	chatEventsChannel = "takahome:chat:events"
	writeWait         = 5 * time.Second
	maxFrameBytes     = 64 << 10

	errNotMember     = "you are not a member of this chatroom"
	errRoomNotFound  = "chatroom not found"
	errMalformed     = "malformed frame"
	errUnknownEvent  = "unknown event"
	errPersistFailed = "failed to persist message"
)

type Client struct {
	ID       string
	UserID   string
	FullName string
	Conn     *websocket.Conn
	mu       sync.Mutex
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chat.Frame{Event: event, Data: raw})
}

func (c *Client) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) Send(event string, data any) {
	b, err := encodeFrame(event, data)
	if err != nil {
		commonlog.Errorf("event=chat_hub action=encode status=failed chat_event=%s error=%v", event, err)
		return
	}
	if err := c.writeRaw(b); err != nil {
		commonlog.Debugf("event=chat_hub action=write status=failed client_id=%s error=%v", c.ID, err)
	}
}

func (c *Client) sendError(message string) {
	c.Send(chat.EventError, chat.ErrorPayload{Message: message})
}

type hubEvent struct {
	Kind    string          `json:"kind"`
	RoomID  string          `json:"room_id,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

const (
	hubKindRoom = "room"
	hubKindAll  = "all"
)

// Hub is the /chat websocket endpoint: room membership, message fan-out,
// typing aggregation and presence. With redis attached, broadcasts go through
// pub/sub so every instance delivers to its own sockets.
type Hub struct {
	chat   *ChatService
	typing *TypingTracker

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	joined  map[string]map[string]struct{}
	online  map[string]int

	redis       *redis.Client
	redisSub    *redis.PubSub
	subCancel   context.CancelFunc
	sweepCancel context.CancelFunc
}

func NewHub(chatSvc *ChatService, typing *TypingTracker) *Hub {
	if typing == nil {
		typing = NewTypingTracker(DefaultTypingTTL)
	}
	return &Hub{
		chat:    chatSvc,
		typing:  typing,
		clients: map[string]*Client{},
		rooms:   map[string]map[string]*Client{},
		joined:  map[string]map[string]struct{}{},
		online:  map[string]int{},
	}
}

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

// Start runs the typing sweeper and, when redis is attached, the pub/sub
// consumer.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.sweepCancel != nil {
		h.mu.Unlock()
		return nil
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	h.sweepCancel = cancel
	redisClient := h.redis
	h.mu.Unlock()

	every := h.typing.ttl / 3
	if every < 50*time.Millisecond {
		every = 50 * time.Millisecond
	}
	go h.sweepTyping(sweepCtx, every)

	if redisClient == nil {
		return nil
	}
	subCtx, subCancel := context.WithCancel(ctx)
	sub := redisClient.Subscribe(subCtx, chatEventsChannel)
	if _, err := sub.Receive(subCtx); err != nil {
		subCancel()
		_ = sub.Close()
		return err
	}
	h.mu.Lock()
	h.redisSub = sub
	h.subCancel = subCancel
	h.mu.Unlock()
	go h.consumeEvents(subCtx, sub)
	return nil
}

// Stop ends background work and closes every socket.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.sweepCancel != nil {
		h.sweepCancel()
		h.sweepCancel = nil
	}
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.Conn.Close()
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleWS serves one authenticated socket until it closes.
func (h *Hub) HandleWS(c *gin.Context) {
	userID, fullName := middleware.Actor(c)
	if userID == "" {
		httpresp.Fail(c, http.StatusUnauthorized, httpresp.ErrMissingBearerToken)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("event=chat_hub action=upgrade status=failed user_id=%s error=%v", userID, err)
		return
	}
	client := &Client{ID: uuid.NewString(), UserID: userID, FullName: fullName, Conn: conn}
	conn.SetReadLimit(maxFrameBytes)
	h.register(client)
	defer h.unregister(client)

	ctx := context.WithoutCancel(c.Request.Context())
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame chat.Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			client.sendError(errMalformed)
			continue
		}
		h.dispatch(ctx, client, frame)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, errors.New("empty payload")
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

func (h *Hub) dispatch(ctx context.Context, client *Client, frame chat.Frame) {
	switch frame.Event {
	case chat.EventJoinRoom:
		p, err := decode[chat.RoomPayload](frame.Data)
		if err != nil {
			client.sendError(errMalformed)
			return
		}
		h.handleJoin(client, strings.TrimSpace(p.ChatroomID))
	case chat.EventLeaveRoom:
		p, err := decode[chat.RoomPayload](frame.Data)
		if err != nil {
			client.sendError(errMalformed)
			return
		}
		h.handleLeave(client, strings.TrimSpace(p.ChatroomID))
	case chat.EventSendMessage:
		p, err := decode[chat.SendMessagePayload](frame.Data)
		if err != nil {
			client.sendError(errMalformed)
			return
		}
		h.handleSend(ctx, client, p)
	case chat.EventTyping:
		p, err := decode[chat.TypingPayload](frame.Data)
		if err != nil {
			client.sendError(errMalformed)
			return
		}
		h.handleTyping(client, strings.TrimSpace(p.ChatroomID), p.IsTyping)
	case chat.EventGetOnlineUsers:
		client.Send(chat.EventOnlineUsers, chat.OnlineUsersPayload{Users: h.OnlineUsers()})
	default:
		client.sendError(errUnknownEvent + ": " + frame.Event)
	}
}

func (h *Hub) handleJoin(client *Client, roomID string) {
	if roomID == "" {
		client.sendError(httpresp.ErrChatroomRequired)
		return
	}
	if !h.chat.IsMember(roomID, client.UserID) {
		client.sendError(errNotMember)
		return
	}
	added := h.join(client, roomID)
	client.Send(chat.EventJoinedRoom, chat.RoomPayload{ChatroomID: roomID})
	if added {
		h.broadcastRoom(roomID, client.ID, chat.EventUserJoinedRoom, chat.RoomMemberEvent{
			ChatroomID: roomID,
			UserID:     client.UserID,
			FullName:   client.FullName,
		})
	}
	if users := h.typing.Snapshot(roomID); len(users) > 0 {
		client.Send(chat.EventUserTyping, chat.TypingEvent{ChatroomID: roomID, Users: users})
	}
	commonlog.Infof("event=chat_room action=join status=ok room_id=%s user_id=%s client_id=%s", roomID, client.UserID, client.ID)
}

func (h *Hub) handleLeave(client *Client, roomID string) {
	if roomID == "" {
		client.sendError(httpresp.ErrChatroomRequired)
		return
	}
	if !h.leave(client, roomID) {
		return
	}
	h.stopTyping(client, roomID)
	h.broadcastRoom(roomID, client.ID, chat.EventUserLeftRoom, chat.RoomMemberEvent{
		ChatroomID: roomID,
		UserID:     client.UserID,
		FullName:   client.FullName,
	})
	commonlog.Infof("event=chat_room action=leave status=ok room_id=%s user_id=%s client_id=%s", roomID, client.UserID, client.ID)
}

func (h *Hub) handleSend(ctx context.Context, client *Client, p chat.SendMessagePayload) {
	roomID := strings.TrimSpace(p.ChatroomID)
	if roomID == "" {
		client.sendError(httpresp.ErrChatroomRequired)
		return
	}
	msg, err := h.chat.CreateMessage(ctx, roomID, client.UserID, p.Content, p.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrContentRequired):
		client.sendError(httpresp.ErrContentRequired)
		return
	case errors.Is(err, store.ErrForbidden):
		client.sendError(errNotMember)
		return
	case errors.Is(err, store.ErrNotFound):
		client.sendError(errRoomNotFound)
		return
	default:
		client.sendError(errPersistFailed)
		return
	}
	h.stopTyping(client, roomID)
	h.broadcastRoom(roomID, "", chat.EventNewMessage, msg)
}

func (h *Hub) handleTyping(client *Client, roomID string, typing bool) {
	if roomID == "" {
		client.sendError(httpresp.ErrChatroomRequired)
		return
	}
	if !h.chat.IsMember(roomID, client.UserID) {
		client.sendError(errNotMember)
		return
	}
	users, changed := h.typing.Set(roomID, client.UserID, client.FullName, typing)
	if changed {
		h.broadcastRoom(roomID, client.ID, chat.EventUserTyping, chat.TypingEvent{ChatroomID: roomID, Users: users})
	}
}

func (h *Hub) stopTyping(client *Client, roomID string) {
	users, changed := h.typing.Set(roomID, client.UserID, client.FullName, false)
	if changed {
		h.broadcastRoom(roomID, client.ID, chat.EventUserTyping, chat.TypingEvent{ChatroomID: roomID, Users: users})
	}
}

func (h *Hub) sweepTyping(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for roomID, users := range h.typing.Sweep() {
				h.broadcastRoom(roomID, "", chat.EventUserTyping, chat.TypingEvent{ChatroomID: roomID, Users: users})
			}
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.online[client.UserID]++
	first := h.online[client.UserID] == 1
	h.mu.Unlock()

	commonlog.Infof("event=chat_hub action=register status=ok user_id=%s client_id=%s", client.UserID, client.ID)
	if first {
		h.broadcastAll(client.ID, chat.EventUserOnline, chat.PresencePayload{UserID: client.UserID, FullName: client.FullName})
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	rooms := h.joined[client.ID]
	delete(h.joined, client.ID)
	for roomID := range rooms {
		members := h.rooms[roomID]
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.online[client.UserID]--
	last := h.online[client.UserID] <= 0
	if last {
		delete(h.online, client.UserID)
	}
	h.mu.Unlock()
	_ = client.Conn.Close()

	for roomID := range rooms {
		h.broadcastRoom(roomID, client.ID, chat.EventUserLeftRoom, chat.RoomMemberEvent{
			ChatroomID: roomID,
			UserID:     client.UserID,
			FullName:   client.FullName,
		})
	}
	if last {
		for roomID, users := range h.typing.ClearUser(client.UserID) {
			h.broadcastRoom(roomID, "", chat.EventUserTyping, chat.TypingEvent{ChatroomID: roomID, Users: users})
		}
		h.broadcastAll(client.ID, chat.EventUserOffline, chat.PresencePayload{UserID: client.UserID, FullName: client.FullName})
	}
	commonlog.Infof("event=chat_hub action=unregister status=ok user_id=%s client_id=%s rooms=%d", client.UserID, client.ID, len(rooms))
}

func (h *Hub) join(client *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	if members == nil {
		members = map[string]*Client{}
		h.rooms[roomID] = members
	}
	if _, ok := members[client.ID]; ok {
		return false
	}
	members[client.ID] = client
	rooms := h.joined[client.ID]
	if rooms == nil {
		rooms = map[string]struct{}{}
		h.joined[client.ID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

func (h *Hub) leave(client *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	if _, ok := members[client.ID]; !ok {
		return false
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	delete(h.joined[client.ID], roomID)
	return true
}

// OnlineUsers lists the users with at least one socket on this instance.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.online))
	for userID := range h.online {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) broadcastRoom(roomID, exclude, event string, data any) {
	b, err := encodeFrame(event, data)
	if err != nil {
		commonlog.Errorf("event=chat_hub action=encode status=failed chat_event=%s error=%v", event, err)
		return
	}
	if h.publish(hubEvent{Kind: hubKindRoom, RoomID: roomID, Exclude: exclude, Frame: b}) {
		return
	}
	n := h.deliverRoom(roomID, exclude, b)
	commonlog.Debugf("event=chat_hub action=dispatch kind=%s chat_event=%s room_id=%s fanout_count=%d", hubKindRoom, event, roomID, n)
}

func (h *Hub) broadcastAll(exclude, event string, data any) {
	b, err := encodeFrame(event, data)
	if err != nil {
		commonlog.Errorf("event=chat_hub action=encode status=failed chat_event=%s error=%v", event, err)
		return
	}
	if h.publish(hubEvent{Kind: hubKindAll, Exclude: exclude, Frame: b}) {
		return
	}
	n := h.deliverAll(exclude, b)
	commonlog.Debugf("event=chat_hub action=dispatch kind=%s chat_event=%s fanout_count=%d", hubKindAll, event, n)
}

func (h *Hub) deliverRoom(roomID, exclude string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for id, c := range h.rooms[roomID] {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return deliver(targets, frame)
}

func (h *Hub) deliverAll(exclude string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return deliver(targets, frame)
}

func deliver(targets []*Client, frame []byte) int {
	n := 0
	for _, c := range targets {
		if err := c.writeRaw(frame); err != nil {
			commonlog.Debugf("event=chat_hub action=write status=failed client_id=%s error=%v", c.ID, err)
			continue
		}
		n++
	}
	return n
}

func (h *Hub) publish(event hubEvent) bool {
	h.mu.RLock()
	redisClient := h.redis
	subscribed := h.redisSub != nil
	h.mu.RUnlock()
	if redisClient == nil || !subscribed {
		return false
	}
	b, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if err := redisClient.Publish(context.Background(), chatEventsChannel, b).Err(); err != nil {
		commonlog.Warnf("event=chat_hub action=publish status=failed kind=%s room_id=%s error=%v", event.Kind, event.RoomID, err)
		return false
	}
	return true
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || len(event.Frame) == 0 {
			continue
		}
		switch event.Kind {
		case hubKindRoom:
			n := h.deliverRoom(event.RoomID, event.Exclude, event.Frame)
			commonlog.Debugf("event=chat_hub action=consume status=ok kind=%s room_id=%s fanout_count=%d", event.Kind, event.RoomID, n)
		case hubKindAll:
			n := h.deliverAll(event.Exclude, event.Frame)
			commonlog.Debugf("event=chat_hub action=consume status=ok kind=%s fanout_count=%d", event.Kind, n)
		}
	}
}
