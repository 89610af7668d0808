package domain

import "encoding/json"

// Client to server events.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventSendMessage    = "send-message"
	EventTyping         = "typing"
	EventGetOnlineUsers = "get-online-users"
)

// Server to client events.
const (
	EventConnect        = "connect"
	EventDisconnect     = "disconnect"
	EventConnectError   = "connect_error"
	EventNewMessage     = "new-message"
	EventJoinedRoom     = "joined-room"
	EventUserJoinedRoom = "user-joined-room"
	EventUserLeftRoom   = "user-left-room"
	EventUserTyping     = "user-typing"
	EventUserOnline     = "user-online"
	EventUserOffline    = "user-offline"
	EventOnlineUsers    = "online-users"
	EventError          = "error"
)

// Frame is one websocket text frame of the chat namespace.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RoomPayload struct {
	ChatroomID string `json:"chatroomId"`
}

type SendMessagePayload struct {
	ChatroomID string `json:"chatroomId"`
	Content    string `json:"content"`
	ID         string `json:"id,omitempty"`
}

type TypingPayload struct {
	ChatroomID string `json:"chatroomId"`
	IsTyping   bool   `json:"isTyping"`
}

type TypingUser struct {
	UserID    string `json:"userId"`
	FullName  string `json:"fullName"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

// TypingEvent is the server snapshot of everyone typing in a room.
type TypingEvent struct {
	ChatroomID string       `json:"chatroomId"`
	Users      []TypingUser `json:"users"`
}

// TypingUpdate is delivered to typing subscribers, one per snapshot user.
type TypingUpdate struct {
	ChatroomID string
	TypingUser
}

// Cleared reports the synthetic update sent for an empty snapshot.
func (u TypingUpdate) Cleared() bool {
	return u.UserID == "" && !u.IsTyping
}

type RoomMemberEvent struct {
	ChatroomID string `json:"chatroomId"`
	UserID     string `json:"userId"`
	FullName   string `json:"fullName,omitempty"`
}

type PresencePayload struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName,omitempty"`
}

type OnlineUsersPayload struct {
	Users []string `json:"users"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PresenceKind string

const (
	PresenceOnline     PresenceKind = "online"
	PresenceOffline    PresenceKind = "offline"
	PresenceSnapshot   PresenceKind = "snapshot"
	PresenceJoinedRoom PresenceKind = "joined_room"
	PresenceLeftRoom   PresenceKind = "left_room"
)

// PresenceEvent folds online/offline, the online list and room membership
// notices into one subscriber shape.
type PresenceEvent struct {
	Kind       PresenceKind
	ChatroomID string
	UserID     string
	FullName   string
	UserIDs    []string
}
