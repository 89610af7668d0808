package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

type Sender struct {
	ID       string `json:"id" yaml:"id"`
	FullName string `json:"fullName" yaml:"fullName"`
	Email    string `json:"email,omitempty" yaml:"email"`
}

// Message is a chat message as delivered by new-message and by the history
// endpoint. History rows carry the room as a nested chatroom reference.
type Message struct {
	ID         string    `json:"id"`
	ChatroomID string    `json:"chatroomId"`
	Sender     Sender    `json:"sender"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (m *Message) UnmarshalJSON(raw []byte) error {
	type plain Message
	var out struct {
		plain
		Chatroom json.RawMessage `json:"chatroom"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = Message(out.plain)
	if m.ChatroomID == "" {
		m.ChatroomID = roomRef(out.Chatroom)
	}
	return nil
}

func roomRef(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var id string
	if raw[0] == '"' {
		_ = json.Unmarshal(raw, &id)
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &obj)
	return obj.ID
}

type ChatUser struct {
	ID        string `json:"id" yaml:"id"`
	Email     string `json:"email,omitempty" yaml:"email"`
	Phone     string `json:"phone,omitempty" yaml:"phone"`
	FullName  string `json:"fullName,omitempty" yaml:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatarUrl"`
}

type ChatProperty struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Type     string `json:"type,omitempty" yaml:"type"`
	Address  string `json:"address,omitempty" yaml:"address"`
	Ward     string `json:"ward,omitempty" yaml:"ward"`
	Province string `json:"province,omitempty" yaml:"province"`
}

// Chatroom pairs two users around one property.
type Chatroom struct {
	ID        string       `json:"id" yaml:"id"`
	User1     ChatUser     `json:"user1" yaml:"user1"`
	User2     ChatUser     `json:"user2" yaml:"user2"`
	Property  ChatProperty `json:"property" yaml:"property"`
	Messages  []Message    `json:"messages,omitempty" yaml:"-"`
	CreatedAt time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt" yaml:"updatedAt"`
}

// Peer returns the participant that is not userID.
func (r Chatroom) Peer(userID string) ChatUser {
	if r.User1.ID == userID {
		return r.User2
	}
	return r.User1
}

type PersistMessageRequest struct {
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	ChatroomID string `json:"chatroomId"`
}
