package service

import (
	"context"
	"errors"
	"strings"
	"time"

	chat "takahome/client/chat/domain"
	commonlog "takahome/common/log"
	"takahome/server/devbackend/store"
)

var ErrContentRequired = errors.New("content should not be empty")

const EventMessageCreated = "message.created"

type eventPublisher interface {
	Publish(ctx context.Context, scope, key string, payload any) error
}

type ChatService struct {
	store *store.Store
	mq    eventPublisher
}

// NewChatService wires message persistence. mq may be nil.
func NewChatService(st *store.Store, mq eventPublisher) *ChatService {
	return &ChatService{store: st, mq: mq}
}

func (s *ChatService) UsePublisher(mq eventPublisher) {
	s.mq = mq
}

// CreateMessage stores a message and publishes message.created for new ones.
// Passing the id of an already stored message returns that message.
func (s *ChatService) CreateMessage(ctx context.Context, roomID, senderID, content, id string) (chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Message{}, ErrContentRequired
	}
	startedAt := time.Now()
	msg, created, err := s.store.AddMessage(roomID, senderID, content, strings.TrimSpace(id))
	if err != nil {
		commonlog.Warnf("event=chat_message_persist action=create status=failed room_id=%s user_id=%s error=%v", roomID, senderID, err)
		return chat.Message{}, err
	}
	if !created {
		return msg, nil
	}
	commonlog.Infof("event=chat_message_persist action=create status=ok room_id=%s user_id=%s message_id=%s latency_ms=%d", roomID, senderID, msg.ID, time.Since(startedAt).Milliseconds())

	if s.mq != nil {
		event := map[string]any{
			"event":       EventMessageCreated,
			"message_id":  msg.ID,
			"chatroom_id": msg.ChatroomID,
			"sender_id":   msg.Sender.ID,
			"content":     msg.Content,
			"created_at":  msg.CreatedAt,
		}
		if err := s.mq.Publish(ctx, roomID, EventMessageCreated, event); err != nil {
			commonlog.Warnf("event=chat_event_publish action=publish status=failed room_id=%s message_id=%s error=%v", roomID, msg.ID, err)
		}
	}
	return msg, nil
}

func (s *ChatService) Messages(userID, roomID string) ([]chat.Message, error) {
	return s.store.Messages(userID, roomID)
}

func (s *ChatService) Chatrooms(userID string) []chat.Chatroom {
	return s.store.ChatroomsFor(userID)
}

func (s *ChatService) StartChat(userID, propertyID string) (chat.Chatroom, error) {
	room, created, err := s.store.StartChat(userID, propertyID)
	if err != nil {
		return chat.Chatroom{}, err
	}
	if created {
		commonlog.Infof("event=chatroom_create action=start status=ok room_id=%s user_id=%s property_id=%s", room.ID, userID, propertyID)
	}
	return room, nil
}

func (s *ChatService) IsMember(roomID, userID string) bool {
	return s.store.IsMember(roomID, userID)
}
