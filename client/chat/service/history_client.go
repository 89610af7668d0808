package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"takahome/client/chat/domain"
	"takahome/common/apiclient"
)

// HistoryClient covers the chat REST endpoints.
type HistoryClient struct {
	api *apiclient.Client
}

func NewHistoryClient(api *apiclient.Client) *HistoryClient {
	return &HistoryClient{api: api}
}

func (c *HistoryClient) MyChatrooms(ctx context.Context) ([]domain.Chatroom, error) {
	env, err := apiclient.Get[[]domain.Chatroom](ctx, c.api, "/chatrooms/my-chats", nil)
	if err != nil {
		return nil, fmt.Errorf("list chatrooms: %w", err)
	}
	return env.Data, nil
}

func (c *HistoryClient) RoomMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	env, err := apiclient.Get[[]domain.Message](ctx, c.api, "/chatmessages/chatroom/"+url.PathEscape(roomID), nil)
	if err != nil {
		return nil, fmt.Errorf("list messages of room %s: %w", roomID, err)
	}
	for i := range env.Data {
		if env.Data[i].ChatroomID == "" {
			env.Data[i].ChatroomID = roomID
		}
	}
	return env.Data, nil
}

func (c *HistoryClient) PersistMessage(ctx context.Context, req domain.PersistMessageRequest) (domain.Message, error) {
	env, err := apiclient.Post[domain.Message](ctx, c.api, "/chatmessages", req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	msg := env.Data
	if msg.ID == "" {
		return domain.Message{}, errors.New("persist message: response carries no message id")
	}
	if msg.ChatroomID == "" {
		msg.ChatroomID = req.ChatroomID
	}
	return msg, nil
}

func (c *HistoryClient) StartChatForProperty(ctx context.Context, propertyID string) (domain.Chatroom, error) {
	env, err := apiclient.Post[domain.Chatroom](ctx, c.api, "/chatrooms/property/"+url.PathEscape(propertyID), nil)
	if err != nil {
		return domain.Chatroom{}, fmt.Errorf("start chat for property %s: %w", propertyID, err)
	}
	return env.Data, nil
}
