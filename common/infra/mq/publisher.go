package mq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "chat.events"

// Publisher publishes JSON events to a durable topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	source   string
}

func NewPublisher(conn *amqp.Connection, exchange, source string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("amqp connection is nil")
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, source: source}, nil
}

// Publish sends payload under routingKey. A key prefix scopes events per room
// when given, e.g. "<room>.message.created".
func (p *Publisher) Publish(ctx context.Context, scope, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	routingKey := key
	if strings.TrimSpace(scope) != "" {
		routingKey = scope + "." + key
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return errors.New("publisher is closed")
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		AppId:       p.source,
		Type:        key,
		Body:        body,
		Timestamp:   time.Now(),
	})
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
