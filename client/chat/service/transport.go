package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// TransportEvents receives the lifecycle and inbound events of one transport.
// Calls arrive from the transport's own goroutine, one at a time.
type TransportEvents interface {
	OnOpen()
	// OnDrop reports a lost connection. reconnecting is false when the
	// transport has given up and will not call OnOpen again.
	OnDrop(err error, reconnecting bool)
	OnConnectError(err error)
	OnEvent(event string, data json.RawMessage)
}

// Transport is a single realtime connection to the chat namespace that
// reconnects on its own according to its policy.
type Transport interface {
	Open(ctx context.Context, token string, events TransportEvents) error
	Emit(event string, payload any) error
	Connected() bool
	Close() error
}

type TransportFactory func() (Transport, error)

type ReconnectPolicy struct {
	Enabled  bool
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Enabled: true, Attempts: 5, Delay: time.Second, MaxDelay: 5 * time.Second}
}

// Backoff returns the wait before reconnect attempt n (1-based): Delay
// doubled per attempt, capped at MaxDelay.
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay < delay {
		maxDelay = delay
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}
