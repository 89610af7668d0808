package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type emitted struct {
	event   string
	payload any
}

type fakeTransport struct {
	mu        sync.Mutex
	events    TransportEvents
	token     string
	connected bool
	closed    bool
	openErr   error
	emits     []emitted
}

func (f *fakeTransport) Open(ctx context.Context, token string, events TransportEvents) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	f.events = events
	return f.openErr
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeTransport) open() {
	f.mu.Lock()
	f.connected = true
	events := f.events
	f.mu.Unlock()
	events.OnOpen()
}

func (f *fakeTransport) drop(reconnecting bool) {
	f.mu.Lock()
	f.connected = false
	events := f.events
	f.mu.Unlock()
	events.OnDrop(errors.New("connection reset"), reconnecting)
}

func (f *fakeTransport) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	events.OnEvent(event, raw)
}

func (f *fakeTransport) sent() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, len(f.emits))
	copy(out, f.emits)
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = nil
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	openErr    error
}

func (f *fakeFactory) New() (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{openErr: f.openErr}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[len(f.transports)-1]
}
