package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNoToken = errors.New("no access token available")

// TokenProvider hands out the bearer token shared by the REST client and the
// chat session manager.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenInvalidator is implemented by providers that can forget a token the
// backend rejected.
type TokenInvalidator interface {
	Invalidate(ctx context.Context) error
}

// StaticToken is a fixed token, typically from a flag or env variable.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(t))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// MemoryTokenStore keeps a token in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: strings.TrimSpace(token)}
}

func (s *MemoryTokenStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	return nil
}

func (s *MemoryTokenStore) Invalidate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// ChainProvider returns the first token any of its providers yields.
type ChainProvider []TokenProvider

func (c ChainProvider) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		token, err := p.Token(ctx)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// Invalidate forgets the token only in the provider currently supplying it. A
// rejected static token leaves stored logins alone.
func (c ChainProvider) Invalidate(ctx context.Context) error {
	for _, p := range c {
		if p == nil {
			continue
		}
		token, err := p.Token(ctx)
		if err != nil || token == "" {
			continue
		}
		if inv, ok := p.(TokenInvalidator); ok {
			return inv.Invalidate(ctx)
		}
		return nil
	}
	return nil
}
