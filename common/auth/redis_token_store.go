package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "takahome:auth:access_token:"

// RedisTokenStore persists the access token of a named profile in redis so
// several CLI processes on one machine share a single login.
type RedisTokenStore struct {
	client  *redis.Client
	profile string
}

func NewRedisTokenStore(client *redis.Client, profile string) *RedisTokenStore {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return &RedisTokenStore{client: client, profile: profile}
}

func (s *RedisTokenStore) key() string {
	return tokenKeyPrefix + s.profile
}

func (s *RedisTokenStore) Token(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token profile=%s: %w", s.profile, err)
	}
	return token, nil
}

// Save stores the token until its own expiry; tokens without exp never expire.
func (s *RedisTokenStore) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	var ttl time.Duration
	if claims, err := InspectToken(token); err == nil && claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			return fmt.Errorf("token for profile=%s already expired", s.profile)
		}
	}
	if err := s.client.Set(ctx, s.key(), token, ttl).Err(); err != nil {
		return fmt.Errorf("save token profile=%s: %w", s.profile, err)
	}
	return nil
}

func (s *RedisTokenStore) Invalidate(ctx context.Context) error {
	return s.client.Del(ctx, s.key()).Err()
}
