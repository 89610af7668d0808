package app

import (
	"strings"
	"time"

	chatsvc "takahome/client/chat/service"
	cmnenv "takahome/common/env"
)

const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

type Config struct {
	APIURLs     []string
	Token       string
	Profile     string
	TokenStore  string
	RedisAddr   string
	HTTPTimeout time.Duration
	Reconnect   chatsvc.ReconnectPolicy
}

func LoadConfig() Config {
	reconnect := chatsvc.DefaultReconnectPolicy()
	reconnect.Enabled = cmnenv.Bool("CHAT_RECONNECT", reconnect.Enabled)
	reconnect.Attempts = cmnenv.Int("CHAT_RECONNECT_ATTEMPTS", reconnect.Attempts)
	reconnect.Delay = cmnenv.Millis("CHAT_RECONNECT_DELAY_MS", reconnect.Delay)
	reconnect.MaxDelay = cmnenv.Millis("CHAT_RECONNECT_DELAY_MAX_MS", reconnect.MaxDelay)
	return Config{
		APIURLs:     cmnenv.CSV("TAKAHOME_API_URL", []string{"http://localhost:8080/api"}),
		Token:       cmnenv.String("TAKAHOME_TOKEN", ""),
		Profile:     cmnenv.String("TAKAHOME_PROFILE", "default"),
		TokenStore:  strings.ToLower(cmnenv.String("TAKAHOME_TOKEN_STORE", TokenStoreMemory)),
		RedisAddr:   cmnenv.String("REDIS_ADDR", "localhost:6379"),
		HTTPTimeout: cmnenv.Millis("API_HTTP_TIMEOUT_MS", 30*time.Second),
		Reconnect:   reconnect,
	}
}

// BaseURL is the primary REST endpoint; the chat socket is derived from it.
func (c Config) BaseURL() string {
	if len(c.APIURLs) == 0 {
		return ""
	}
	return c.APIURLs[0]
}
