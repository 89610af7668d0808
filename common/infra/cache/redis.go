package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func Ping(ctx context.Context, c *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// Connect returns a client only if the server answers a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	c := NewClient(addr)
	if err := Ping(ctx, c); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
