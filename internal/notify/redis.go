package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/resy-sniper/internal/logger"
)

// Publisher is the part of *redis.Client the Redis notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes each event as JSON on a pub/sub channel.
type Redis struct {
	Client  Publisher
	Channel string
}

func (r Redis) Notify(ctx context.Context, e Event) error {
	b, err := e.encode()
	if err != nil {
		return err
	}
	if err := r.Client.Publish(ctx, r.Channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.Channel, err)
	}
	return nil
}

// DialRedis connects to addr and pings it once. Notifications are optional,
// so unlike the store there is no retry loop: a dead Redis is reported and
// the caller decides whether to run without it.
func DialRedis(ctx context.Context, addr, password string, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", addr, err)
	}
	log.Info("connected to redis", logger.String("addr", addr))
	return client, nil
}
