package redis

import (
	"context"
	"fmt"
	"strings"

	"dgc-transports/internal/logger"

	"github.com/go-redis/redis/v8"
)

// EnableExpiryEvents turns on keyevent notifications for expired keys.
// Managed Redis offerings often forbid CONFIG SET; the failure is logged.
func EnableExpiryEvents(ctx context.Context, client *redis.Client, log *logger.Logger) {
	if _, err := client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
		return
	}
	log.Info("REDIS", "Keyspace notifications enabled for expired events")
}

// SubscribeExpiredHolds calls onExpire with the key of every seat hold that
// times out. It returns when ctx is cancelled.
func SubscribeExpiredHolds(ctx context.Context, client *redis.Client, log *logger.Logger, onExpire func(ctx context.Context, key string)) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", client.Options().DB)
	pubsub := client.PSubscribe(ctx, channel)
	log.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, KeyPrefix) {
					continue
				}
				log.Debug("REDIS", fmt.Sprintf("Seat hold expired: %s", msg.Payload))
				onExpire(ctx, msg.Payload)
			}
		}
	}()
}
