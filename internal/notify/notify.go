package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Notifier pushes out-of-band events to players (opponent found, match
// settled, match cancelled). Implementations must not block the caller.
type Notifier interface {
	Notify(userID, eventType string, payload map[string]interface{})
}

// RedisNotifier publishes events on Redis pub/sub channels. Each player has
// a personal channel and every event is mirrored to a shared match_events
// channel that the websocket layer subscribes to.
type RedisNotifier struct {
	rdb       *redis.Client
	namespace string
}

func NewRedisNotifier(rdb *redis.Client, namespace string) *RedisNotifier {
	if namespace == "" {
		namespace = "cuepool"
	}
	return &RedisNotifier{rdb: rdb, namespace: namespace}
}

func (n *RedisNotifier) Notify(userID, eventType string, payload map[string]interface{}) {
	go func() {
		msg := map[string]interface{}{
			"type":    eventType,
			"user_id": userID,
		}
		for k, v := range payload {
			msg[k] = v
		}
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("[NOTIFY] marshal %s event: %v", eventType, err)
			return
		}

		ctx := context.Background()
		if err := n.rdb.Publish(ctx, n.namespace+":notify:"+userID, data).Err(); err != nil {
			log.Printf("[NOTIFY] publish to %s failed: %v", userID, err)
		}
		if err := n.rdb.Publish(ctx, n.namespace+":match_events", data).Err(); err != nil {
			log.Printf("[NOTIFY] publish match event failed: %v", err)
		}
	}()
}

// LogNotifier writes events to the server log. Used in development and in
// tests where no Redis is available.
type LogNotifier struct{}

func (LogNotifier) Notify(userID, eventType string, payload map[string]interface{}) {
	log.Printf("[NOTIFY] %s -> %s: %v", eventType, userID, payload)
}
