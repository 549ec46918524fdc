package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// StartMatchEventSubscriber relays match events published by other instances
// (match_found, match_ended, match_cancelled) to locally connected clients.
// Without Redis the hub still serves single-instance deployments.
func StartMatchEventSubscriber(ctx context.Context, hub *Hub, rdb *redis.Client, namespace string) {
	if rdb == nil {
		log.Println("[WS] Redis client not set; match event subscriber not started")
		return
	}
	if namespace == "" {
		namespace = "cuepool"
	}

	pubsub := rdb.Subscribe(ctx, namespace+":match_events")
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Println("[WS] match_events subscriber started")
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var payload map[string]interface{}
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					log.Printf("[WS] invalid match event payload: %v", err)
					continue
				}

				userID, _ := payload["user_id"].(string)
				matchID, _ := payload["match_id"].(string)

				if userID != "" {
					hub.SendToUser(userID, payload)
				} else if matchID != "" {
					hub.BroadcastToMatch(matchID, payload)
				}
			}
		}
	}()
}
