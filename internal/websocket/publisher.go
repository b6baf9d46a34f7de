package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publish puts a session event on the session's Redis channel. Every
// instance subscribed to the session relays it to its local clients.
func Publish(event SessionEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("websocket publish: session id required")
	}
	if redisClient == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal event: %w", err)
	}

	if err := redisClient.Publish(context.Background(), sessionChannel(event.SessionID), string(eventJSON)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}
