package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"classifieds/internal/domain"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	"github.com/go-redis/redis/v8"
)

const DefaultChannel = "marketplace:events"

// Hub delivers domain events to the websocket clients connected to this
// instance. With Redis configured, events go through a pub/sub channel so
// that every instance sees them.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	redis   *redis.Client
	channel string
	loggers *logger.Loggers
}

func NewHub(rdb *redis.Client, loggers *logger.Loggers) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		redis:   rdb,
		channel: DefaultChannel,
		loggers: loggers,
	}
}

func (h *Hub) Publish(ctx context.Context, evt domain.Event) error {
	if len(evt.Recipients) == 0 {
		return nil
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	wire := wireEvent{Type: evt.Type, Recipients: evt.Recipients, Payload: payload}

	if h.redis == nil {
		h.deliver(wire)
		return nil
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.redis.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe blocks, relaying events from Redis to local clients until ctx is done.
func (h *Hub) Subscribe(ctx context.Context) {
	if h.redis == nil {
		return
	}

	pubsub := h.redis.Subscribe(ctx, h.channel)
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
			var wire wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				h.loggers.ErrorLogger.Error("failed to decode event from redis", utils.Err(err))
				continue
			}
			h.deliver(wire)
		}
	}
}

func (h *Hub) deliver(evt wireEvent) {
	data, err := json.Marshal(Envelope{Type: evt.Type, Payload: evt.Payload})
	if err != nil {
		h.loggers.ErrorLogger.Error("failed to encode envelope", utils.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range evt.Recipients {
		for client := range h.clients[userID] {
			select {
			case client.send <- data:
			default:
				h.loggers.InfoLogger.Info("client send buffer full, dropping event",
					"user_id", userID, "client_id", client.ID, "type", evt.Type)
			}
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
}

// IsOnline reports whether userID has at least one connection on this instance.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}
