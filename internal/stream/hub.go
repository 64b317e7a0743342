package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans live status payloads out to websocket clients of a device and,
// when Redis is configured, mirrors them to other dashboards.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	local   map[string]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Device string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		local:   map[string]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(device string) *Client {
	client := &Client{
		Device: device,
		Send:   make(chan []byte, 16),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[device] == nil {
		h.clients[device] = map[*Client]struct{}{}
	}
	h.clients[device][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if deviceClients, ok := h.clients[client.Device]; ok {
		delete(deviceClients, client)
		if len(deviceClients) == 0 {
			delete(h.clients, client.Device)
		}
	}
	close(client.Send)
}

// Broadcast never blocks; slow clients miss updates.
func (h *Hub) Broadcast(device string, payload []byte) {
	h.mu.Lock()
	h.local[device] = struct{}{}
	h.mu.Unlock()
	h.fanOut(device, payload)

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(device), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) fanOut(device string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[device] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// subscribeRedis relays snapshots published by other relays; our own are
// already delivered locally.
func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "treadmill:*:status")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		device := deviceFromChannel(msg.Channel)
		if device == "" || h.isLocal(device) {
			continue
		}
		h.fanOut(device, []byte(msg.Payload))
	}
}

func (h *Hub) isLocal(device string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.local[device]
	return ok
}

func redisChannel(device string) string {
	return "treadmill:" + device + ":status"
}

func deviceFromChannel(ch string) string {
	// treadmill:{device}:status
	const prefix = "treadmill:"
	const suffix = ":status"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
