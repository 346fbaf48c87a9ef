// Package sse fans broadcast progress out to operators' event streams. Events
// go through Redis pub/sub so any instance can serve the stream.
package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/edupaila/community-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

// Event types
const (
	EventBroadcastStarted  = "broadcast_started"
	EventBroadcastProgress = "broadcast_progress"
	EventBroadcastComplete = "broadcast_complete"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

type Client struct {
	OperatorID string
	Events     chan Event
	Done       chan struct{}
}

// pubsub is the part of the redis client the broker needs.
type pubsub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Broker struct {
	redis   pubsub
	clients map[string]map[*Client]bool // operatorID -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	return newBroker(redisClient)
}

func newBroker(ps pubsub) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   ps,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(operatorID string) *Client {
	client := &Client{
		OperatorID: operatorID,
		Events:     make(chan Event, clientBufferSize),
		Done:       make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[operatorID] == nil {
		b.clients[operatorID] = make(map[*Client]bool)
		if b.redis != nil {
			go b.subscribeToRedis(operatorID)
		}
	}
	b.clients[operatorID][client] = true
	clientCount := len(b.clients[operatorID])
	b.mu.Unlock()

	log.Info().
		Str("operatorId", operatorID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.OperatorID]; ok {
		if _, present := clients[client]; !present {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.OperatorID)
		}

		log.Info().
			Str("operatorId", client.OperatorID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, operatorID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.BroadcastChannel(operatorID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(operatorID string) {
	channel := redisclient.BroadcastChannel(operatorID)
	ps := b.redis.Subscribe(b.ctx, channel)
	defer ps.Close()

	log.Debug().
		Str("operatorId", operatorID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := ps.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.deliver(operatorID, event)
		}
	}
}

func (b *Broker) deliver(operatorID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[operatorID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("operatorId", operatorID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(operatorID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[operatorID])
}
