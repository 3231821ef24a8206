package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

const socketSendBuffer = 64

// Socket is one websocket connection registered with the hub. User is nil for
// guests.
type Socket struct {
	ID   string
	User *models.User

	send     chan []byte
	mu       sync.RWMutex
	channels map[string]struct{}
}

// Outbound returns the frames queued for this socket. It is closed on Unregister.
func (s *Socket) Outbound() <-chan []byte {
	return s.send
}

func (s *Socket) Subscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

// Hub is the per-instance registry of sockets and their channel subscriptions.
// Events reach it through the Redis relay and are fanned out locally.
type Hub struct {
	mu        sync.RWMutex
	sockets   map[string]*Socket
	byChannel map[string]map[string]*Socket
	log       *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		sockets:   make(map[string]*Socket),
		byChannel: make(map[string]map[string]*Socket),
		log:       log,
	}
}

// Register creates a socket with a fresh socket id.
func (h *Hub) Register(user *models.User) *Socket {
	s := &Socket{
		ID:       uuid.NewString(),
		User:     user,
		send:     make(chan []byte, socketSendBuffer),
		channels: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.sockets[s.ID] = s
	h.mu.Unlock()
	return s
}

// Unregister drops the socket and all its subscriptions and closes its outbound queue.
func (h *Hub) Unregister(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sockets[socketID]
	if !ok {
		return
	}
	s.mu.Lock()
	for ch := range s.channels {
		h.removeLocked(ch, socketID)
	}
	s.channels = map[string]struct{}{}
	s.mu.Unlock()
	delete(h.sockets, socketID)
	close(s.send)
}

func (h *Hub) Subscribe(socketID, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sockets[socketID]
	if !ok {
		return false
	}
	set, ok := h.byChannel[channel]
	if !ok {
		set = make(map[string]*Socket)
		h.byChannel[channel] = set
	}
	set[socketID] = s
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	s.mu.Unlock()
	return true
}

func (h *Hub) Unsubscribe(socketID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sockets[socketID]; ok {
		s.mu.Lock()
		delete(s.channels, channel)
		s.mu.Unlock()
	}
	h.removeLocked(channel, socketID)
}

func (h *Hub) removeLocked(channel, socketID string) {
	set, ok := h.byChannel[channel]
	if !ok {
		return
	}
	delete(set, socketID)
	if len(set) == 0 {
		delete(h.byChannel, channel)
	}
}

// Deliver queues a frame for every local socket subscribed to channel and returns
// how many sockets accepted it. A socket whose queue is full is unregistered: its
// client reconnects and reloads history rather than missing frames silently.
func (h *Hub) Deliver(channel string, frame []byte) int {
	h.mu.RLock()
	delivered := 0
	var slow []string
	for id, s := range h.byChannel[channel] {
		select {
		case s.send <- frame:
			delivered++
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.log.Warn("socket send queue full, closing socket",
			zap.String("socket", id),
			zap.String("channel", channel))
		h.Unregister(id)
	}
	return delivered
}

// DeliverEnvelope delivers a transport frame and applies what it implies for local
// subscriptions: after ChatMemberKicked is queued, the kicked user's sockets leave
// the chat channel.
func (h *Hub) DeliverEnvelope(channel string, frame []byte) int {
	delivered := h.Deliver(channel, frame)

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event != EventChatMemberKicked {
		return delivered
	}
	var kicked ChatMemberKicked
	if err := json.Unmarshal(env.Data, &kicked); err != nil || kicked.User.PublicID == "" {
		return delivered
	}
	if n := h.UnsubscribeUser(channel, kicked.User.PublicID); n > 0 {
		h.log.Info("kicked member unsubscribed",
			zap.String("channel", channel),
			zap.String("user", kicked.User.PublicID),
			zap.Int("sockets", n))
	}
	return delivered
}

// UnsubscribeUser removes every local socket of the user from channel and returns
// how many were removed.
func (h *Hub) UnsubscribeUser(channel, userPublicID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, s := range h.byChannel[channel] {
		if s.User == nil || s.User.PublicID != userPublicID {
			continue
		}
		s.mu.Lock()
		delete(s.channels, channel)
		s.mu.Unlock()
		h.removeLocked(channel, id)
		removed++
	}
	return removed
}

// SendTo queues a frame for one socket.
func (h *Hub) SendTo(socketID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sockets[socketID]
	if !ok {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// RedisRelay feeds the hub from Redis pub/sub. One relay runs per instance.
type RedisRelay struct {
	rdb *redis.Client
	hub *Hub
	log *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, log: log}
}

// Run blocks until ctx is done, resubscribing with capped backoff when Redis drops.
func (r *RedisRelay) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	pattern := RedisChannelPrefix + "*"
	for {
		err := r.relay(ctx, pattern, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		r.log.Warn("realtime relay error", zap.Error(err), zap.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context, pattern string, b backoff.BackOff) error {
	pubsub := r.rdb.PSubscribe(ctx, pattern)
	defer pubsub.Close()
	// ReceiveMessage does not return on ctx cancellation; closing the subscription does.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer stop()

	// Receive the subscription confirmation before reporting success.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("realtime relay subscribed", zap.String("pattern", pattern))
	b.Reset()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		channel := strings.TrimPrefix(msg.Channel, RedisChannelPrefix)
		r.hub.DeliverEnvelope(channel, []byte(msg.Payload))
	}
}
