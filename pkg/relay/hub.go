package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/notify"
)

const (
	// DefaultBuffer is how many undelivered events a slow session may queue
	// before new events for it are dropped.
	DefaultBuffer = 64

	subscribeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	writeTimeout     = 5 * time.Second
)

// Subscription receives the events of one guild, or of every guild when
// GuildID is zero.
type Subscription struct {
	GuildID int64
	events  chan notify.Event
	dropped atomic.Int64
}

// Events is closed when the subscription is removed from the hub.
func (s *Subscription) Events() <-chan notify.Event {
	return s.events
}

// Dropped counts events discarded because the buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(e notify.Event) bool {
	return s.GuildID == 0 || s.GuildID == e.GuildID
}

// Hub fans notifications out to connected sessions. It implements
// notify.Notifier and never blocks the caller on a slow session.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates a Hub whose subscriptions queue up to buffer events.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.Named("relay"),
	}
}

// Subscribe registers a new subscription.
func (h *Hub) Subscribe(guildID int64) *Subscription {
	s := &Subscription{GuildID: guildID, events: make(chan notify.Event, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.events)
	}
}

// Len is the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify queues event for every interested subscription.
func (h *Hub) Notify(_ context.Context, event notify.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if !s.wants(event) {
			continue
		}
		select {
		case s.events <- event:
		default:
			s.dropped.Add(1)
			h.logger.Warn("Relay session too slow, event dropped",
				zap.Int64("guild_id", event.GuildID),
				zap.String("type", string(event.Type)))
		}
	}
	return nil
}

var _ notify.Notifier = (*Hub)(nil)

// ServeConn runs one session: it waits for a subscribe message, confirms
// it, then writes events until the peer goes away or ctx ends.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	sub, err := h.handshake(ctx, conn)
	if err != nil {
		_ = writeJSON(ctx, conn, ErrorMessage{Type: TypeError, Message: err.Error()})
		_ = conn.Close(websocket.StatusPolicyViolation, "subscribe required")
		return err
	}
	defer h.Unsubscribe(sub)

	logger := h.logger.With(zap.Int64("guild_id", sub.GuildID))
	logger.Info("Relay session subscribed")

	// Nothing more is read after the handshake; CloseRead handles control
	// frames and cancels ctx when the peer disconnects.
	ctx = conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Relay session closed", zap.Int64("dropped", sub.Dropped()))
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeJSON(ctx, conn, EventMessage{Type: TypeEvent, Event: event}); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (h *Hub) handshake(ctx context.Context, conn *websocket.Conn) (*Subscription, error) {
	readCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return nil, fmt.Errorf("read subscribe: %w", err)
	}

	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}
	subMsg, ok := msg.(*SubscribeMessage)
	if !ok {
		return nil, fmt.Errorf("expected subscribe message, got %T", msg)
	}
	if subMsg.GuildID < 0 {
		return nil, fmt.Errorf("invalid guild id %d", subMsg.GuildID)
	}

	sub := h.Subscribe(subMsg.GuildID)
	if err := writeJSON(ctx, conn, SubscribedMessage{Type: TypeSubscribed, GuildID: sub.GuildID}); err != nil {
		h.Unsubscribe(sub)
		return nil, fmt.Errorf("confirm subscribe: %w", err)
	}
	return sub, nil
}

// writeJSON marshals a message to JSON and writes it to the WebSocket connection.
func writeJSON(ctx context.Context, conn *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
