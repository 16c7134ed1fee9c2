package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/reviewflow/internal/infrastructure/redis"
	"github.com/yourorg/reviewflow/pkg/cache"
)

// Event is a change notification emitted after a committed write. Table
// and tenant identify what changed; clients and the in-process cache react
// by refetching.
type Event struct {
	Table    string    `json:"table"`
	Action   string    `json:"action"` // insert, update, delete
	TenantID string    `json:"tenant_id"`
	RowID    string    `json:"row_id,omitempty"`
	At       time.Time `json:"at"`
}

const channelPrefix = "events:"

// Publisher emits change notifications. Services publish after their
// repository write returns; a lost notification only delays a refetch.
type Publisher interface {
	Notify(ctx context.Context, event Event)
}

// Notifier relays change events through Redis pub/sub: one channel per
// tenant, pattern-subscribed by this process to invalidate cached reads
// and fan out to websocket clients.
type Notifier struct {
	redis  *redis.Client
	cache  *cache.Cache
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[int]chan Event
	nextID    int
}

// NewNotifier creates a notifier over the shared Redis client.
func NewNotifier(redisClient *redis.Client, c *cache.Cache, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		redis:     redisClient,
		cache:     c,
		logger:    logger,
		listeners: map[int]chan Event{},
	}
}

// Notify publishes an event on the tenant's channel. Best-effort: a
// publish failure is logged, never returned to the write path.
func (n *Notifier) Notify(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}
	if err := n.redis.Publish(ctx, channelPrefix+event.TenantID, payload); err != nil {
		n.logger.Warn("failed to publish change event",
			slog.String("table", event.Table),
			slog.String("tenant_id", event.TenantID),
			slog.String("error", err.Error()),
		)
	}
}

// Start consumes the pattern subscription until ctx is cancelled. Each
// received event invalidates the matching cache prefix and is fanned out
// to registered listeners. Reconnection is handled by go-redis.
func (n *Notifier) Start(ctx context.Context) {
	sub := n.redis.Subscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	n.logger.Info("realtime notifier started")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("realtime notifier stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				n.logger.Warn("dropping malformed event", slog.String("error", err.Error()))
				continue
			}
			if event.TenantID == "" {
				event.TenantID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			n.invalidate(event)
			n.fanout(event)
		}
	}
}

// invalidate drops cached reads made stale by the event.
func (n *Notifier) invalidate(event Event) {
	if n.cache == nil {
		return
	}
	n.cache.Invalidate(event.Table + ":" + event.TenantID)
}

// Listen registers a listener receiving every event. The returned cancel
// func must be called when the consumer goes away; slow consumers drop
// events rather than block the notifier.
func (n *Notifier) Listen() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	ch := make(chan Event, 64)
	n.listeners[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.listeners[id]; ok {
			delete(n.listeners, id)
			close(c)
		}
	}
	return ch, cancel
}

func (n *Notifier) fanout(event Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}
