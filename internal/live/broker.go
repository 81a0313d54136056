package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"instafeed/internal/middleware"
	"instafeed/internal/observability"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "live:"

// Publisher is the write side of the broker, used by the ledgers.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type subscriber struct {
	match  Matcher
	signal chan struct{}
}

// Broker fans change events out to subscriptions. With a Redis client and
// after Start, events travel through Redis pub/sub so that every instance
// sees every change; otherwise they are dispatched in-process.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64

	rdb    *redis.Client
	remote atomic.Bool
}

// NewBroker creates a broker. rdb may be nil.
func NewBroker(rdb *redis.Client) *Broker {
	return &Broker{
		subs: make(map[uint64]*subscriber),
		rdb:  rdb,
	}
}

// Start subscribes to the Redis event channels and relays them until ctx is
// done. It returns once the subscription is confirmed. Without Redis it is a
// no-op.
func (b *Broker) Start(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}

	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe live events: %w", err)
	}
	ch := sub.Channel()
	b.remote.Store(true)

	go func() {
		defer func() {
			b.remote.Store(false)
			_ = sub.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.relay(msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}

func (b *Broker) relay(channel, payload string) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic relaying live event",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		middleware.Logger.Warn("dropping malformed live event",
			slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if ev.Topic == "" {
		ev.Topic = Topic(strings.TrimPrefix(channel, channelPrefix))
	}
	b.dispatch(ev)
}

// Publish announces a change. It never blocks on subscribers. A Redis
// failure degrades to in-process delivery.
func (b *Broker) Publish(ctx context.Context, ev Event) {
	observability.LiveEventsPublished.WithLabelValues(string(ev.Topic)).Inc()

	if b.remote.Load() {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = b.rdb.Publish(ctx, channelPrefix+string(ev.Topic), payload).Err()
		}
		if err == nil {
			return
		}
		middleware.Logger.WarnContext(ctx, "redis publish failed, delivering locally",
			slog.String("topic", string(ev.Topic)), slog.String("error", err.Error()))
	}
	b.dispatch(ev)
}

func (b *Broker) dispatch(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.match(ev) {
			continue
		}
		// One pending signal is enough: the subscriber refetches everything.
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
}

func (b *Broker) subscribe(match Matcher) (uint64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &subscriber{match: match, signal: make(chan struct{}, 1)}
	b.subs[b.nextID] = s
	return b.nextID, s.signal
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Subscribers returns the number of registered subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
