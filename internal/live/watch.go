package live

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"instafeed/internal/middleware"
	"instafeed/internal/observability"
)

// Query describes a standing query: which events make it stale and how to
// recompute its result.
type Query[T any] struct {
	// Kind labels metrics and logs, e.g. "feed" or "comments".
	Kind  string
	Match Matcher
	Fetch func(ctx context.Context) (T, error)
}

// Subscription delivers successive snapshots of a Query. Only the newest
// undelivered snapshot is kept, so a slow reader skips intermediate states
// but always converges on the latest one.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Watch registers q with the broker, performs the initial fetch and returns a
// subscription whose Updates channel already holds that first snapshot. The
// subscription ends when ctx is done or Cancel is called; either way Updates
// is closed.
func Watch[T any](ctx context.Context, b *Broker, q Query[T]) (*Subscription[T], error) {
	// Register before fetching so a change racing the first read is not lost.
	id, signal := b.subscribe(q.Match)

	initial, err := q.Fetch(ctx)
	if err != nil {
		b.unsubscribe(id)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.updates <- initial

	observability.LiveSubscriptions.WithLabelValues(q.Kind).Inc()
	go s.run(ctx, b, id, signal, q)
	return s, nil
}

// Updates returns the snapshot stream. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the subscription and waits for it to release its resources.
// It is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription[T]) run(ctx context.Context, b *Broker, id uint64, signal <-chan struct{}, q Query[T]) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.ErrorContext(ctx, "panic in live subscription",
				slog.String("kind", q.Kind), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
		b.unsubscribe(id)
		observability.LiveSubscriptions.WithLabelValues(q.Kind).Dec()
		close(s.updates)
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-signal:
			snapshot, err := q.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				observability.LiveRefetchErrors.WithLabelValues(q.Kind).Inc()
				middleware.Logger.WarnContext(ctx, "live subscription refresh failed",
					slog.String("kind", q.Kind), slog.String("error", err.Error()))
				continue
			}
			s.offer(snapshot)
		}
	}
}

// offer replaces any undelivered snapshot with v. run is the only sender, so
// the loop terminates after at most one drain.
func (s *Subscription[T]) offer(v T) {
	for {
		select {
		case s.updates <- v:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
