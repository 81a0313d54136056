package service

import (
	"context"
	"errors"
	"sync"

	"instafeed/internal/models"
	"instafeed/internal/observability"
)

// ActionState is the lifecycle of a user-initiated mutation.
type ActionState int

const (
	ActionIdle ActionState = iota
	ActionPending
	ActionCommitted
	ActionFailed
)

func (s ActionState) String() string {
	switch s {
	case ActionIdle:
		return "idle"
	case ActionPending:
		return "pending"
	case ActionCommitted:
		return "committed"
	case ActionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets the state render as its name in JSON.
func (s ActionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrActionStarted = errors.New("action already started")

// Action tracks one mutation from Idle through Pending to Committed or Failed.
// An Action runs at most once.
type Action struct {
	Name string

	mu    sync.Mutex
	state ActionState
	err   error
	done  chan struct{}
}

// NewAction returns an idle action.
func NewAction(name string) *Action {
	return &Action{Name: name, done: make(chan struct{})}
}

// State returns the current state.
func (a *Action) State() ActionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the failure cause once the action has failed.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done is closed when the action leaves Pending.
func (a *Action) Done() <-chan struct{} {
	return a.done
}

func (a *Action) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != ActionIdle {
		return ErrActionStarted
	}
	a.state = ActionPending
	return nil
}

func (a *Action) finish(err error) {
	a.mu.Lock()
	if err != nil {
		a.state = ActionFailed
		a.err = err
	} else {
		a.state = ActionCommitted
	}
	a.mu.Unlock()
	close(a.done)
}

// Run executes fn synchronously.
func (a *Action) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := a.begin(); err != nil {
		return err
	}
	err := fn(ctx)
	a.finish(err)
	return err
}

// Go executes fn in the background; onFail runs before the action is marked
// failed so that observers of Done see any compensation already applied.
func (a *Action) Go(ctx context.Context, fn func(context.Context) error, onFail func(error)) error {
	if err := a.begin(); err != nil {
		return err
	}
	go func() {
		err := fn(ctx)
		if err != nil && onFail != nil {
			onFail(err)
		}
		a.finish(err)
	}()
	return nil
}

// Wait blocks until the action finishes or ctx is done.
func (a *Action) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inFlight rejects a second identical action while the first is pending.
type inFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{keys: make(map[string]struct{})}
}

// acquire returns a release func, or a conflict error when key is taken.
func (g *inFlight) acquire(action, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.keys[key]; busy {
		observability.ActionsRejectedInFlight.WithLabelValues(action).Inc()
		return nil, models.NewConflictError("Action already in progress")
	}
	g.keys[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.keys, key)
		g.mu.Unlock()
	}, nil
}
