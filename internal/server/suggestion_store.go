package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"instafeed/internal/cache"
	"instafeed/internal/models"

	"github.com/redis/go-redis/v9"
)

// suggestionStore keeps the suggestion list each viewer was last shown so a
// dismissal indexes into what the client saw. Lists expire after ttl. With
// Redis they are shared across instances; without it they stay in process.
type suggestionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	local map[string]storedSuggestions
}

type storedSuggestions struct {
	items   []models.Account
	expires time.Time
}

func newSuggestionStore(rdb *redis.Client, ttl time.Duration) *suggestionStore {
	return &suggestionStore{
		rdb:   rdb,
		ttl:   ttl,
		now:   time.Now,
		local: make(map[string]storedSuggestions),
	}
}

func (st *suggestionStore) save(ctx context.Context, viewerID string, items []models.Account) error {
	if st.rdb != nil {
		b, err := json.Marshal(items)
		if err != nil {
			return err
		}
		return st.rdb.Set(ctx, cache.SuggestionsKey(viewerID), b, st.ttl).Err()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	for id, entry := range st.local {
		if !now.Before(entry.expires) {
			delete(st.local, id)
		}
	}
	st.local[viewerID] = storedSuggestions{items: items, expires: now.Add(st.ttl)}
	return nil
}

// load returns the stored list, or ok=false when there is none or it expired.
func (st *suggestionStore) load(ctx context.Context, viewerID string) (items []models.Account, ok bool, err error) {
	if st.rdb != nil {
		b, err := st.rdb.Get(ctx, cache.SuggestionsKey(viewerID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, false, err
		}
		return items, true, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	entry, found := st.local[viewerID]
	if !found {
		return nil, false, nil
	}
	if !st.now().Before(entry.expires) {
		delete(st.local, viewerID)
		return nil, false, nil
	}
	return entry.items, true, nil
}

func (st *suggestionStore) size() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.local)
}
