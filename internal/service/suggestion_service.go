package service

import (
	"context"
	"slices"
	"sync"

	"instafeed/internal/models"
	"instafeed/internal/repository"
)

// Follower creates follow edges.
type Follower interface {
	Follow(ctx context.Context, followerID, followedID string) error
}

// SuggestionService proposes accounts the viewer does not follow yet.
type SuggestionService struct {
	accounts repository.AccountRepository
	follower Follower
	limit    int
}

// NewSuggestionService returns a new SuggestionService. limit caps how many
// suggestions are returned; zero means all of them.
func NewSuggestionService(
	accounts repository.AccountRepository,
	follower Follower,
	limit int,
) *SuggestionService {
	return &SuggestionService{accounts: accounts, follower: follower, limit: limit}
}

// Suggest returns every account except the viewer and those the viewer
// already follows, ordered by username.
func (s *SuggestionService) Suggest(ctx context.Context, viewer *models.Viewer) ([]models.Account, error) {
	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	return s.accounts.ListSuggestable(ctx, viewer.UID, s.limit)
}

// Suggestions returns a SuggestionList seeded from Suggest.
func (s *SuggestionService) Suggestions(ctx context.Context, viewer *models.Viewer) (*SuggestionList, error) {
	items, err := s.Suggest(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return s.ListFrom(viewer, items), nil
}

// ListFrom rebuilds a viewer's list from entries shown earlier.
func (s *SuggestionService) ListFrom(viewer *models.Viewer, items []models.Account) *SuggestionList {
	return &SuggestionList{viewerID: viewer.UID, follower: s.follower, items: items}
}

// SuggestionList is a viewer's local copy of their suggestions. Dismissing an
// entry removes it immediately and follows it in the background.
type SuggestionList struct {
	viewerID string
	follower Follower

	mu    sync.Mutex
	items []models.Account
}

// Items returns a copy of the current entries.
func (l *SuggestionList) Items() []models.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

// Len returns the number of entries.
func (l *SuggestionList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Dismiss removes the entry at index and follows it. If the follow fails the
// entry is put back where it was.
func (l *SuggestionList) Dismiss(ctx context.Context, index int) (*Action, error) {
	l.mu.Lock()
	if index < 0 || index >= len(l.items) {
		l.mu.Unlock()
		return nil, models.NewValidationError("Suggestion index out of range")
	}
	entry := l.items[index]
	l.items = slices.Delete(l.items, index, index+1)
	l.mu.Unlock()

	action := NewAction("dismiss_suggestion")
	err := action.Go(context.WithoutCancel(ctx),
		func(ctx context.Context) error {
			return l.follower.Follow(ctx, l.viewerID, entry.ID)
		},
		func(error) { l.restore(index, entry) },
	)
	return action, err
}

func (l *SuggestionList) restore(index int, entry models.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = slices.Insert(l.items, min(index, len(l.items)), entry)
}
