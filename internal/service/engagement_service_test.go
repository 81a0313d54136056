package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"instafeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engagementRepoStub implements repository.EngagementRepository with only the
// calls a test cares about overridden.
type engagementRepoStub struct {
	toggleLikeFn func(context.Context, string, string, string) (bool, int, error)
	stateFn      func(context.Context, string, string) (*models.PostEngagement, error)
}

func (s *engagementRepoStub) Like(context.Context, string, string, string) (int, error) {
	return 0, nil
}
func (s *engagementRepoStub) Unlike(context.Context, string, string) (int, error) { return 0, nil }
func (s *engagementRepoStub) ToggleLike(ctx context.Context, postID, userID, username string) (bool, int, error) {
	return s.toggleLikeFn(ctx, postID, userID, username)
}
func (s *engagementRepoStub) Save(context.Context, string, string, string) error { return nil }
func (s *engagementRepoStub) Unsave(context.Context, string, string) error        { return nil }
func (s *engagementRepoStub) ToggleSave(context.Context, string, string, string) (bool, error) {
	return false, nil
}
func (s *engagementRepoStub) State(ctx context.Context, postID, userID string) (*models.PostEngagement, error) {
	return s.stateFn(ctx, postID, userID)
}
func (s *engagementRepoStub) SavedPostIDs(context.Context, string) ([]string, error) {
	return nil, nil
}
func (s *engagementRepoStub) ReconcileLikes(context.Context) (int64, error) { return 0, nil }

func TestEngagementService_DoubleToggleRestoresState(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := NewEngagementService(e.engagement, e.broker)
	ctx := context.Background()
	author := e.viewer(t, "author")
	fan := e.viewer(t, "fan")
	post := e.post(t, author, time.Now())

	before, err := svc.State(ctx, fan, post.ID)
	require.NoError(t, err)

	liked, err := svc.ToggleLike(ctx, fan, post.ID)
	require.NoError(t, err)
	assert.True(t, liked.Liked)
	assert.Equal(t, before.LikesCount+1, liked.LikesCount)

	after, err := svc.ToggleLike(ctx, fan, post.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	saved, err := svc.ToggleSave(ctx, fan, post.ID)
	require.NoError(t, err)
	assert.True(t, saved.Saved)
	unsaved, err := svc.ToggleSave(ctx, fan, post.ID)
	require.NoError(t, err)
	assert.False(t, unsaved.Saved)
}

func TestEngagementService_LikeUnlikeIdempotent(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := NewEngagementService(e.engagement, e.broker)
	ctx := context.Background()
	author := e.viewer(t, "author")
	fan := e.viewer(t, "fan")
	post := e.post(t, author, time.Now())

	for i := 0; i < 2; i++ {
		state, err := svc.Like(ctx, fan, post.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, state.LikesCount)
	}
	for i := 0; i < 2; i++ {
		state, err := svc.Unlike(ctx, fan, post.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, state.LikesCount)
		assert.False(t, state.Liked)
	}
}

func TestEngagementService_Rejects(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := NewEngagementService(e.engagement, e.broker)
	fan := e.viewer(t, "fan")

	_, err := svc.ToggleLike(context.Background(), fan, "missing")
	assert.Equal(t, models.CodeNotFound, appCode(err))

	_, err = svc.ToggleLike(context.Background(), &models.Viewer{UID: "new"}, "missing")
	assert.Equal(t, models.CodeOnboardingRequired, appCode(err))
}

func TestEngagementService_InFlightGuard(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	repo := &engagementRepoStub{
		toggleLikeFn: func(context.Context, string, string, string) (bool, int, error) {
			once.Do(func() { close(started) })
			<-release
			return true, 1, nil
		},
		stateFn: func(_ context.Context, postID, _ string) (*models.PostEngagement, error) {
			return &models.PostEngagement{PostID: postID, Liked: true, LikesCount: 1}, nil
		},
	}
	e := newTestEnv(t)
	svc := NewEngagementService(repo, e.broker)
	viewer := &models.Viewer{UID: "u1", Onboarded: true, Account: &models.Account{ID: "u1", Username: "u1"}}
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ToggleLike(ctx, viewer, "p1")
		firstErr <- err
	}()
	<-started

	_, err := svc.ToggleLike(ctx, viewer, "p1")
	assert.Equal(t, models.CodeConflict, appCode(err))

	// A different post is not blocked.
	other := make(chan error, 1)
	go func() {
		_, err := svc.ToggleLike(ctx, viewer, "p2")
		other <- err
	}()

	close(release)
	require.NoError(t, <-firstErr)
	require.NoError(t, <-other)

	_, err = svc.ToggleLike(ctx, viewer, "p1")
	assert.NoError(t, err, "guard is released after the first action finishes")
}

func TestEngagementService_WatchPost(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	svc := NewEngagementService(e.engagement, e.broker)
	ctx := context.Background()
	author := e.viewer(t, "author")
	fan := e.viewer(t, "fan")
	other := e.viewer(t, "other")
	post := e.post(t, author, time.Now())

	sub, err := svc.WatchPost(ctx, fan, post.ID)
	require.NoError(t, err)
	defer sub.Cancel()

	initial := next(t, sub)
	assert.Equal(t, post.ID, initial.PostID)
	assert.Zero(t, initial.LikesCount)

	_, err = svc.ToggleLike(ctx, other, post.ID)
	require.NoError(t, err)
	state := waitFor(t, sub, func(s models.PostEngagement) bool { return s.LikesCount == 1 })
	assert.False(t, state.Liked, "another user's like does not mark the viewer's state")

	_, err = svc.ToggleSave(ctx, fan, post.ID)
	require.NoError(t, err)
	waitFor(t, sub, func(s models.PostEngagement) bool { return s.Saved })
}
