package service

import (
	"context"

	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/observability"
	"instafeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// FeedService aggregates the posts of the accounts a viewer follows.
type FeedService struct {
	follows  repository.FollowRepository
	accounts repository.AccountRepository
	posts    repository.PostRepository
	broker   *live.Broker
	// limit caps the feed length; zero means unbounded.
	limit int
}

// NewFeedService returns a new FeedService.
func NewFeedService(
	follows repository.FollowRepository,
	accounts repository.AccountRepository,
	posts repository.PostRepository,
	broker *live.Broker,
	limit int,
) *FeedService {
	return &FeedService{follows: follows, accounts: accounts, posts: posts, broker: broker, limit: limit}
}

// Feed returns posts by the viewer and everyone they follow, newest first.
func (s *FeedService) Feed(ctx context.Context, viewer *models.Viewer) (posts []models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "FeedService", "Feed", attribute.String("user_id", viewer.UID))
	defer func() { observability.EndSpan(span, err) }()

	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}

	usernames, err := s.followedUsernames(ctx, viewer)
	if err != nil {
		return nil, err
	}

	posts, err = s.posts.ListByAuthorUsernames(ctx, usernames, s.limit)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(posts)
	return posts, nil
}

// followedUsernames is the viewer's own username plus the usernames of every
// account they follow.
func (s *FeedService) followedUsernames(ctx context.Context, viewer *models.Viewer) ([]string, error) {
	ids, err := s.follows.ListFollowed(ctx, viewer.UID)
	if err != nil {
		return nil, err
	}

	usernames := []string{viewer.Username()}
	if len(ids) == 0 {
		return usernames, nil
	}

	followed, err := s.accounts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range followed {
		usernames = append(usernames, a.Username)
	}
	return usernames, nil
}

// WatchFeed redelivers the feed whenever any post or like changes, or the
// viewer follows or unfollows someone. The follow set is recomputed on every
// delivery.
func (s *FeedService) WatchFeed(ctx context.Context, viewer *models.Viewer) (*live.Subscription[[]models.Post], error) {
	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	return live.Watch(ctx, s.broker, live.Query[[]models.Post]{
		Kind: "feed",
		Match: live.AnyOf(
			live.OnTopic(live.TopicPosts),
			live.OnTopic(live.TopicLikes),
			live.OnKey(live.TopicFollows, viewer.UID),
		),
		Fetch: func(ctx context.Context) ([]models.Post, error) {
			return s.Feed(ctx, viewer)
		},
	})
}
