package service

import (
	"context"

	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/observability"
	"instafeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// RelationshipService is the follow ledger.
type RelationshipService struct {
	follows    repository.FollowRepository
	engagement repository.EngagementRepository
	publisher  live.Publisher
}

// NewRelationshipService returns a new RelationshipService.
func NewRelationshipService(
	follows repository.FollowRepository,
	engagement repository.EngagementRepository,
	publisher live.Publisher,
) *RelationshipService {
	return &RelationshipService{follows: follows, engagement: engagement, publisher: publisher}
}

// Follow makes followerID follow followedID. Following twice is a no-op.
func (s *RelationshipService) Follow(ctx context.Context, followerID, followedID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "RelationshipService", "Follow",
		attribute.String("follower_id", followerID), attribute.String("followed_id", followedID))
	defer func() { observability.EndSpan(span, err) }()

	if followerID == followedID {
		return models.NewValidationError("Cannot follow yourself")
	}

	created, err := s.follows.Follow(ctx, followerID, followedID)
	observability.LedgerWrites.WithLabelValues("follows", "follow", observability.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	if created {
		s.publisher.Publish(ctx, live.Event{Topic: live.TopicFollows, Keys: []string{followerID, followedID}})
	}
	return nil
}

// Unfollow removes the edge. Unfollowing when not following is a no-op.
func (s *RelationshipService) Unfollow(ctx context.Context, followerID, followedID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "RelationshipService", "Unfollow",
		attribute.String("follower_id", followerID), attribute.String("followed_id", followedID))
	defer func() { observability.EndSpan(span, err) }()

	if followerID == followedID {
		return models.NewValidationError("Cannot unfollow yourself")
	}

	removed, err := s.follows.Unfollow(ctx, followerID, followedID)
	observability.LedgerWrites.WithLabelValues("follows", "unfollow", observability.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	if removed {
		s.publisher.Publish(ctx, live.Event{Topic: live.TopicFollows, Keys: []string{followerID, followedID}})
	}
	return nil
}

func (s *RelationshipService) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	return s.follows.IsFollowing(ctx, followerID, followedID)
}

// ListFollowed returns the ids followerID follows.
func (s *RelationshipService) ListFollowed(ctx context.Context, followerID string) ([]string, error) {
	return s.follows.ListFollowed(ctx, followerID)
}

// ReconcileReport counts the rows ReconcileCounters repaired.
type ReconcileReport struct {
	Accounts int64 `json:"accounts"`
	Posts    int64 `json:"posts"`
}

// ReconcileCounters recomputes follower, following and like counters from the
// edge tables.
func (s *RelationshipService) ReconcileCounters(ctx context.Context) (*ReconcileReport, error) {
	accounts, err := s.follows.ReconcileCounters(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := s.engagement.ReconcileLikes(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Accounts: accounts, Posts: posts}
	if accounts > 0 {
		s.publisher.Publish(ctx, live.Event{Topic: live.TopicAccounts})
	}
	if posts > 0 {
		s.publisher.Publish(ctx, live.Event{Topic: live.TopicLikes})
	}
	return report, nil
}
