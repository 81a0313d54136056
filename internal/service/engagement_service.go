package service

import (
	"context"

	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/observability"
	"instafeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// EngagementService is the like and save ledger.
type EngagementService struct {
	engagement repository.EngagementRepository
	broker     *live.Broker
	inFlight   *inFlight
}

// NewEngagementService returns a new EngagementService.
func NewEngagementService(engagement repository.EngagementRepository, broker *live.Broker) *EngagementService {
	return &EngagementService{
		engagement: engagement,
		broker:     broker,
		inFlight:   newInFlight(),
	}
}

// guarded runs fn as an Action, refusing to start while the same action on
// the same post by the same viewer is still pending.
func (s *EngagementService) guarded(ctx context.Context, name string, viewer *models.Viewer, postID string, fn func(context.Context) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "EngagementService", name,
		attribute.String("post_id", postID), attribute.String("user_id", viewer.UID))
	defer func() { observability.EndSpan(span, err) }()

	if !viewer.Onboarded {
		return models.NewOnboardingRequiredError()
	}

	release, err := s.inFlight.acquire(name, name+":"+postID+":"+viewer.UID)
	if err != nil {
		return err
	}
	defer release()

	err = NewAction(name).Run(ctx, fn)
	observability.LedgerWrites.WithLabelValues("engagement", name, observability.Outcome(err)).Inc()
	return err
}

// ToggleLike flips the viewer's like and returns the resulting state.
func (s *EngagementService) ToggleLike(ctx context.Context, viewer *models.Viewer, postID string) (*models.PostEngagement, error) {
	err := s.guarded(ctx, "toggle_like", viewer, postID, func(ctx context.Context) error {
		_, _, err := s.engagement.ToggleLike(ctx, postID, viewer.UID, viewer.Username())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broker.Publish(ctx, live.Event{Topic: live.TopicLikes, Keys: []string{postID}})
	return s.engagement.State(ctx, postID, viewer.UID)
}

// ToggleSave flips the viewer's bookmark and returns the resulting state.
func (s *EngagementService) ToggleSave(ctx context.Context, viewer *models.Viewer, postID string) (*models.PostEngagement, error) {
	err := s.guarded(ctx, "toggle_save", viewer, postID, func(ctx context.Context) error {
		_, err := s.engagement.ToggleSave(ctx, postID, viewer.UID, viewer.Username())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broker.Publish(ctx, live.Event{Topic: live.TopicSaves, Keys: []string{postID}})
	return s.engagement.State(ctx, postID, viewer.UID)
}

// Like is the idempotent form of ToggleLike.
func (s *EngagementService) Like(ctx context.Context, viewer *models.Viewer, postID string) (*models.PostEngagement, error) {
	err := s.guarded(ctx, "like", viewer, postID, func(ctx context.Context) error {
		_, err := s.engagement.Like(ctx, postID, viewer.UID, viewer.Username())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broker.Publish(ctx, live.Event{Topic: live.TopicLikes, Keys: []string{postID}})
	return s.engagement.State(ctx, postID, viewer.UID)
}

// Unlike is the idempotent inverse of Like.
func (s *EngagementService) Unlike(ctx context.Context, viewer *models.Viewer, postID string) (*models.PostEngagement, error) {
	err := s.guarded(ctx, "unlike", viewer, postID, func(ctx context.Context) error {
		_, err := s.engagement.Unlike(ctx, postID, viewer.UID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broker.Publish(ctx, live.Event{Topic: live.TopicLikes, Keys: []string{postID}})
	return s.engagement.State(ctx, postID, viewer.UID)
}

// State returns the viewer's engagement with the post.
func (s *EngagementService) State(ctx context.Context, viewer *models.Viewer, postID string) (*models.PostEngagement, error) {
	return s.engagement.State(ctx, postID, viewer.UID)
}

// WatchPost streams the viewer's engagement with the post whenever anyone
// likes, saves or changes it.
func (s *EngagementService) WatchPost(ctx context.Context, viewer *models.Viewer, postID string) (*live.Subscription[models.PostEngagement], error) {
	return live.Watch(ctx, s.broker, live.Query[models.PostEngagement]{
		Kind: "post",
		Match: live.AnyOf(
			live.OnKey(live.TopicLikes, postID),
			live.OnKey(live.TopicSaves, postID),
			live.OnKey(live.TopicPosts, postID),
		),
		Fetch: func(ctx context.Context) (models.PostEngagement, error) {
			state, err := s.engagement.State(ctx, postID, viewer.UID)
			if err != nil {
				return models.PostEngagement{}, err
			}
			return *state, nil
		},
	})
}
