package service

import (
	"context"
	"strconv"
	"time"

	"instafeed/internal/imaging"
	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/observability"
	"instafeed/internal/repository"
	"instafeed/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const defaultSearchLimit = 20

// AccountService serves profiles, username search and avatar changes.
type AccountService struct {
	accounts  repository.AccountRepository
	follows   repository.FollowRepository
	posts     repository.PostRepository
	blobs     storage.BlobStore
	publisher live.Publisher
	imageOpts imaging.Options
	now       func() time.Time
}

// NewAccountService returns a new AccountService.
func NewAccountService(
	accounts repository.AccountRepository,
	follows repository.FollowRepository,
	posts repository.PostRepository,
	blobs storage.BlobStore,
	publisher live.Publisher,
	imageOpts imaging.Options,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		follows:   follows,
		posts:     posts,
		blobs:     blobs,
		publisher: publisher,
		imageOpts: imageOpts,
		now:       time.Now,
	}
}

// Profile returns the account page for username as seen by the viewer.
func (s *AccountService) Profile(ctx context.Context, viewer *models.Viewer, username string) (*models.Profile, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		Account: account,
		IsSelf:  account.ID == viewer.UID,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profile.Posts, err = s.posts.ListByAuthor(gctx, account.Username)
		return err
	})
	g.Go(func() (err error) {
		profile.PostCount, err = s.posts.CountByAuthor(gctx, account.Username)
		return err
	})
	if !profile.IsSelf {
		g.Go(func() (err error) {
			profile.IsFollowing, err = s.follows.IsFollowing(gctx, viewer.UID, account.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profile, nil
}

// SearchUsernames is a case-sensitive prefix search that never returns the
// viewer.
func (s *AccountService) SearchUsernames(ctx context.Context, viewer *models.Viewer, prefix string, limit int) ([]models.Account, error) {
	if limit <= 0 || limit > 50 {
		limit = defaultSearchLimit
	}
	return s.accounts.SearchPrefix(ctx, prefix, viewer.UID, limit)
}

// Contacts returns the accounts the viewer follows.
func (s *AccountService) Contacts(ctx context.Context, viewer *models.Viewer) ([]models.Account, error) {
	return s.follows.ListFollowedAccounts(ctx, viewer.UID)
}

// ChangeAvatar uploads a new avatar and points the account and all of its
// posts at it.
func (s *AccountService) ChangeAvatar(ctx context.Context, viewer *models.Viewer, image []byte) (account *models.Account, err error) {
	ctx, span := observability.StartSpan(ctx, "AccountService", "ChangeAvatar", attribute.String("user_id", viewer.UID))
	defer func() { observability.EndSpan(span, err) }()

	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}

	img, err := imaging.Normalize(image, s.imageOpts)
	if err != nil {
		return nil, imageError(err)
	}

	url, err := s.blobs.Put(ctx, storage.AvatarKey(viewer.UID), img.Data, imaging.ContentType)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	// The key is fixed per account, so the URL needs a version to bust caches.
	url += "?v=" + strconv.FormatInt(s.now().Unix(), 10)

	if err := s.accounts.UpdateAvatar(ctx, viewer.UID, url); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, live.Event{Topic: live.TopicAccounts, Keys: []string{viewer.UID}})
	s.publisher.Publish(ctx, live.Event{Topic: live.TopicPosts, Keys: []string{viewer.UID}})
	return s.accounts.GetByID(ctx, viewer.UID)
}
