package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"instafeed/internal/imaging"
	"instafeed/internal/live"
	"instafeed/internal/middleware"
	"instafeed/internal/models"
	"instafeed/internal/observability"
	"instafeed/internal/repository"
	"instafeed/internal/storage"
	"instafeed/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// PublishInput is a new post as uploaded by its author.
type PublishInput struct {
	Caption   string
	ImageName string
	Image     []byte
}

// PostService provides post business logic.
type PostService struct {
	posts      repository.PostRepository
	engagement repository.EngagementRepository
	blobs      storage.BlobStore
	publisher  live.Publisher
	imageOpts  imaging.Options
}

// NewPostService returns a new PostService.
func NewPostService(
	posts repository.PostRepository,
	engagement repository.EngagementRepository,
	blobs storage.BlobStore,
	publisher live.Publisher,
	imageOpts imaging.Options,
) *PostService {
	return &PostService{
		posts:      posts,
		engagement: engagement,
		blobs:      blobs,
		publisher:  publisher,
		imageOpts:  imageOpts,
	}
}

// imageError maps imaging failures to client errors.
func imageError(err error) error {
	switch {
	case errors.Is(err, imaging.ErrEmpty),
		errors.Is(err, imaging.ErrTooLarge),
		errors.Is(err, imaging.ErrInvalidType),
		errors.Is(err, imaging.ErrUndecodable):
		return models.NewValidationError(err.Error())
	default:
		return models.NewInternalError(err)
	}
}

// Publish normalizes the image, uploads it and creates the post.
func (s *PostService) Publish(ctx context.Context, viewer *models.Viewer, in PublishInput) (post *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "PostService", "Publish", attribute.String("user_id", viewer.UID))
	defer func() { observability.EndSpan(span, err) }()

	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	if err := validation.ValidateText("caption", in.Caption, true); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	img, err := imaging.Normalize(in.Image, s.imageOpts)
	if err != nil {
		return nil, imageError(err)
	}

	id := uuid.NewString()
	key := storage.PostImageKey(id, imaging.ObjectName(in.ImageName))
	url, err := s.blobs.Put(ctx, key, img.Data, imaging.ContentType)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	post = &models.Post{
		ID:              id,
		AuthorID:        viewer.UID,
		AuthorUsername:  viewer.Account.Username,
		AuthorAvatarURL: viewer.Account.AvatarURL,
		ImageURL:        url,
		ImageKey:        key,
		Caption:         strings.TrimSpace(in.Caption),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.deleteBlob(ctx, key)
		return nil, err
	}

	s.publisher.Publish(ctx, live.Event{Topic: live.TopicPosts, Keys: []string{post.ID, viewer.UID}})
	return post, nil
}

// Delete removes the post with its likes, saves and comments. Only the
// author may delete.
func (s *PostService) Delete(ctx context.Context, viewer *models.Viewer, postID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "PostService", "Delete", attribute.String("post_id", postID))
	defer func() { observability.EndSpan(span, err) }()

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != viewer.UID {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	s.deleteBlob(ctx, post.ImageKey)

	s.publisher.Publish(ctx, live.Event{Topic: live.TopicPosts, Keys: []string{post.ID, viewer.UID}})
	return nil
}

func (s *PostService) deleteBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to delete blob",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns a single post.
func (s *PostService) Get(ctx context.Context, postID string) (*models.Post, error) {
	return s.posts.GetByID(ctx, postID)
}

// ListByAuthor returns the author's posts newest first and how many there are.
func (s *PostService) ListByAuthor(ctx context.Context, username string) ([]models.Post, int64, error) {
	posts, err := s.posts.ListByAuthor(ctx, username)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.posts.CountByAuthor(ctx, username)
	if err != nil {
		return nil, 0, err
	}
	return posts, count, nil
}

// SavedPosts returns the posts the viewer bookmarked, newest first.
func (s *PostService) SavedPosts(ctx context.Context, viewer *models.Viewer) ([]models.Post, error) {
	ids, err := s.engagement.SavedPostIDs(ctx, viewer.UID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Post{}, nil
	}

	posts, err := s.posts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(posts)
	return posts, nil
}

// sortNewestFirst orders posts by creation time, newest first. Equal
// timestamps keep their relative order.
func sortNewestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
