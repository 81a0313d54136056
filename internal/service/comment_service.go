package service

import (
	"context"
	"strings"

	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/repository"
	"instafeed/internal/validation"

	"github.com/google/uuid"
)

// CommentService provides comment and reply business logic.
type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	broker   *live.Broker
}

// NewCommentService returns a new CommentService.
func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository, broker *live.Broker) *CommentService {
	return &CommentService{comments: comments, posts: posts, broker: broker}
}

func (s *CommentService) publish(ctx context.Context, postID string) {
	s.broker.Publish(ctx, live.Event{Topic: live.TopicComments, Keys: []string{postID}})
}

// PostComment adds a top-level comment to a post.
func (s *CommentService) PostComment(ctx context.Context, viewer *models.Viewer, postID, text string) (*models.Comment, error) {
	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	if err := validation.ValidateText("comment", text, false); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:       uuid.NewString(),
		PostID:   postID,
		Username: viewer.Username(),
		Text:     strings.TrimSpace(text),
		Replies:  []models.Reply{},
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	s.publish(ctx, postID)
	return comment, nil
}

// PostReply appends a reply to a comment on the given post.
func (s *CommentService) PostReply(ctx context.Context, viewer *models.Viewer, postID, commentID, text string) (*models.Reply, error) {
	if !viewer.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	if err := validation.ValidateText("reply", text, false); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.PostID != postID {
		return nil, models.NewNotFoundError("Comment", commentID)
	}

	reply := &models.Reply{
		ID:        uuid.NewString(),
		CommentID: commentID,
		Username:  viewer.Username(),
		Text:      strings.TrimSpace(text),
	}
	if err := s.comments.AppendReply(ctx, reply); err != nil {
		return nil, err
	}

	s.publish(ctx, postID)
	return reply, nil
}

// DeleteComment removes a comment and its replies. The comment's author and
// the post's author may delete it.
func (s *CommentService) DeleteComment(ctx context.Context, viewer *models.Viewer, postID, commentID string) error {
	if !viewer.Onboarded {
		return models.NewOnboardingRequiredError()
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.PostID != postID {
		return models.NewNotFoundError("Comment", commentID)
	}

	if comment.Username != viewer.Username() {
		post, err := s.posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != viewer.UID {
			return models.NewForbiddenError("You can only delete your own comments")
		}
	}

	if err := s.comments.Delete(ctx, commentID); err != nil {
		return err
	}

	s.publish(ctx, postID)
	return nil
}

// Comments returns the post's comments newest first, replies in order.
func (s *CommentService) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	return s.comments.ListByPost(ctx, postID)
}

// WatchComments streams the full comment list of a post on every change
// under it.
func (s *CommentService) WatchComments(ctx context.Context, postID string) (*live.Subscription[[]models.Comment], error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	return live.Watch(ctx, s.broker, live.Query[[]models.Comment]{
		Kind:  "comments",
		Match: live.AnyOf(live.OnKey(live.TopicComments, postID), live.OnKey(live.TopicPosts, postID)),
		Fetch: func(ctx context.Context) ([]models.Comment, error) {
			return s.comments.ListByPost(ctx, postID)
		},
	})
}
