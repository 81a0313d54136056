package server

import (
	"context"

	"instafeed/internal/imaging"
	"instafeed/internal/models"
	"instafeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed godoc
// @Summary Feed
// @Description Posts by the viewer and everyone they follow, newest first
// @Tags posts
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Post
// @Router /feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	posts, err := s.feed.Feed(c.UserContext(), currentViewer(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// CreatePost godoc
// @Summary Publish a post
// @Description Multipart upload; the image is downscaled and stored as WebP
// @Tags posts
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image (jpeg, png, gif or webp)"
// @Param caption formData string false "Caption"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	content, err := s.readUpload(c, "image")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	var name string
	if fh, err := c.FormFile("image"); err == nil {
		name = fh.Filename
	}

	post, err := s.posts.Publish(c.UserContext(), currentViewer(c), service.PublishInput{
		Caption:   c.FormValue("caption"),
		ImageName: name,
		Image:     content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.posts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	if err := s.posts.Delete(c.UserContext(), currentViewer(c), c.Params("id")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSavedPosts handles GET /api/me/saved
func (s *Server) GetSavedPosts(c *fiber.Ctx) error {
	posts, err := s.posts.SavedPosts(c.UserContext(), currentViewer(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

type engagementOp func(ctx context.Context, viewer *models.Viewer, postID string) (*models.PostEngagement, error)

func engagement(c *fiber.Ctx, op engagementOp) error {
	state, err := op(c.UserContext(), currentViewer(c), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(state)
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	return engagement(c, s.engagement.Like)
}

// UnlikePost handles DELETE /api/posts/:id/like
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	return engagement(c, s.engagement.Unlike)
}

// ToggleLike godoc
// @Summary Toggle like
// @Description Flips the viewer's like; a concurrent toggle on the same post is rejected with 409
// @Tags posts
// @Security BearerAuth
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.PostEngagement
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /posts/{id}/like/toggle [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	return engagement(c, s.engagement.ToggleLike)
}

// ToggleSave handles POST /api/posts/:id/save/toggle
func (s *Server) ToggleSave(c *fiber.Ctx) error {
	return engagement(c, s.engagement.ToggleSave)
}

// GetEngagement handles GET /api/posts/:id/engagement
func (s *Server) GetEngagement(c *fiber.Ctx) error {
	return engagement(c, s.engagement.State)
}

// ServeMedia serves uploads held by the in-memory blob store.
func (s *Server) ServeMedia(c *fiber.Ctx) error {
	data, ok := s.media.Get(c.Params("*"))
	if !ok {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, imaging.ContentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Send(data)
}
