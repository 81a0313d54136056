package server

import (
	"instafeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

type textRequest struct {
	Text string `json:"text"`
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	comments, err := s.comments.Comments(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(comments)
}

// CreateComment godoc
// @Summary Comment on a post
// @Tags comments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param request body object{text=string} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req textRequest
	if !bind(c, &req) {
		return nil
	}

	comment, err := s.comments.PostComment(c.UserContext(), currentViewer(c), c.Params("id"), req.Text)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// CreateReply handles POST /api/posts/:id/comments/:commentId/replies
func (s *Server) CreateReply(c *fiber.Ctx) error {
	var req textRequest
	if !bind(c, &req) {
		return nil
	}

	reply, err := s.comments.PostReply(c.UserContext(), currentViewer(c), c.Params("id"), c.Params("commentId"), req.Text)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId. Allowed
// for the comment's author and the post's author.
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	if err := s.comments.DeleteComment(c.UserContext(), currentViewer(c), c.Params("id"), c.Params("commentId")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
