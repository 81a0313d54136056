package server

import (
	"instafeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMessages handles GET /api/conversations/:userId/messages
func (s *Server) GetMessages(c *fiber.Ctx) error {
	messages, err := s.messages.Conversation(c.UserContext(), currentViewer(c), c.Params("userId"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(messages)
}

// SendMessage godoc
// @Summary Send a direct message
// @Tags messages
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param userId path string true "Recipient uid"
// @Param request body object{text=string} true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /conversations/{userId}/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req textRequest
	if !bind(c, &req) {
		return nil
	}

	msg, err := s.messages.SendMessage(c.UserContext(), currentViewer(c), c.Params("userId"), req.Text)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}
