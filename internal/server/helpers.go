package server

import (
	"instafeed/internal/middleware"
	"instafeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const viewerKey = "viewer"

// ViewerRequired resolves the authenticated uid to a Viewer and stores it in
// locals. Must be placed after AuthRequired.
func (s *Server) ViewerRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer, err := s.identity.Resolve(c.UserContext(), middleware.CallerID(c))
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		c.Locals(viewerKey, viewer)
		return c.Next()
	}
}

// OnboardedRequired rejects viewers that have not created an account yet.
// Must be placed after ViewerRequired.
func (s *Server) OnboardedRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer := currentViewer(c)
		if viewer == nil || !viewer.Onboarded {
			return models.RespondWithAppError(c, models.NewOnboardingRequiredError())
		}
		return c.Next()
	}
}

func currentViewer(c *fiber.Ctx) *models.Viewer {
	v, _ := c.Locals(viewerKey).(*models.Viewer)
	return v
}

// upgradeRequired answers plain HTTP requests to socket endpoints with 426.
func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// bind parses the JSON body into dst, answering 400 on failure. Callers
// return nil when it reports false.
func bind(c *fiber.Ctx, dst any) bool {
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return false
	}
	return true
}
