// Package middleware provides request logging, metrics, tracing, rate limiting
// and authentication middleware for the application.
package middleware

import (
	"context"
	"strings"

	"instafeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TokenVerifier resolves bearer tokens and single-use WebSocket tickets to the caller uid.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
	ConsumeTicket(ctx context.Context, ticket string) (string, error)
}

// AuthRequired rejects requests that carry no valid credential. WebSocket
// paths authenticate with a ticket because browsers cannot set headers on the
// upgrade request; everything else uses a Bearer token.
func AuthRequired(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws/") && c.Method() == fiber.MethodGet

		if ticket := c.Query("ticket"); ticket != "" && isWSPath {
			// A ticket is only redeemed by the upgrade it was issued for.
			if !websocket.IsWebSocketUpgrade(c) {
				return fiber.ErrUpgradeRequired
			}
			uid, err := v.ConsumeTicket(c.UserContext(), ticket)
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			setCaller(c, uid)
			return c.Next()
		}

		tokenString := bearerToken(c.Get("Authorization"))
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		uid, err := v.VerifyToken(c.UserContext(), tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		c.Locals("token", tokenString)
		setCaller(c, uid)
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func setCaller(c *fiber.Ctx, uid string) {
	c.Locals("userID", uid)
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, uid))
}

// CallerID returns the uid AuthRequired stored on the request.
func CallerID(c *fiber.Ctx) string {
	uid, _ := c.Locals("userID").(string)
	return uid
}
