package server

import (
	"io"

	"instafeed/internal/cache"
	"instafeed/internal/middleware"
	"instafeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp handles user registration
// @Summary Sign up
// @Description Create a credential; the account itself is created by onboarding
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Sign-up request"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) SignUp(c *fiber.Ctx) error {
	var req credentialsRequest
	if !bind(c, &req) {
		return nil
	}

	res, err := s.identity.SignUp(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// SignIn handles user login
// @Summary Sign in
// @Description Authenticate with email and password and return a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/signin [post]
func (s *Server) SignIn(c *fiber.Ctx) error {
	var req credentialsRequest
	if !bind(c, &req) {
		return nil
	}

	res, err := s.identity.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(res)
}

// SignOut revokes the bearer token
// @Summary Sign out
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/signout [post]
func (s *Server) SignOut(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	if err := s.identity.SignOut(c.UserContext(), token); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMe returns the resolved viewer
// @Summary Current viewer
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Viewer
// @Router /me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	return c.JSON(currentViewer(c))
}

// Onboard creates the viewer's public account
// @Summary Onboard
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{username=string,full_name=string} true "Profile"
// @Success 201 {object} models.Account
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /me/onboard [post]
func (s *Server) Onboard(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
	}
	if !bind(c, &req) {
		return nil
	}

	account, err := s.identity.Onboard(c.UserContext(), currentViewer(c), req.Username, req.FullName)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

// UsernameAvailable handles GET /api/users/available?username=
func (s *Server) UsernameAvailable(c *fiber.Ctx) error {
	username := c.Query("username")
	available, err := s.identity.UsernameAvailable(c.UserContext(), username)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"username": username, "available": available})
}

// ChangeAvatar handles PUT /api/me/avatar (multipart field "image")
func (s *Server) ChangeAvatar(c *fiber.Ctx) error {
	content, err := s.readUpload(c, "image")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	account, err := s.accounts.ChangeAvatar(c.UserContext(), currentViewer(c), content)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(account)
}

// IssueWSTicket issues a short-lived single-use ticket for opening a socket
// @Summary WebSocket ticket
// @Description Browsers cannot set headers on the upgrade request, so sockets authenticate with ?ticket=
// @Tags live
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := s.tokens.IssueTicket(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"ticket": ticket, "expires_in": int(cache.WSTicketTTL.Seconds())})
}

// readUpload reads a multipart file field, bounded by the upload limit.
func (s *Server) readUpload(c *fiber.Ctx, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, models.NewValidationError("No image uploaded")
	}
	if s.maxUploadBytes > 0 && fh.Size > s.maxUploadBytes {
		return nil, models.NewValidationError("Image is too large")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return content, nil
}
