package server

import (
	"instafeed/internal/models"
	"instafeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers handles GET /api/users/search?q=&limit=
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	accounts, err := s.accounts.SearchUsernames(c.UserContext(), currentViewer(c), c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(accounts)
}

// GetProfile godoc
// @Summary Profile
// @Description Account, posts newest first and whether the viewer follows it
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} models.Profile
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{username} [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	profile, err := s.accounts.Profile(c.UserContext(), currentViewer(c), c.Params("username"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(profile)
}

// Follow handles POST /api/users/:id/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	if err := s.relationships.Follow(c.UserContext(), currentViewer(c).UID, c.Params("id")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"following": true})
}

// Unfollow handles DELETE /api/users/:id/follow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	if err := s.relationships.Unfollow(c.UserContext(), currentViewer(c).UID, c.Params("id")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"following": false})
}

// GetSuggestions handles GET /api/users/suggestions. It replaces the
// viewer's stored list, which later dismissals index into.
func (s *Server) GetSuggestions(c *fiber.Ctx) error {
	viewer := currentViewer(c)
	list, err := s.suggestions.Suggestions(c.UserContext(), viewer)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	items := list.Items()
	if err := s.suggestionLists.save(c.UserContext(), viewer.UID, items); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	return c.JSON(items)
}

// DismissSuggestion godoc
// @Summary Dismiss a suggestion
// @Description Removes the entry from the viewer's list and follows it; the entry returns if the follow fails
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{index=int} true "Position in the last list returned"
// @Success 200 {object} object{state=string,items=[]models.Account}
// @Failure 400 {object} models.ErrorResponse
// @Router /users/suggestions/dismiss [post]
func (s *Server) DismissSuggestion(c *fiber.Ctx) error {
	var req struct {
		Index int `json:"index"`
	}
	if !bind(c, &req) {
		return nil
	}

	viewer := currentViewer(c)
	list, err := s.suggestionList(c, viewer)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	action, err := list.Dismiss(c.UserContext(), req.Index)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	resp := fiber.Map{}
	if err := action.Wait(c.UserContext()); err != nil {
		resp["error"] = err.Error()
	}
	items := list.Items()
	if err := s.suggestionLists.save(c.UserContext(), viewer.UID, items); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	resp["state"] = action.State()
	resp["items"] = items
	return c.JSON(resp)
}

// suggestionList rebuilds the list the viewer was last shown, or computes a
// fresh one when it expired.
func (s *Server) suggestionList(c *fiber.Ctx, viewer *models.Viewer) (*service.SuggestionList, error) {
	items, ok, err := s.suggestionLists.load(c.UserContext(), viewer.UID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if ok {
		return s.suggestions.ListFrom(viewer, items), nil
	}
	return s.suggestions.Suggestions(c.UserContext(), viewer)
}

// GetContacts handles GET /api/contacts
func (s *Server) GetContacts(c *fiber.Ctx) error {
	contacts, err := s.accounts.Contacts(c.UserContext(), currentViewer(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(contacts)
}
