package server

import (
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetUserProfile handles GET /api/users/:id
// @Summary Get user profile
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetUserPosts handles GET /api/users/:id/posts
// @Summary Posts by user
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Router /users/{id}/posts [get]
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	page := parsePagination(c, service.DefaultPageSize)
	posts, err := s.postService.GetUserPosts(c.UserContext(), c.Params("id"), s.viewerID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetUsers handles GET /api/users
// @Summary List users
// @Description Lists users, or searches name and username when q is set
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search text"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Router /users [get]
func (s *Server) GetUsers(c *fiber.Ctx) error {
	page := parsePagination(c, service.DefaultPageSize)
	users, err := s.userService.SearchUsers(c.UserContext(), c.Query("q"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// UpdateMyProfile handles PUT /api/users/me
// @Summary Update profile
// @Description Updates name, username and bio; an attached file replaces the avatar
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param name formData string false "Name"
// @Param username formData string false "Username"
// @Param bio formData string false "Bio"
// @Param file formData file false "Avatar image"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/me [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name" form:"name"`
		Username string `json:"username" form:"username"`
		Bio      string `json:"bio" form:"bio"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	file, err := readUpload(c, "file", false)
	if err != nil {
		return respondError(c, err)
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:   middleware.UserID(c),
		Name:     req.Name,
		Username: req.Username,
		Bio:      req.Bio,
		File:     file,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}
