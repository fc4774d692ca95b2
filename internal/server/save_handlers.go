package server

import (
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetSaves handles GET /api/saves
// @Summary My saved posts
// @Tags saves
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Save
// @Router /saves [get]
func (s *Server) GetSaves(c *fiber.Ctx) error {
	page := parsePagination(c, service.DefaultPageSize)
	saves, err := s.saveService.ListSaved(c.UserContext(), middleware.UserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(saves)
}

// CreateSave handles POST /api/saves
// @Summary Save post
// @Tags saves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{post_id=string} true "Post to save"
// @Success 201 {object} models.Save
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /saves [post]
func (s *Server) CreateSave(c *fiber.Ctx) error {
	var req struct {
		PostID string `json:"post_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	userID := middleware.UserID(c)
	ctx := c.UserContext()
	save, err := s.saveService.SavePost(ctx, userID, req.PostID)
	if err != nil {
		return respondError(c, err)
	}

	s.publishSaveEvent(ctx, userID, save, true)
	return c.Status(fiber.StatusCreated).JSON(save)
}

// DeleteSave handles DELETE /api/saves/:id
// @Summary Remove saved post
// @Tags saves
// @Security BearerAuth
// @Param id path string true "Save ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /saves/{id} [delete]
func (s *Server) DeleteSave(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	ctx := c.UserContext()

	save, err := s.saveService.DeleteSavedPost(ctx, userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	s.publishSaveEvent(ctx, userID, save, false)
	return c.SendStatus(fiber.StatusNoContent)
}
