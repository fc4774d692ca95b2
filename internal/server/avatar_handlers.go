package server

import (
	"knot/internal/avatar"
	"knot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetInitialsAvatar handles GET /api/avatars/initials
// @Summary Initials avatar
// @Tags avatars
// @Produce image/png
// @Param name query string true "Display name"
// @Param width query int false "Width"
// @Param height query int false "Height"
// @Success 200 {file} binary
// @Router /avatars/initials [get]
func (s *Server) GetInitialsAvatar(c *fiber.Ctx) error {
	width, err := queryInt(c, "width")
	if err != nil {
		return respondError(c, err)
	}
	height, err := queryInt(c, "height")
	if err != nil {
		return respondError(c, err)
	}

	data, err := avatar.Render(c.Query("name"), width, height)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, previewCacheControl)
	return c.Send(data)
}
