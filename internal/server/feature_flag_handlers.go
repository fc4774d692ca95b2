package server

import "github.com/gofiber/fiber/v2"

type featureFlagsResponse struct {
	Raw       map[string]string `json:"raw"`
	Evaluated map[string]bool   `json:"evaluated"`
}

// GetFeatureFlags lists the configured flags and how they evaluate for the
// caller. Percentage rollouts need a signed-in caller to come out on.
// @Summary Feature flags
// @Tags meta
// @Produce json
// @Param Authorization header string false "Optional bearer token"
// @Success 200 {object} featureFlagsResponse
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "private, no-store")
	return c.JSON(featureFlagsResponse{
		Raw:       s.featureFlags.Raw(),
		Evaluated: s.featureFlags.Snapshot(s.viewerID(c)),
	})
}
