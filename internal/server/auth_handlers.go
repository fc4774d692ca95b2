package server

import (
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new account with its profile and open a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{name=string,username=string,email=string,password=string} true "Signup request"
// @Success 201 {object} service.SignInResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx := c.UserContext()
	if _, err := s.accountService.CreateUserAccount(ctx, service.NewUserInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}); err != nil {
		return respondError(c, err)
	}

	result, err := s.accountService.SignIn(ctx, req.Email, req.Password, sessionMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// CreateSession handles POST /api/auth/sessions
// @Summary Sign in
// @Description Open a session with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 201 {object} service.SignInResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/sessions [post]
func (s *Server) CreateSession(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Email == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email and password are required"))
	}

	result, err := s.accountService.SignIn(c.UserContext(), req.Email, req.Password, sessionMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetMe handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, err := s.accountService.GetCurrentUser(c.UserContext(), middleware.AccountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// SignOut handles DELETE /api/auth/sessions/current
// @Summary Sign out
// @Description Revoke the session behind the bearer token
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /auth/sessions/current [delete]
func (s *Server) SignOut(c *fiber.Ctx) error {
	if err := s.accountService.SignOut(c.UserContext(), middleware.SessionID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func sessionMeta(c *fiber.Ctx) service.SessionMeta {
	return service.SessionMeta{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IP:        c.IP(),
	}
}
