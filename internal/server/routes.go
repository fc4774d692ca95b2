package server

import (
	"time"

	"knot/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/swagger"
)

// SetupRoutes mounts health checks, docs and the /api surface on app.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "Knot API Metrics Dashboard"}))
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/feature-flags", s.GetFeatureFlags)

	s.mountPublic(api)
	s.mountAuthenticated(api)
}

// mountPublic registers routes readable without a session.
func (s *Server) mountPublic(api fiber.Router) {
	api.Post("/auth/signup", middleware.RateLimit(s.redis, 5, 10*time.Minute, "signup"), s.Signup)
	api.Post("/auth/sessions", middleware.RateLimit(s.redis, 10, 5*time.Minute, "sessions"), s.CreateSession)

	feed := api.Group("/posts")
	feed.Get("/", s.GetPosts)
	feed.Get("/search", s.SearchPosts)
	feed.Get("/:id", s.GetPost)

	profiles := api.Group("/users")
	profiles.Get("/:id/posts", s.GetUserPosts)
	profiles.Get("/:id", s.GetUserProfile)

	blobs := api.Group("/storage/files")
	blobs.Get("/:id/view", s.ViewFile)
	blobs.Get("/:id/preview", s.GetFilePreview)
	blobs.Get("/:id", s.GetFileMetadata)

	api.Get("/avatars/initials", s.GetInitialsAvatar)

	// Browsers cannot set headers on a socket upgrade, so the token may
	// arrive as ?token=.
	api.Get("/ws", middleware.WebSocketAuthRequired(s.config.JWTSecret, s.accountService), s.FeedWebSocket())
}

// mountAuthenticated registers routes behind a bearer session.
func (s *Server) mountAuthenticated(api fiber.Router) {
	me := api.Group("", middleware.AuthRequired(s.config.JWTSecret, s.accountService))

	me.Get("/auth/me", s.GetMe)
	me.Delete("/auth/sessions/current", s.SignOut)

	me.Get("/users", s.GetUsers)
	me.Put("/users/me", s.UpdateMyProfile)

	me.Post("/storage/files", s.UploadFile)
	me.Delete("/storage/files/:id", s.DeleteFile)

	me.Post("/posts", middleware.RateLimit(s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	me.Put("/posts/:id/likes", s.ReplaceLikes)
	me.Post("/posts/:id/like", s.ToggleLike)
	me.Put("/posts/:id", s.UpdatePost)
	me.Delete("/posts/:id", s.DeletePost)

	me.Get("/saves", s.GetSaves)
	me.Post("/saves", s.CreateSave)
	me.Delete("/saves/:id", s.DeleteSave)
}
