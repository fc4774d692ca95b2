package server

import (
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/notifications"
	"knot/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts
// @Summary Recent posts
// @Description Newest posts first
// @Tags posts
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c, service.DefaultPageSize)
	posts, err := s.postService.GetRecentPosts(c.UserContext(), s.viewerID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// SearchPosts handles GET /api/posts/search
// @Summary Search posts
// @Description Case-insensitive match on caption, location and tags
// @Tags posts
// @Produce json
// @Param q query string true "Search text"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/search [get]
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	page := parsePagination(c, service.DefaultPageSize)
	posts, err := s.postService.SearchPosts(c.UserContext(), c.Query("q"), s.viewerID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
// @Summary Get post
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPostByID(c.UserContext(), c.Params("id"), s.viewerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
// @Summary Create post
// @Description Upload an image and publish a post with it
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Param caption formData string false "Caption"
// @Param location formData string false "Location"
// @Param tags formData string false "Comma separated tags"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	file, err := readUpload(c, "file", true)
	if err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	post, err := s.postService.CreatePost(ctx, service.CreatePostInput{
		CreatorID: userID,
		Caption:   c.FormValue("caption"),
		Location:  c.FormValue("location"),
		Tags:      c.FormValue("tags"),
		File:      file,
	})
	if err != nil {
		return respondError(c, err)
	}

	s.publishPostEvent(ctx, userID, notifications.EventPostCreated, post)
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
// @Summary Update post
// @Description Replace caption, location and tags; an attached file replaces the image
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param file formData file false "Replacement image"
// @Param caption formData string false "Caption"
// @Param location formData string false "Location"
// @Param tags formData string false "Comma separated tags"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	file, err := readUpload(c, "file", false)
	if err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	post, err := s.postService.UpdatePost(ctx, service.UpdatePostInput{
		UserID:   userID,
		PostID:   c.Params("id"),
		Caption:  c.FormValue("caption"),
		Location: c.FormValue("location"),
		Tags:     c.FormValue("tags"),
		File:     file,
	})
	if err != nil {
		return respondError(c, err)
	}

	s.publishPostEvent(ctx, userID, notifications.EventPostUpdated, post)
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete post
// @Tags posts
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	ctx := c.UserContext()

	post, err := s.postService.DeletePost(ctx, userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	s.publishPostDeleted(ctx, userID, post.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

// ReplaceLikes handles PUT /api/posts/:id/likes
// @Summary Replace likes
// @Description Overwrite the set of users that like the post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param request body object{likes=[]string} true "User IDs"
// @Success 200 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/likes [put]
func (s *Server) ReplaceLikes(c *fiber.Ctx) error {
	var req struct {
		Likes []string `json:"likes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Likes == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("likes is required"))
	}

	userID := middleware.UserID(c)
	ctx := c.UserContext()
	post, err := s.postService.LikePost(ctx, userID, c.Params("id"), req.Likes)
	if err != nil {
		return respondError(c, err)
	}

	s.publishLikesUpdated(ctx, userID, post)
	return c.JSON(post)
}

// ToggleLike handles POST /api/posts/:id/like
// @Summary Toggle like
// @Description Like the post, or unlike it when already liked
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	ctx := c.UserContext()

	post, err := s.postService.ToggleLike(ctx, userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	s.publishLikesUpdated(ctx, userID, post)
	return c.JSON(post)
}
