package server

import (
	"knot/internal/middleware"
	"knot/internal/preview"

	"github.com/gofiber/fiber/v2"
)

const previewCacheControl = "public, max-age=86400"

// UploadFile handles POST /api/storage/files
// @Summary Upload image
// @Tags storage
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Success 201 {object} models.File
// @Failure 400 {object} models.ErrorResponse
// @Router /storage/files [post]
func (s *Server) UploadFile(c *fiber.Ctx) error {
	in, err := readUpload(c, "file", true)
	if err != nil {
		return respondError(c, err)
	}
	file, err := s.fileService.UploadFile(c.UserContext(), *in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(file)
}

// GetFileMetadata handles GET /api/storage/files/:id
// @Summary File metadata
// @Tags storage
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} models.File
// @Failure 404 {object} models.ErrorResponse
// @Router /storage/files/{id} [get]
func (s *Server) GetFileMetadata(c *fiber.Ctx) error {
	file, err := s.fileService.GetFile(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(file)
}

// ViewFile handles GET /api/storage/files/:id/view
// @Summary Original bytes
// @Tags storage
// @Produce octet-stream
// @Param id path string true "File ID"
// @Success 200 {file} binary
// @Failure 404 {object} models.ErrorResponse
// @Router /storage/files/{id}/view [get]
func (s *Server) ViewFile(c *fiber.Ctx) error {
	rc, file, err := s.fileService.OpenFile(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderCacheControl, previewCacheControl)
	// the body stream is closed by fasthttp once written
	return c.SendStream(rc, int(file.SizeBytes))
}

// GetFilePreview handles GET /api/storage/files/:id/preview
// @Summary Image preview
// @Description Resized and cropped variant of a stored image
// @Tags storage
// @Produce image/jpeg,image/png,image/webp
// @Param id path string true "File ID"
// @Param width query int false "Width"
// @Param height query int false "Height"
// @Param gravity query string false "Crop anchor"
// @Param quality query int false "Quality 0-100"
// @Param output query string false "jpg, png, gif or webp"
// @Success 200 {file} binary
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /storage/files/{id}/preview [get]
func (s *Server) GetFilePreview(c *fiber.Ctx) error {
	opts := preview.Options{
		Gravity: c.Query("gravity"),
		Output:  c.Query("output"),
	}
	var err error
	if opts.Width, err = queryInt(c, "width"); err != nil {
		return respondError(c, err)
	}
	if opts.Height, err = queryInt(c, "height"); err != nil {
		return respondError(c, err)
	}
	if opts.Quality, err = queryInt(c, "quality"); err != nil {
		return respondError(c, err)
	}

	data, contentType, err := s.fileService.GetFilePreview(c.UserContext(), c.Params("id"), opts, s.viewerID(c))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, previewCacheControl)
	return c.Send(data)
}

// DeleteFile handles DELETE /api/storage/files/:id
// @Summary Delete file
// @Tags storage
// @Security BearerAuth
// @Param id path string true "File ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /storage/files/{id} [delete]
func (s *Server) DeleteFile(c *fiber.Ctx) error {
	if err := s.fileService.DeleteOwnedFile(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
