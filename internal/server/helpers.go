package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit, offset := service.Page(c.QueryInt("limit", defaultLimit), c.QueryInt("offset", 0))
	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// statusForError maps an AppError code onto an HTTP status.
func statusForError(err error) int {
	switch models.ErrorCode(err) {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Errors without a code are
// treated as internal so their text never reaches the client.
func respondError(c *fiber.Ctx, err error) error {
	if models.ErrorCode(err) == "" {
		err = models.NewInternalError(err)
	}
	return models.RespondWithError(c, statusForError(err), err)
}

// viewerID resolves the caller on public routes. An absent or invalid token
// yields an anonymous viewer rather than an error.
func (s *Server) viewerID(c *fiber.Ctx) string {
	if id := middleware.UserID(c); id != "" {
		return id
	}
	header := c.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return ""
	}
	claims, err := middleware.ParseToken(s.config.JWTSecret, raw)
	if err != nil {
		return ""
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return ""
	}
	principal, err := s.accountService.VerifySession(c.UserContext(), sid)
	if err != nil {
		return ""
	}
	return principal.UserID
}

// readUpload loads the multipart file under field. A missing file returns
// nil unless required is set.
func readUpload(c *fiber.Ctx, field string, required bool) (*service.UploadInput, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if required {
			return nil, models.NewValidationError(fmt.Sprintf("%s is required", field))
		}
		return nil, nil
	}
	return uploadFromHeader(c.Locals("userID"), header)
}

func uploadFromHeader(owner any, header *multipart.FileHeader) (*service.UploadInput, error) {
	f, err := header.Open()
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}

	ownerID, _ := owner.(string)
	return &service.UploadInput{
		OwnerID:     ownerID,
		Filename:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, nil
}

// queryInt parses an optional integer query parameter. An empty value is 0.
func queryInt(c *fiber.Ctx, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}
