package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Wrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("upload: %w", NewInternalError(cause))

	assert.Equal(t, CodeInternal, ErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsNotFound(NewNotFoundError("Post", "abc")))
	assert.Equal(t, "Post with ID abc not found", NewNotFoundError("Post", "abc").Error())
	assert.Empty(t, ErrorCode(cause))
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantDetails string
	}{
		{"validation", NewValidationError("caption too long"), CodeValidation, ""},
		{"conflict with cause", &AppError{Code: CodeConflict, Message: "dup", Err: errors.New("23505")}, CodeConflict, "23505"},
		{"internal hides cause", NewInternalError(errors.New("secret dsn")), CodeInternal, ""},
		{"plain error", errors.New("plain"), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return RespondWithError(c, http.StatusTeapot, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusTeapot, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantDetails, body.Details)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}

func TestBeforeCreate_AssignsIDOnlyWhenEmpty(t *testing.T) {
	p := &Post{}
	require.NoError(t, p.BeforeCreate(nil))
	assert.Len(t, p.ID, 36)

	u := &User{ID: "fixed"}
	require.NoError(t, u.BeforeCreate(nil))
	assert.Equal(t, "fixed", u.ID)
}
