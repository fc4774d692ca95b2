package server

import (
	"net/http"
	"testing"

	"knot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	t.Run("creates account and session", func(t *testing.T) {
		u := env.signup(t, "alice")
		assert.NotEmpty(t, u.ID)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
			"name":     "Alice Again",
			"username": "alice2",
			"email":    "alice@example.com",
			"password": testPassword,
		}, ""))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("weak password rejected", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
			"name":     "Bob",
			"username": "bob",
			"email":    "bob@example.com",
			"password": "short",
		}, ""))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body models.ErrorResponse
		decode(t, resp, &body)
		assert.Equal(t, models.CodeValidation, body.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/auth/signup", nil, "")
		req.Header.Set("Content-Type", "application/json")
		resp := env.do(t, req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "carol")

	tests := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"valid credentials", "carol@example.com", testPassword, http.StatusCreated},
		{"email is case-insensitive", "Carol@Example.com", testPassword, http.StatusCreated},
		{"wrong password", "carol@example.com", "Wr0ng!Password", http.StatusUnauthorized},
		{"unknown account", "nobody@example.com", testPassword, http.StatusUnauthorized},
		{"missing fields", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/auth/sessions", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			}, ""))
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGetMeAndSignOut(t *testing.T) {
	env := newTestEnv(t)
	u := env.signup(t, "dave")

	resp := env.do(t, jsonRequest(t, http.MethodGet, "/api/auth/me", nil, u.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.User
	decode(t, resp, &me)
	assert.Equal(t, u.ID, me.ID)
	assert.Equal(t, "dave", me.Username)
	assert.Contains(t, me.ImageURL, "/api/avatars/initials?name=")

	resp = env.do(t, jsonRequest(t, http.MethodDelete, "/api/auth/sessions/current", nil, u.Token))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, jsonRequest(t, http.MethodGet, "/api/auth/me", nil, u.Token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Token abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodGet, "/api/auth/me", nil, "")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := env.do(t, req)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}
