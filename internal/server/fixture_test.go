package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"knot/internal/config"
	"knot/internal/service"
	"knot/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

const testPassword = "Str0ng!Passw0rd"

type testEnv struct {
	srv    *Server
	app    *fiber.App
	bucket *testutil.MemoryBucket
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                    "test",
		JWTSecret:              "server-test-secret-with-enough-length-1",
		SessionTTLHours:        1,
		AllowedOrigins:         "http://localhost:5173",
		PublicBaseURL:          "http://knot.test",
		FeatureFlags:           "realtime_feed=on,webp_previews=on",
		UploadMaxSizeMB:        1,
		PreviewWidth:           2000,
		PreviewHeight:          2000,
		PreviewGravity:         "top",
		PreviewQuality:         100,
		PreviewCacheTTLMinutes: 5,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	bucket := testutil.NewMemoryBucket()
	srv, err := NewServerWithDeps(testConfig(), testutil.NewTestDB(t), nil, bucket)
	require.NoError(t, err)

	return &testEnv{srv: srv, app: srv.NewApp(), bucket: bucket}
}

type authedUser struct {
	ID    string
	Token string
}

func (e *testEnv) signup(t *testing.T, username string) authedUser {
	t.Helper()
	resp := e.do(t, jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name":     "User " + username,
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	}, ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body service.SignInResult
	decode(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return authedUser{ID: body.User.ID, Token: body.Token}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func jsonRequest(t *testing.T, method, path string, body any, token string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// multipartRequest builds a form with fields and, when content is non-nil, a file part named "file".
func multipartRequest(t *testing.T, method, path string, fields map[string]string, content []byte, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if content != nil {
		part, err := writer.CreateFormFile("file", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}
