package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accountRepoStub overrides Delete on a real repository.
type accountRepoStub struct {
	repository.AccountRepository
	deleteFn func(context.Context, string) error
}

func (s *accountRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func TestCreateUserAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.accounts.CreateUserAccount(ctx, NewUserInput{
		Name:     "Ana Lima",
		Username: "ana",
		Email:    "  Ana@Example.com ",
		Password: testPassword,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, user.AccountID)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "http://knot.test/api/avatars/initials?name=Ana+Lima", user.ImageURL)

	var acct models.Account
	require.NoError(t, f.db.First(&acct, "id = ?", user.AccountID).Error)
	assert.NotEqual(t, testPassword, acct.PasswordHash)
}

func TestCreateUserAccount_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   NewUserInput
	}{
		{"bad email", NewUserInput{Name: "Ana", Username: "ana", Email: "not-an-email", Password: testPassword}},
		{"weak password", NewUserInput{Name: "Ana", Username: "ana", Email: "ana@example.com", Password: "short"}},
		{"bad username", NewUserInput{Name: "Ana", Username: "_a", Email: "ana@example.com", Password: testPassword}},
		{"short name", NewUserInput{Name: "A", Username: "ana", Email: "ana@example.com", Password: testPassword}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.CreateUserAccount(context.Background(), tt.in)
			assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		})
	}
}

func TestCreateUserAccount_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ana")

	_, err := f.accounts.CreateUserAccount(context.Background(), NewUserInput{
		Name: "Other", Username: "other", Email: "ana@example.com", Password: testPassword,
	})
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
}

func TestCreateUserAccount_RemovesAccountWhenProfileFails(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ana")

	_, err := f.accounts.CreateUserAccount(context.Background(), NewUserInput{
		Name: "Second Ana", Username: "ana", Email: "second@example.com", Password: testPassword,
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	var count int64
	require.NoError(t, f.db.Model(&models.Account{}).Where("email = ?", "second@example.com").Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateUserAccount_ReturnsSaveErrorWhenRollbackFails(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ana")

	deleted := false
	f.accounts.accounts = &accountRepoStub{
		AccountRepository: f.accounts.accounts,
		deleteFn: func(context.Context, string) error {
			deleted = true
			return errors.New("db down")
		},
	}

	_, err := f.accounts.CreateUserAccount(context.Background(), NewUserInput{
		Name: "Second Ana", Username: "ana", Email: "second@example.com", Password: testPassword,
	})
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
	assert.True(t, deleted)
}

func TestSaveUserToDB_RequiresAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.SaveUserToDB(context.Background(), SaveUserInput{Name: "x"})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
}

func TestSignInAndSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signup(t, "ana")

	res, err := f.accounts.SignIn(ctx, "ANA@example.com", testPassword, SessionMeta{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Equal(t, "test", res.Session.UserAgent)

	claims, err := middleware.ParseToken(f.cfg.JWTSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.AccountID, claims["sub"])
	assert.Equal(t, res.Session.ID, claims["sid"])
	assert.Equal(t, res.Session.ID, claims["jti"])
	assert.Equal(t, user.ID, claims["uid"])

	principal, err := f.accounts.VerifySession(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, &middleware.Principal{AccountID: user.AccountID, SessionID: res.Session.ID, UserID: user.ID}, principal)

	current, err := f.accounts.GetCurrentUser(ctx, principal.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "ana", current.Username)

	require.NoError(t, f.accounts.SignOut(ctx, res.Session.ID))
	require.NoError(t, f.accounts.SignOut(ctx, res.Session.ID))

	_, err = f.accounts.VerifySession(ctx, res.Session.ID)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}

func TestSignIn_RejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ana")

	tests := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{"wrong password", "ana@example.com", "Wrong!Passw0rd", models.CodeUnauthorized},
		{"unknown email", "nobody@example.com", testPassword, models.CodeUnauthorized},
		{"malformed email", "nobody", testPassword, models.CodeValidation},
		{"missing password", "ana@example.com", "", models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.SignIn(context.Background(), tt.email, tt.password, SessionMeta{})
			assert.Equal(t, tt.code, models.ErrorCode(err))
		})
	}
}

func TestVerifySession_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "ana")

	res, err := f.accounts.SignIn(ctx, "ana@example.com", testPassword, SessionMeta{})
	require.NoError(t, err)

	f.accounts.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.accounts.VerifySession(ctx, res.Session.ID)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	purged, err := f.accounts.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestGetCurrentUser_NoAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.GetCurrentUser(context.Background(), "")
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}
