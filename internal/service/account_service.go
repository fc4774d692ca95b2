package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"knot/internal/avatar"
	"knot/internal/config"
	"knot/internal/middleware"
	"knot/internal/models"
	"knot/internal/observability"
	"knot/internal/repository"
	"knot/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AccountService owns sign-up, sessions and the account/profile pair.
type AccountService struct {
	accounts   repository.AccountRepository
	sessions   repository.SessionRepository
	users      repository.UserRepository
	jwtSecret  string
	sessionTTL time.Duration
	baseURL    string
	bcryptCost int
	now        func() time.Time
}

type NewUserInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

type SaveUserInput struct {
	AccountID string
	Name      string
	Email     string
	Username  string
	ImageURL  string
}

// SessionMeta describes the client that opened a session.
type SessionMeta struct {
	UserAgent string
	IP        string
}

type SignInResult struct {
	Token   string          `json:"token"`
	Session *models.Session `json:"session"`
	User    *models.User    `json:"user"`
}

func NewAccountService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	users repository.UserRepository,
	cfg *config.Config,
) *AccountService {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AccountService{
		accounts:   accounts,
		sessions:   sessions,
		users:      users,
		jwtSecret:  cfg.JWTSecret,
		sessionTTL: ttl,
		baseURL:    cfg.PublicBaseURL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// CreateUserAccount creates the login account and its profile document.
// If the profile cannot be saved the account is removed again.
func (s *AccountService) CreateUserAccount(ctx context.Context, in NewUserInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)

	if err := validation.ValidateSignup(validation.Signup{
		Name:     in.Name,
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	}); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	account := &models.Account{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	user, err := s.SaveUserToDB(ctx, SaveUserInput{
		AccountID: account.ID,
		Name:      in.Name,
		Email:     in.Email,
		Username:  in.Username,
		ImageURL:  avatar.InitialsURL(s.baseURL, in.Name),
	})
	if err != nil {
		s.rollbackAccount(ctx, account.ID)
		return nil, err
	}
	return user, nil
}

func (s *AccountService) rollbackAccount(ctx context.Context, accountID string) {
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		observability.ObserveCompensation("account_create", observability.ResultError)
		middleware.Logger.ErrorContext(ctx, "account rollback failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.ObserveCompensation("account_create", observability.ResultOK)
}

// SaveUserToDB persists a profile document for an existing account.
func (s *AccountService) SaveUserToDB(ctx context.Context, in SaveUserInput) (*models.User, error) {
	if in.AccountID == "" {
		return nil, models.NewValidationError("account id is required")
	}
	user := &models.User{
		AccountID: in.AccountID,
		Name:      in.Name,
		Email:     in.Email,
		Username:  in.Username,
		ImageURL:  in.ImageURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SignIn checks the credentials and opens a new session.
func (s *AccountService) SignIn(ctx context.Context, email, password string, meta SessionMeta) (*SignInResult, error) {
	email = normalizeEmail(email)
	if err := validation.ValidateSignin(email, password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("Invalid credentials")
		}
		return nil, err
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); cmpErr != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	user, err := s.users.GetByAccountID(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.Session{
		AccountID: account.ID,
		UserID:    user.ID,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	token, err := s.signToken(session, now)
	if err != nil {
		_ = s.sessions.Delete(ctx, session.ID)
		return nil, models.NewInternalError(err)
	}

	return &SignInResult{Token: token, Session: session, User: user}, nil
}

func (s *AccountService) signToken(session *models.Session, now time.Time) (string, error) {
	if s.jwtSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}

	claims := jwt.MapClaims{
		"sub": session.AccountID,
		"sid": session.ID,
		"uid": session.UserID,
		"iss": middleware.TokenIssuer,
		"aud": middleware.TokenAudience,
		"exp": session.ExpiresAt.Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": session.ID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// GetCurrentUser returns the profile bound to the account.
func (s *AccountService) GetCurrentUser(ctx context.Context, accountID string) (*models.User, error) {
	if accountID == "" {
		return nil, models.NewUnauthorizedError("No active session")
	}
	return s.users.GetByAccountID(ctx, accountID)
}

// SignOut revokes the session. Signing out twice is not an error.
func (s *AccountService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// VerifySession implements middleware.SessionVerifier.
func (s *AccountService) VerifySession(ctx context.Context, sessionID string) (*middleware.Principal, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("Session not found")
		}
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, models.NewUnauthorizedError("Session expired")
	}
	return &middleware.Principal{
		AccountID: session.AccountID,
		SessionID: session.ID,
		UserID:    session.UserID,
	}, nil
}

// PurgeExpiredSessions deletes sessions whose expiry has passed.
func (s *AccountService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().UTC())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ middleware.SessionVerifier = (*AccountService)(nil)
