package middleware

import (
	"context"
	"strings"

	"knot/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Token issuer and audience shared by signing and verification.
const (
	TokenIssuer   = "knot-api"
	TokenAudience = "knot-client"
)

// Principal identifies the caller behind a verified session.
type Principal struct {
	AccountID string
	SessionID string
	UserID    string
}

// SessionVerifier resolves a session id into a live Principal.
type SessionVerifier interface {
	VerifySession(ctx context.Context, sessionID string) (*Principal, error)
}

// AuthRequired is a middleware that enforces a bearer session token on protected routes.
func AuthRequired(secret string, verifier SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c.Get("Authorization"))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		return authenticate(c, secret, verifier, token)
	}
}

// WebSocketAuthRequired validates a token from the `token` query parameter,
// falling back to the Authorization header.
func WebSocketAuthRequired(secret string, verifier SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			var err error
			token, err = bearerToken(c.Get("Authorization"))
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized, err)
			}
		}
		return authenticate(c, secret, verifier, token)
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", models.NewUnauthorizedError("Authorization header required")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", models.NewUnauthorizedError("Invalid authorization header format")
	}
	return parts[1], nil
}

func authenticate(c *fiber.Ctx, secret string, verifier SessionVerifier, raw string) error {
	claims, err := ParseToken(secret, raw)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}

	sid, _ := claims["sid"].(string)
	if sid == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid token structure - missing session"))
	}

	principal, err := verifier.VerifySession(c.UserContext(), sid)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Session expired or revoked"))
	}
	if sub, _ := claims["sub"].(string); sub != principal.AccountID {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Token subject does not match session"))
	}

	c.Locals("accountID", principal.AccountID)
	c.Locals("sessionID", principal.SessionID)
	c.Locals("userID", principal.UserID)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, principal.UserID))

	return c.Next()
}

// ParseToken verifies an HS256 token's signature, expiry, issuer and audience.
func ParseToken(secret, raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewUnauthorizedError("Invalid token claims")
	}
	return claims, nil
}

// UserID returns the authenticated user id stored by AuthRequired.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

// AccountID returns the authenticated account id stored by AuthRequired.
func AccountID(c *fiber.Ctx) string {
	id, _ := c.Locals("accountID").(string)
	return id
}

// SessionID returns the authenticated session id stored by AuthRequired.
func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals("sessionID").(string)
	return id
}
