package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionIssuer     = errors.New("session validator: token issuer required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrInactiveSession          = errors.New("session validator: session is locked")
)

const bearerPrefix = "Bearer "

// SessionValidatorConfig describes how session tokens are located and checked.
type SessionValidatorConfig struct {
	Issuer     *TokenIssuer
	CookieName string
	// IsActive reports whether a session id still names the unlocked session.
	IsActive func(sessionID string) bool
}

// SessionValidator authenticates requests carrying a session token.
type SessionValidator struct {
	issuer     *TokenIssuer
	cookieName string
	isActive   func(string) bool
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Issuer == nil {
		return nil, ErrMissingSessionIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	isActive := cfg.IsActive
	if isActive == nil {
		isActive = func(string) bool { return true }
	}
	return &SessionValidator{
		issuer:     cfg.Issuer,
		cookieName: cookieName,
		isActive:   isActive,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (v *SessionValidator) ValidateToken(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	claims, err := v.issuer.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if !v.isActive(claims.SessionID) {
		return SessionClaims{}, ErrInactiveSession
	}
	return claims, nil
}

// ValidateRequest reads the session cookie, falling back to a bearer token, and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && cookie != nil && cookie.Value != "" {
		return v.ValidateToken(cookie.Value)
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, bearerPrefix) {
		return v.ValidateToken(strings.TrimPrefix(header, bearerPrefix))
	}
	return SessionClaims{}, ErrMissingSessionToken
}
