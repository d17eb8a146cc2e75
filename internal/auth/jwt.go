// Package auth provides session tokens, password hashing, and the bearer
// authentication middleware for the task manager API.
//
// SESSION MODEL:
// A token is an HS256 JWT whose subject is the user ID. A valid signature is
// necessary but not sufficient: the token must also still be in the user's
// active token set (checked by the Authenticator the middleware is given).
// That is what makes logout and logout-all effective without a blacklist.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const issuer = "task-manager"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration // 0 means tokens carry no exp claim
}

// NewTokenService creates a TokenService with the given secret.
// ttl of zero issues tokens without expiry; they stay valid until revoked.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must not be negative")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Generate signs a new token for userID.
//
// Every token gets a unique ID (jti), so two tokens issued for the same user
// within the same second are still different strings.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token that expires after d. A zero d omits
// the exp claim.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: user ID must not be empty")
	}

	now := time.Now()
	c := jwt.RegisteredClaims{
		ID:       xid.New().String(),
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   issuer,
	}
	if d != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(d))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature, issuer, and (when present) expiry of
// tokenStr and returns the user ID from its subject.
//
// When the service was built with a TTL, tokens without exp are rejected.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	}
	if s.ttl > 0 {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
