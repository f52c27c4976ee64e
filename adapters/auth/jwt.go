// Package auth issues and verifies the bearer tokens that identify the
// actor behind an API call. Tokens are stateless HS256 JWTs; the actor id
// travels in the subject claim.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/artpar/recordbase/ports"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the claims carried by an actor token.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the authenticated actor id.
func (c *Claims) Actor() string {
	return c.Subject
}

// TokenService signs and verifies actor tokens. Safe for concurrent use.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  ports.Clock
}

// NewTokenService creates a token service. A zero ttl means 24 hours.
func NewTokenService(secret, issuer string, ttl time.Duration, clock ports.Clock) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl, clock: clock}, nil
}

// Issue signs a token for actor. The display name is optional.
func (s *TokenService) Issue(actor, name string) (string, time.Time, error) {
	if actor == "" {
		return "", time.Time{}, errors.New("actor is required")
	}
	now := s.clock.Now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token and returns its claims. Every failure, including
// expiry and a foreign issuer, wraps ErrInvalidToken.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
