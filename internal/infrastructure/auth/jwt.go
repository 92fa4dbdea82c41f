// Package auth issues and verifies the bearer tokens the HTTP API accepts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrEmptySecret is returned when no signing secret is configured
	ErrEmptySecret = errors.New("jwt secret is empty")
	// ErrInvalidToken covers every token that does not verify
	ErrInvalidToken = errors.New("invalid token")
)

// JWT signs and verifies HS256 tokens whose subject is the user id
type JWT struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWT creates a token service. An empty issuer skips the issuer check.
func NewJWT(secret, issuer string, ttl time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWT{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue mints a token for userID
func (j *JWT) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := j.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify implements port.TokenVerifier and returns the token subject
func (j *JWT) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

var _ port.TokenVerifier = (*JWT)(nil)
