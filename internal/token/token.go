// Package token issues and verifies the signed, time-limited session tokens
// that identify an authenticated user. Tokens are stateless: validity is
// decided purely by signature and expiry, there is no server-side session
// table and no revocation.
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of an issued session token.
const DefaultTTL = 24 * time.Hour

var (
	// ErrExpired is returned when a token's expiry instant has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalidSignature is returned when a token's signature does not
	// verify against the configured secret.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMalformed is returned when a token cannot be parsed into the
	// expected structure.
	ErrMalformed = errors.New("malformed token")
)

// Subject is the authenticated identity resolved from a verified token.
// It lives for the duration of one request and is never persisted.
type Subject struct {
	UserID    int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service signs and verifies session tokens with a single process-wide
// secret, immutable after construction.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService constructs a Service from a signing secret. A zero ttl falls
// back to DefaultTTL; a negative ttl is kept as-is and issues tokens that
// are already expired.
func NewService(secret string, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue produces a signed token embedding the user ID and an expiry set to
// the service TTL from now.
func (s *Service) Issue(userID int) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token, returning the embedded Subject.
// Failures map to ErrExpired, ErrInvalidSignature or ErrMalformed.
func (s *Service) Verify(raw string) (Subject, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Subject{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSignature):
			return Subject{}, ErrInvalidSignature
		default:
			return Subject{}, ErrMalformed
		}
	}
	if !parsed.Valid {
		return Subject{}, ErrMalformed
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return Subject{}, ErrMalformed
	}

	subject := Subject{UserID: userID}
	if claims.IssuedAt != nil {
		subject.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Time
	}
	return subject, nil
}
