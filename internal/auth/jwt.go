// Package auth implements the single shared-bearer-credential model
// spec.md's Non-goals call for ("no multi-user access control beyond
// a single shared bearer credential"): an operator password unlocks a
// long-lived JWT, validated by bearer middleware in front of the HTTP
// API and the realtime websocket upgrade. Narrowed from the teacher's
// internal/auth (multi-user JWT + API key + OAuth + cookie sessions)
// down to just JWT issuance/validation for the one operator role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("auth: disabled, JWT_SECRET is empty")
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	ErrWrongPassword = errors.New("auth: incorrect password")
)

// subject is the fixed JWT subject for the one operator role this
// system recognizes.
const subject = "operator"

// Claims is the JWT payload. There is exactly one role, so nothing
// beyond the registered claims carries identity.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService signs and validates operator tokens with HS256.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a JWT helper. An empty secret disables auth
// entirely (Generate/Validate both return ErrAuthDisabled), matching
// the teacher's "auth is opt-in via config" posture. Callers default
// expiry themselves (spec.md's 7-day operator token lives in config
// defaults, not here) — a zero or negative expiry issues a token that
// is already expired, useful for tests.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a secret was configured.
func (s *JWTService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Generate issues a signed token for the operator role.
func (s *JWTService) Generate() (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and checks a bearer token, returning nil if it's a
// valid, unexpired operator token.
func (s *JWTService) Validate(token string) error {
	if !s.Enabled() {
		return ErrAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject != subject {
		return ErrInvalidToken
	}
	return nil
}
