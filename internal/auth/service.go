package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"
)

// Service validates the operator password and issues/checks JWTs.
type Service struct {
	jwt          *JWTService
	passwordHash [32]byte
	hasPassword  bool
}

// DefaultTokenExpiry is the operator token lifetime (spec.md §6: "7-day
// expiry, single role") used when the caller passes 0.
const DefaultTokenExpiry = 7 * 24 * time.Hour

// NewService builds a Service from a JWT secret, the operator's
// shared password, and the token lifetime (0 selects DefaultTokenExpiry).
// Either an empty secret or an empty password disables the login
// endpoint and bearer middleware alike.
func NewService(jwtSecret, password string, tokenExpiry time.Duration) *Service {
	if tokenExpiry == 0 {
		tokenExpiry = DefaultTokenExpiry
	}
	svc := &Service{jwt: NewJWTService(jwtSecret, tokenExpiry)}
	if password != "" {
		svc.passwordHash = sha256.Sum256([]byte(password))
		svc.hasPassword = true
	}
	return svc
}

// Enabled reports whether both a password and a JWT secret are configured.
func (s *Service) Enabled() bool {
	return s != nil && s.hasPassword && s.jwt.Enabled()
}

// Login checks the supplied password against the configured operator
// password in constant time and, on success, issues a bearer token.
func (s *Service) Login(password string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	given := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(given[:], s.passwordHash[:]) != 1 {
		return "", ErrWrongPassword
	}
	return s.jwt.Generate()
}

// ValidateToken checks a bearer token presented by a client.
func (s *Service) ValidateToken(token string) error {
	if s == nil || s.jwt == nil {
		return ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}
