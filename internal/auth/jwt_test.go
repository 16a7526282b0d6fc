package auth

import (
	"testing"
	"time"
)

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", time.Hour)
	token, err := svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := svc.Validate(token); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestJWTService_ValidateRejectsWrongSecret(t *testing.T) {
	svc := NewJWTService("secret", time.Hour)
	token, _ := svc.Generate()

	other := NewJWTService("different-secret", time.Hour)
	if err := other.Validate(token); err == nil {
		t.Fatal("expected validation to fail with a different secret")
	}
}

func TestJWTService_ValidateRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("secret", -time.Hour)
	token, err := svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := svc.Validate(token); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestJWTService_DisabledWithoutSecret(t *testing.T) {
	svc := NewJWTService("", time.Hour)
	if svc.Enabled() {
		t.Fatal("expected service to be disabled without a secret")
	}
	if _, err := svc.Generate(); err != ErrAuthDisabled {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}
