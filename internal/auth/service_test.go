package auth

import "testing"

func TestService_LoginSucceedsWithCorrectPassword(t *testing.T) {
	svc := NewService("secret", "hunter2", 0)
	token, err := svc.Login("hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := svc.ValidateToken(token); err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
}

func TestService_LoginRejectsWrongPassword(t *testing.T) {
	svc := NewService("secret", "hunter2", 0)
	if _, err := svc.Login("wrong"); err != ErrWrongPassword {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
}

func TestService_DisabledWithoutPassword(t *testing.T) {
	svc := NewService("secret", "", 0)
	if svc.Enabled() {
		t.Fatal("expected service to be disabled without a password")
	}
}
