package services

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/velora-crm/outreach-backend/internal/pkg/errors"
)

func newTestAuth(t *testing.T) AuthService {
	t.Helper()
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("OPERATOR_USERNAME", "operator")
	t.Setenv("OPERATOR_PASSWORD", "hunter2")
	t.Setenv("OPERATOR_PASSWORD_HASH", "")

	auth, err := NewAuthService(newTestLogger(t))
	if err != nil {
		t.Fatalf("init auth: %v", err)
	}
	return auth
}

func TestLoginAndVerifyRoundtrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.Login(context.Background(), "operator", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a signed token")
	}

	subject, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "operator" {
		t.Fatalf("subject = %q, want operator", subject)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.Login(ctx, "operator", "wrong"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("bad password: err = %v, want unauthorized", err)
	}
	if _, err := auth.Login(ctx, "intruder", "hunter2"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("bad username: err = %v, want unauthorized", err)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.VerifyToken("not.a.token"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("garbage token: err = %v, want unauthorized", err)
	}
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("OPERATOR_PASSWORD", "hunter2")
	if _, err := NewAuthService(newTestLogger(t)); err == nil {
		t.Fatal("missing JWT secret must fail startup")
	}
}
