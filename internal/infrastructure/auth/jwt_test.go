package auth

import (
	"context"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken("user-1", "user@example.com", []string{"operator"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Error("token must expire in the future")
	}

	principal, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if principal.UserID != "user-1" {
		t.Errorf("user id = %s", principal.UserID)
	}
	if principal.Email != "user@example.com" {
		t.Errorf("email = %s", principal.Email)
	}
	if len(principal.Roles) != 1 || principal.Roles[0] != "operator" {
		t.Errorf("roles = %v", principal.Roles)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("secret-a"))
	verifier := NewJWTService(DefaultJWTConfig("secret-b"))

	token, _, err := issuer.GenerateAccessToken("user-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.GenerateAccessToken("user-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expired token must not validate")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage must not validate")
	}
}

func TestPrincipalContext(t *testing.T) {
	if got := PrincipalFromContext(context.Background()); got != nil {
		t.Errorf("empty context principal = %v, want nil", got)
	}

	p := &Principal{UserID: "user-1"}
	ctx := WithPrincipal(context.Background(), p)
	if got := PrincipalFromContext(ctx); got != p {
		t.Error("principal must round-trip through context")
	}
}
