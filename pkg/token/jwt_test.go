package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestVerifyToken_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "authenticated")
	userID := uuid.New()

	tokenString, err := m.GenerateStreamToken(userID, "user@example.com", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := m.VerifyToken(tokenString)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	got, err := claims.UserID()
	if err != nil {
		t.Fatalf("subject should parse as uuid: %v", err)
	}
	if got != userID {
		t.Errorf("user id mismatch: %s != %s", got, userID)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("email claim lost: %q", claims.Email)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", "authenticated")
	verifier := NewJWTManager("secret-b", "authenticated")

	tokenString, err := issuer.GenerateStreamToken(uuid.New(), "", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := verifier.VerifyToken(tokenString); err == nil {
		t.Error("verification must fail for a foreign signing key")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	m := NewJWTManager("secret", "authenticated")
	tokenString, err := m.GenerateStreamToken(uuid.New(), "", -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := m.VerifyToken(tokenString); err == nil {
		t.Error("verification must fail for an expired token")
	}
}

func TestVerifyToken_WrongAudience(t *testing.T) {
	issuer := NewJWTManager("secret", "service-role")
	verifier := NewJWTManager("secret", "authenticated")

	tokenString, err := issuer.GenerateStreamToken(uuid.New(), "", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := verifier.VerifyToken(tokenString); err == nil {
		t.Error("verification must fail for a mismatched audience")
	}
}

func TestAccessClaims_UserIDRejectsGarbage(t *testing.T) {
	claims := &AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}}
	if _, err := claims.UserID(); err == nil {
		t.Error("non-uuid subject must be rejected")
	}
}
