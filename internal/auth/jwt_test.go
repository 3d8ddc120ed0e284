package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/pujcovna/internal/model"
)

var admin = &model.User{ID: "u-1", Username: "admin", Role: model.RoleAdmin}

func TestIssueAndValidate(t *testing.T) {
	iss := NewIssuer("test-secret-key", time.Hour)

	token, issued, err := iss.Issue(admin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" || issued.ID == "" {
		t.Fatal("expected token with an ID")
	}

	claims, err := iss.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "admin" || claims.Role != model.RoleAdmin {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID != issued.ID {
		t.Errorf("JTI mismatch: %s vs %s", claims.ID, issued.ID)
	}
}

func TestIssueUniqueIDs(t *testing.T) {
	iss := NewIssuer("s", time.Hour)
	_, a, _ := iss.Issue(admin)
	_, b, _ := iss.Issue(admin)
	if a.ID == b.ID {
		t.Error("two tokens share a JTI")
	}
}

func TestValidateWrongSecret(t *testing.T) {
	token, _, _ := NewIssuer("secret1", time.Hour).Issue(admin)

	if _, err := NewIssuer("secret2", time.Hour).Validate(token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateGarbage(t *testing.T) {
	if _, err := NewIssuer("secret", time.Hour).Validate("not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateExpired(t *testing.T) {
	claims := Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewIssuer("s", time.Hour).Validate(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestExpiry(t *testing.T) {
	_, claims, _ := NewIssuer("s", 0).Issue(admin)

	diff := time.Now().Add(DefaultExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("CheckPassword: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}
