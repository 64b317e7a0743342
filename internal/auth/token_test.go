package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestKeyExpiry(t *testing.T) {
	exp := time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)
	key, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Issuer:    "supabase",
	}).SignedString([]byte("server-side-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, ok := KeyExpiry(key)
	if !ok || !got.Equal(exp) {
		t.Fatalf("expected %v, got %v ok=%v", exp, got, ok)
	}
}

func TestKeyExpiryWithoutExp(t *testing.T) {
	key, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "x"}).SignedString([]byte("s"))
	if _, ok := KeyExpiry(key); ok {
		t.Fatalf("expected no expiry")
	}
}

func TestKeyExpiryOpaqueKey(t *testing.T) {
	for _, key := range []string{"", "sb_publishable_abc123"} {
		if _, ok := KeyExpiry(key); ok {
			t.Fatalf("expected no expiry for %q", key)
		}
	}
}

func TestSignViewerTokenEmptySecret(t *testing.T) {
	if _, err := SignViewerToken("", "v", time.Hour); err == nil {
		t.Fatalf("expected error")
	}
}
