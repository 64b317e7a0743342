package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify a dashboard viewer of the status routes.
type Claims struct {
	Viewer string `json:"viewer"`
	jwt.RegisteredClaims
}

// SignViewerToken issues an HS256 token accepted by JWTMiddleware.
func SignViewerToken(secret, viewer string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := Claims{
		Viewer: viewer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// KeyExpiry reads the exp claim of a backend API key without verifying it.
// Keys that are not JWTs, or carry no exp, report ok=false.
func KeyExpiry(key string) (time.Time, bool) {
	if key == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(key, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
