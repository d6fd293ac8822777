package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew treats tokens about to expire as expired.
const expirySkew = 30 * time.Second

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens never expire client side; the server answers 401 instead.
// The signature is not verified.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now.Add(expirySkew))
}
