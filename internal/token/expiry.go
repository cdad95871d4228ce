package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expiry reads the exp claim of a JWT without verifying its signature. The
// backend is the only party that verifies tokens; the dashboard only needs
// the expiry to size cache and cookie lifetimes. ok is false for opaque or
// exp-less tokens.
func Expiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Lifetime returns how long p is worth keeping: until the refresh token
// expires, else the access token, else fallback.
func Lifetime(p Pair, fallback time.Duration, now time.Time) time.Duration {
	for _, raw := range []string{p.RefreshToken, p.AccessToken} {
		if exp, ok := Expiry(raw); ok {
			if d := exp.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return fallback
}
