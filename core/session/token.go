package session

import (
	"encoding/json"
	"math"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// DefaultExpiryMargin is the clock-skew tolerance applied when checking token expiry.
const DefaultExpiryMargin = 30 * time.Second

var parser = new(jwt.Parser)

// IsTokenExpired reports whether the bearer token expires before now + DefaultExpiryMargin.
// Tokens that cannot be decoded are treated as expired.
func IsTokenExpired(token string, now time.Time) bool {
	return isTokenExpired(token, now, DefaultExpiryMargin)
}

func isTokenExpired(token string, now time.Time, margin time.Duration) bool {
	exp, ok := tokenExpiry(token)
	if !ok {
		return true
	}
	return exp < now.Add(margin).Unix()
}

// tokenExpiry reads the `exp` claim (epoch seconds) without verifying the signature;
// the backend is the one verifying tokens.
func tokenExpiry(token string) (int64, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0, false
	}
	switch exp := claims["exp"].(type) {
	case float64:
		if exp != math.Trunc(exp) {
			return 0, false
		}
		return int64(exp), true
	case json.Number:
		v, err := exp.Int64()
		return v, err == nil
	}
	return 0, false
}
