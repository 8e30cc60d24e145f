package oauth2

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtExpiry returns the exp claim of token if it parses as a JWT with a
// non-zero exp, and ok is true. No signature verification is performed;
// claim validation beyond reading exp is out of scope.
func jwtExpiry(token string) (exp time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	// ParseUnverified deliberately skips signature verification; this
	// filter never needs to trust the claims, only read the expiry the
	// IdP itself is vouching for over an already-authenticated channel.
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}, false
	}

	expFloat, err := claims.GetExpirationTime()
	if err != nil || expFloat == nil || expFloat.Unix() == 0 {
		return time.Time{}, false
	}

	return expFloat.Time, true
}

// accessTokenMaxAge: the bearer cookie's Max-Age is always exactly
// expires_in.
func accessTokenMaxAge(expiresIn int64) int64 {
	return expiresIn
}

// idTokenMaxAge: if id_token parses as a JWT with a non-zero exp, use
// max(exp-now, 0); otherwise expires_in.
func idTokenMaxAge(idToken string, expiresIn int64, now time.Time) int64 {
	if exp, ok := jwtExpiry(idToken); ok {
		return maxInt64(int64(exp.Sub(now).Seconds()), 0)
	}
	return expiresIn
}

// refreshTokenMaxAge:
//   - UseRefreshToken disabled: expires_in.
//   - UseRefreshToken enabled, refresh_token is a JWT with non-zero exp:
//     max(exp-now, 0).
//   - UseRefreshToken enabled otherwise: defaultRefreshTokenExpiresIn.
func refreshTokenMaxAge(useRefreshToken bool, refreshToken string, expiresIn, defaultRefreshTokenExpiresIn int64, now time.Time) int64 {
	if !useRefreshToken {
		return expiresIn
	}
	if exp, ok := jwtExpiry(refreshToken); ok {
		return maxInt64(int64(exp.Sub(now).Seconds()), 0)
	}
	return defaultRefreshTokenExpiresIn
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
