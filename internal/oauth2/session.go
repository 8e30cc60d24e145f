package oauth2

import (
	"net/http"
	"strconv"
	"time"
)

// sessionCookies is the set of session-relevant cookie values read off an
// inbound request.
type sessionCookies struct {
	expires      string
	accessToken  string
	idToken      string
	refreshToken string
	hmac         string
}

// readSessionCookies extracts the session cookies the validator needs,
// treating a missing cookie as an empty string.
func readSessionCookies(req *http.Request, names CookieNames) sessionCookies {
	cookies := parseCookies(req, func(name string) bool {
		return name == names.OAuthExpires || name == names.BearerToken ||
			name == names.OAuthHMAC || name == names.IDToken || name == names.RefreshToken
	})

	return sessionCookies{
		expires:      cookies[names.OAuthExpires],
		accessToken:  cookies[names.BearerToken],
		idToken:      cookies[names.IDToken],
		refreshToken: cookies[names.RefreshToken],
		hmac:         cookies[names.OAuthHMAC],
	}
}

// sessionValidator decides whether a request carries a currently-valid
// session. It is stateless given its inputs; a Filter constructs one per
// request from the current config and secret.
type sessionValidator struct {
	now    func() time.Time
	secret []byte
	domain string
	cookies sessionCookies
}

func newSessionValidator(now func() time.Time, secret []byte, domain string, cookies sessionCookies) *sessionValidator {
	return &sessionValidator{now: now, secret: secret, domain: domain, cookies: cookies}
}

// hmacValid checks the session HMAC under both accepted encodings: the
// current base64(raw) form and the legacy base64(hex(raw)) form kept for
// backward compatibility.
func (v *sessionValidator) hmacValid() bool {
	c := v.cookies
	if constantTimeEqual(encodeHmacBase64(v.secret, v.domain, c.expires, c.accessToken, c.idToken, c.refreshToken), c.hmac) {
		return true
	}
	return constantTimeEqual(encodeHmacHexBase64(v.secret, v.domain, c.expires, c.accessToken, c.idToken, c.refreshToken), c.hmac)
}

// timestampValid checks that the expires cookie parses and is in the future.
func (v *sessionValidator) timestampValid() bool {
	expires, err := strconv.ParseUint(v.cookies.expires, 10, 64)
	if err != nil {
		return false
	}
	return int64(expires) > v.now().Unix()
}

// isValid reports whether the session HMAC matches and the session has not
// yet expired.
func (v *sessionValidator) isValid() bool {
	return v.hmacValid() && v.timestampValid()
}

// canRefresh is true iff a refresh token cookie is present.
func (v *sessionValidator) canRefresh() bool {
	return v.cookies.refreshToken != ""
}
