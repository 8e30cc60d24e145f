package oauth2

import (
	"net/http"
	"net/url"
)

// callbackResult is the outcome of validating an IdP callback request.
type callbackResult struct {
	valid             bool
	authCode          string
	originalRequestURL string
}

// validateCallback validates an IdP callback request, failing closed at
// every step:
//  1. an "error" query parameter means the IdP reported a failure.
//  2. "code" and "state" must both be present.
//  3. "state" must base64url-decode to JSON with "url" and "csrf_token".
//  4. the nonce cookie must exist, match csrf_token byte-for-byte, and its
//     embedded HMAC must verify.
//  5. "url" must parse as an absolute URL.
func validateCallback(req *http.Request, secret []byte, cookieNonceName string) callbackResult {
	q := req.URL.Query()

	if q.Get("error") != "" {
		return callbackResult{}
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		return callbackResult{}
	}

	sp, err := decodeState(state)
	if err != nil {
		return callbackResult{}
	}

	if !validateCSRFAgainstCookie(req, secret, cookieNonceName, sp.CSRFToken) {
		return callbackResult{}
	}

	u, err := url.Parse(sp.URL)
	if err != nil || !u.IsAbs() {
		return callbackResult{}
	}

	return callbackResult{valid: true, authCode: code, originalRequestURL: sp.URL}
}

// validateCSRFAgainstCookie checks that the nonce cookie exists, is
// byte-equal to csrfToken, and that csrfToken's embedded HMAC verifies.
func validateCSRFAgainstCookie(req *http.Request, secret []byte, cookieName, csrfToken string) bool {
	c, err := req.Cookie(cookieName)
	if err != nil {
		return false
	}
	if c.Value != csrfToken {
		return false
	}
	return validateCSRFTokenHMAC(secret, csrfToken)
}
