package oauth2

import (
	"fmt"
	"net/http"
	"strconv"
)

// SameSite is the SameSite attribute configurable per cookie kind. It
// mirrors the handful of values browsers support; "" means the attribute is
// omitted entirely (matching CookieConfig_SameSite_DISABLED upstream).
type SameSite string

const (
	SameSiteDisabled SameSite = ""
	SameSiteLax      SameSite = "Lax"
	SameSiteStrict   SameSite = "Strict"
	SameSiteNone     SameSite = "None"
)

// CookieSettings configures the attributes of a single cookie kind.
type CookieSettings struct {
	SameSite SameSite
}

// parseCookies parses a Cookie header into a name->value map. If keep is
// non-nil, only keys for which keep returns true are retained. When a name
// occurs more than once, the last occurrence wins, matching the semantics
// http.Request.Cookies already gives us (later headers are parsed later).
func parseCookies(req *http.Request, keep func(name string) bool) map[string]string {
	out := make(map[string]string)
	for _, c := range req.Cookies() {
		if keep != nil && !keep(c.Name) {
			continue
		}
		out[c.Name] = c.Value
	}
	return out
}

// formatSetCookie renders a Set-Cookie header value for an active session
// cookie: "<name>=<value>[; Domain=<d>]; Path=/; Max-Age=<n>; Secure; HttpOnly[; SameSite=<v>]".
func formatSetCookie(name, value, domain string, maxAge int64, sameSite SameSite) string {
	s := name + "=" + value
	if domain != "" {
		s += "; Domain=" + domain
	}
	s += "; Path=/; Max-Age=" + strconv.FormatInt(maxAge, 10) + "; Secure; HttpOnly"
	if sameSite != SameSiteDisabled {
		s += "; SameSite=" + string(sameSite)
	}
	return s
}

// formatDeleteCookie renders a Set-Cookie header value that deletes name on
// the client, using the fixed epoch-expiry form.
func formatDeleteCookie(name, domain string) string {
	s := fmt.Sprintf("%s=deleted; path=/; expires=Thu, 01 Jan 1970 00:00:00 GMT", name)
	if domain != "" {
		s += "; Domain=" + domain
	}
	return s
}
