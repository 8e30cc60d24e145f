package oauth2

import "net/http"

// signOut emits one deletion Set-Cookie per session cookie (all six) plus
// a Location redirecting to "/" at the request's scheme and host.
func signOut(w http.ResponseWriter, req *http.Request, c *Config) {
	domain := c.CookieDomain
	names := c.CookieNames

	for _, name := range []string{
		names.OAuthHMAC,
		names.BearerToken,
		names.IDToken,
		names.RefreshToken,
		names.Nonce,
		names.OAuthExpires,
	} {
		w.Header().Add("Set-Cookie", formatDeleteCookie(name, domain))
	}

	w.Header().Set("Location", requestScheme(req)+"://"+req.Host+"/")
	w.WriteHeader(http.StatusFound)
}
