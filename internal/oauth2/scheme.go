package oauth2

import "net/http"

// requestScheme derives the externally-visible scheme of req, preferring
// X-Forwarded-Proto (set by the upstream load balancer / TLS terminator)
// over the connection's own TLS state. Defaults to "https", since a
// correct OAuth2 redirect_uri and state url depend on it, downgrading to
// "http" only when the scheme is explicitly declared as such.
func requestScheme(req *http.Request) string {
	if fp := req.Header.Get("X-Forwarded-Proto"); fp == "http" {
		return "http"
	}
	if req.TLS != nil {
		return "https"
	}
	if req.URL.Scheme == "http" {
		return "http"
	}
	return "https"
}

// requestURL reconstructs the absolute URL of the incoming request, as
// observed by this filter (scheme + Host header + RequestURI).
func requestURL(req *http.Request) string {
	return requestScheme(req) + "://" + req.Host + req.URL.RequestURI()
}
