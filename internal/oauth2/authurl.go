package oauth2

import (
	"net/http"
	"net/url"
	"strings"
)

// renderRedirectURI expands Config.RedirectURITemplate against the request,
// substituting the "{scheme}" and "{host}" placeholders.
func renderRedirectURI(tmpl string, req *http.Request) string {
	scheme := requestScheme(req)
	r := strings.NewReplacer("{scheme}", scheme, "{host}", req.Host)
	return r.Replace(tmpl)
}

// buildAuthorizationURL assembles the Location header sent to redirect the
// user agent into the Authorization Code flow.
func buildAuthorizationURL(c *Config, req *http.Request, state string) string {
	u := *c.authorizationEndpointURL
	params := cloneValues(c.authorizationQueryParams)
	params.Set("state", state)
	params.Set("redirect_uri", renderRedirectURI(c.RedirectURITemplate, req))
	u.RawQuery = params.Encode()
	return u.String() + c.encodedResourceSuffix
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}
