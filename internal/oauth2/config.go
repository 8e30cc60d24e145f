package oauth2

import (
	"errors"
	"net/url"
	"strings"
)

// AuthType selects how the client id/secret are presented to the token
// endpoint during code and refresh-token exchange.
type AuthType int

const (
	// AuthTypeURLEncodedBody sends client_id/client_secret as form fields
	// in the POST body. This is the default, matching the upstream
	// filter's default.
	AuthTypeURLEncodedBody AuthType = iota
	// AuthTypeBasicAuth sends client credentials via HTTP Basic auth.
	AuthTypeBasicAuth
)

const defaultAuthScope = "user"

// defaultRefreshTokenExpiresIn is used for the refresh-token cookie Max-Age
// when the refresh token is not a JWT (or has no exp claim) and refresh-token
// use is enabled.
const defaultRefreshTokenExpiresIn = 604800 // 7 days, seconds

// CookieNames holds the six configurable cookie names.
type CookieNames struct {
	OAuthHMAC    string
	OAuthExpires string
	BearerToken  string
	IDToken      string
	RefreshToken string
	Nonce        string
}

// DefaultCookieNames returns the conventional default cookie names.
func DefaultCookieNames() CookieNames {
	return CookieNames{
		OAuthHMAC:    "OauthHMAC",
		OAuthExpires: "OauthExpires",
		BearerToken:  "BearerToken",
		IDToken:      "IdToken",
		RefreshToken: "RefreshToken",
		Nonce:        "OauthNonce",
	}
}

// CookieConfigs groups the per-cookie-kind SameSite settings.
type CookieConfigs struct {
	BearerToken  CookieSettings
	OAuthHMAC    CookieSettings
	OAuthExpires CookieSettings
	IDToken      CookieSettings
	RefreshToken CookieSettings
	Nonce        CookieSettings
}

// SecretReader supplies the current HMAC secret bytes. It may rotate the
// value returned between calls; the core never caches it across requests
//.
type SecretReader interface {
	GetSecret() ([]byte, error)
}

// Config is the shared, immutable-after-construction configuration of the
// gate. One Config is shared by every Filter built from it.
type Config struct {
	// TokenEndpoint is the IdP's token exchange/refresh endpoint.
	TokenEndpoint string
	// AuthorizationEndpoint is the IdP's authorization endpoint.
	AuthorizationEndpoint string

	ClientID     string
	ClientSecret string

	// RedirectURITemplate is expanded against the request to produce the
	// redirect_uri query parameter and the value sent to the token
	// endpoint during code exchange. "{scheme}" and "{host}" placeholders
	// are substituted; anything else is passed through literally,
	// allowing a fixed redirect_uri to be configured directly.
	RedirectURITemplate string

	// RedirectPathMatcher identifies the callback path.
	RedirectPathMatcher PathMatcher
	// SignOutPathMatcher identifies the sign-out path.
	SignOutPathMatcher PathMatcher

	PassThroughMatchers  []HeaderMatcher
	DenyRedirectMatchers []HeaderMatcher

	CookieNames   CookieNames
	CookieDomain  string
	CookieConfigs CookieConfigs

	AuthType AuthType

	// DefaultExpiresIn is used by the IdP client when the token response
	// omits expires_in. An expires_in of 0 from the IdP is not
	// special-cased inside the decision machine; this is the caller's
	// tool to avoid an immediately-expired session.
	DefaultExpiresIn int64
	// DefaultRefreshTokenExpiresIn is the refresh-token cookie Max-Age
	// fallback when UseRefreshToken is enabled but the refresh token is
	// not a JWT with an exp claim. Defaults to 604800 (7 days).
	DefaultRefreshTokenExpiresIn int64

	ForwardBearerToken          bool
	PreserveAuthorizationHeader bool
	UseRefreshToken             bool

	DisableIDTokenSetCookie      bool
	DisableAccessTokenSetCookie  bool
	DisableRefreshTokenSetCookie bool

	// AuthScopes, space-joined into the scope query parameter. Defaults
	// to []string{"user"} when empty.
	AuthScopes []string
	// Resources are appended as repeated "&resource=<urlenc>" query
	// parameters on the authorization URL.
	Resources []string

	// CompatNonceSameSiteFromRefreshToken preserves the historical
	// (believed-buggy) behavior of sourcing the nonce cookie's SameSite
	// setting from the refresh-token cookie config instead of its own.
	CompatNonceSameSiteFromRefreshToken bool

	SecretReader SecretReader

	// authorizationEndpointURL and authorizationQueryParams are
	// pre-computed once by Init, not recomputed per request.
	authorizationEndpointURL *url.URL
	authorizationQueryParams url.Values
	encodedResourceSuffix    string
}

var (
	ErrMissingSecretReader      = errors.New("oauth2gate: missing secret reader")
	ErrMissingProviderURLs      = errors.New("oauth2gate: missing token or authorization endpoint")
	ErrMissingClientCredentials = errors.New("oauth2gate: missing client id or client secret")
	ErrInvalidAuthorizationURL  = errors.New("oauth2gate: invalid authorization endpoint URL")
	ErrMissingRedirectMatcher   = errors.New("oauth2gate: missing redirect path matcher")
)

// Init validates the configuration and pre-computes the authorization URL
// query parameters. It must be called once before the Config is used to
// build a Filter; it never mutates per-request state, only the
// process-lifetime cached fields. Construction-time errors here are fatal
// to filter instantiation and are never surfaced per-request.
func (c *Config) Init() error {
	if c.TokenEndpoint == "" || c.AuthorizationEndpoint == "" {
		return ErrMissingProviderURLs
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingClientCredentials
	}
	if c.SecretReader == nil {
		return ErrMissingSecretReader
	}
	if c.RedirectPathMatcher.re == nil {
		return ErrMissingRedirectMatcher
	}

	u, err := url.Parse(c.AuthorizationEndpoint)
	if err != nil || u.Host == "" {
		return ErrInvalidAuthorizationURL
	}
	c.authorizationEndpointURL = u

	scopes := c.AuthScopes
	if len(scopes) == 0 {
		scopes = []string{defaultAuthScope}
	}

	params := u.Query()
	params.Set("client_id", c.ClientID)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(scopes, " "))
	c.authorizationQueryParams = params

	var resSuffix strings.Builder
	for _, r := range c.Resources {
		resSuffix.WriteString("&resource=")
		resSuffix.WriteString(url.QueryEscape(r))
	}
	c.encodedResourceSuffix = resSuffix.String()

	if (c.CookieNames == CookieNames{}) {
		c.CookieNames = DefaultCookieNames()
	}
	if c.DefaultRefreshTokenExpiresIn == 0 {
		c.DefaultRefreshTokenExpiresIn = defaultRefreshTokenExpiresIn
	}

	return nil
}

// effectiveDomain returns the configured cookie domain if set, else host,
// as used in the HMAC payload domain field. The Set-Cookie Domain attribute
// is taken from CookieDomain alone and is omitted when that is empty.
func (c *Config) effectiveDomain(host string) string {
	if c.CookieDomain != "" {
		return c.CookieDomain
	}
	return host
}

// nonceSameSite resolves which CookieSettings govern the nonce cookie's
// SameSite attribute, honoring the compatibility flag.
func (c *Config) nonceSameSite() SameSite {
	if c.CompatNonceSameSiteFromRefreshToken {
		return c.CookieConfigs.RefreshToken.SameSite
	}
	return c.CookieConfigs.Nonce.SameSite
}
