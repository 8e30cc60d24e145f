package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Logger is the narrow logging capability the decision machine needs.
// internal/oauthlog provides a logrus-backed implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

const unauthorizedBody = "OAuth flow failed."

// Response tags, surfaced for host observability via the X-Oauth2-Action
// response header.
const (
	TagRaceRedirect = "oauth.race_redirect"
	TagLoggedIn     = "oauth.logged_in"
)

func setActionTag(w http.ResponseWriter, tag string) {
	w.Header().Set("X-Oauth2-Action", tag)
}

// Filter is the decision machine. It holds a pointer to the shared,
// immutable Config plus its collaborators (IdP client, time source, RNG,
// stats, logger) and no per-request fields: all per-request state lives in
// handle's locals, so one Filter serves concurrent requests.
type Filter struct {
	config *Config
	client Client
	now    func() time.Time
	rng    RandomGenerator
	stats  Stats
	logger Logger
}

// NewFilter builds a Filter sharing config among every request it serves.
func NewFilter(config *Config, client Client, now func() time.Time, rng RandomGenerator, stats Stats, logger Logger) *Filter {
	if now == nil {
		now = time.Now
	}
	return &Filter{config: config, client: client, now: now, rng: rng, stats: stats, logger: logger}
}

// Middleware wraps next with the OAuth2 Authorization Code flow gate.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handle(w, r, next)
	})
}

// handle runs the full OAuth2 Authorization Code flow decision machine for
// one request.
func (f *Filter) handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	c := f.config

	// 1. Pass-through.
	for _, m := range c.PassThroughMatchers {
		if m.Matches(r.Header) {
			f.stats.PassThrough()
			next.ServeHTTP(w, r)
			return
		}
	}

	// 2. Sanitize Authorization, unless explicitly preserved.
	if !c.PreserveAuthorizationHeader {
		r.Header.Del("Authorization")
	}

	host := r.Host
	path := r.URL.Path

	// 4. Sign-out.
	if c.SignOutPathMatcher.Match(path) {
		signOut(w, r, c)
		return
	}

	secret, err := c.SecretReader.GetSecret()
	if err != nil {
		f.logger.Errorf("oauth2gate: failed to read HMAC secret: %v", err)
		f.sendUnauthorized(w)
		return
	}

	domain := c.effectiveDomain(host)
	cookies := readSessionCookies(r, c.CookieNames)
	validator := newSessionValidator(f.now, secret, domain, cookies)

	// 5. Session valid?
	if validator.isValid() {
		f.stats.Success()
		if c.ForwardBearerToken && cookies.accessToken != "" {
			r.Header.Set("Authorization", "Bearer "+cookies.accessToken)
		}

		if c.RedirectPathMatcher.Match(path) {
			f.handleRaceRedirect(w, r, secret)
			return
		}

		next.ServeHTTP(w, r)
		return
	}

	// 6. Refresh fast path.
	if c.UseRefreshToken && validator.canRefresh() {
		result, err := f.awaitToken(r.Context(), func(onSuccess func(TokenResult), onFailure func(error)) {
			f.client.AsyncRefreshAccessToken(cookies.refreshToken, c.ClientID, c.ClientSecret, c.AuthType, onSuccess, onFailure)
		})
		if err != nil {
			f.stats.RefreshTokenFailure()
			f.logger.Debugf("oauth2gate: refresh token exchange failed: %v", err)
			f.redirectToIdPOrUnauthorized(w, r, secret)
			return
		}

		f.finishRefreshAccessToken(w, r, next, host, result)
		return
	}

	// 7. Not the callback path: redirect to the IdP (or 401).
	if !c.RedirectPathMatcher.Match(path) {
		f.redirectToIdPOrUnauthorized(w, r, secret)
		return
	}

	// 8. Callback.
	result := validateCallback(r, secret, c.CookieNames.Nonce)
	if !result.valid {
		f.sendUnauthorized(w)
		return
	}

	redirectURI := renderRedirectURI(c.RedirectURITemplate, r)
	tokens, err := f.awaitToken(r.Context(), func(onSuccess func(TokenResult), onFailure func(error)) {
		f.client.AsyncGetAccessToken(result.authCode, c.ClientID, c.ClientSecret, redirectURI, c.AuthType, onSuccess, onFailure)
	})
	if err != nil {
		f.logger.Debugf("oauth2gate: access token exchange failed: %v", err)
		f.sendUnauthorized(w)
		return
	}

	f.finishGetAccessToken(w, host, result.originalRequestURL, tokens)
}

// handleRaceRedirect handles a session that's already valid but whose path
// is the callback path -- a second tab raced the login and the browser
// followed the IdP's redirect after the first tab already finished signing
// in. Re-validates the callback and either 401s (invalid, or loop guard) or
// redirects back to the original URL.
func (f *Filter) handleRaceRedirect(w http.ResponseWriter, r *http.Request, secret []byte) {
	result := validateCallback(r, secret, f.config.CookieNames.Nonce)
	if !result.valid {
		f.sendUnauthorized(w)
		return
	}

	originalURL, err := url.Parse(result.originalRequestURL)
	if err != nil || !originalURL.IsAbs() {
		f.sendUnauthorized(w)
		return
	}

	if f.config.RedirectPathMatcher.Match(pathAndQuery(originalURL)) {
		f.logger.Debugf("oauth2gate: original request url %s matches redirect path matcher, refusing to loop", originalURL)
		f.sendUnauthorized(w)
		return
	}

	setActionTag(w, TagRaceRedirect)
	w.Header().Set("Location", result.originalRequestURL)
	w.WriteHeader(http.StatusFound)
}

// redirectToIdPOrUnauthorized sends the browser to the IdP unless a
// deny-redirect matcher fires, in which case the request is rejected
// outright instead.
func (f *Filter) redirectToIdPOrUnauthorized(w http.ResponseWriter, r *http.Request, secret []byte) {
	for _, m := range f.config.DenyRedirectMatchers {
		if m.Matches(r.Header) {
			f.sendUnauthorized(w)
			return
		}
	}

	if err := f.redirectToIdP(w, r, secret); err != nil {
		f.logger.Errorf("oauth2gate: failed to build login redirect: %v", err)
		f.sendUnauthorized(w)
		return
	}
	f.stats.UnauthorizedRequest()
}

// redirectToIdP mints or reuses the CSRF cookie and emits the 302 to the
// authorization endpoint.
func (f *Filter) redirectToIdP(w http.ResponseWriter, r *http.Request, secret []byte) error {
	c := f.config

	var csrfToken string
	if existing, err := r.Cookie(c.CookieNames.Nonce); err == nil {
		if !validateCSRFTokenHMAC(secret, existing.Value) {
			return fmt.Errorf("csrf token validation failed")
		}
		csrfToken = existing.Value
	} else {
		token, err := generateCSRFToken(secret, f.rng)
		if err != nil {
			return err
		}
		csrfToken = token

		w.Header().Add("Set-Cookie", formatSetCookie(
			c.CookieNames.Nonce, csrfToken, c.CookieDomain, 600, c.nonceSameSite()))
	}

	state := encodeState(requestURL(r), csrfToken)
	w.Header().Set("Location", buildAuthorizationURL(c, r, state))
	w.WriteHeader(http.StatusFound)
	return nil
}

// finishGetAccessToken mints the session cookies from a fresh token
// exchange and redirects the browser back to the page it originally asked
// for.
func (f *Filter) finishGetAccessToken(w http.ResponseWriter, host, originalRequestURL string, tokens TokenResult) {
	c := f.config
	now := f.now()
	state := newIssuedSession(c, tokens, now)

	for _, sc := range state.setCookies(c, f.effectiveDomainHost(host)) {
		w.Header().Add("Set-Cookie", sc)
	}
	setActionTag(w, TagLoggedIn)
	w.Header().Set("Location", originalRequestURL)
	w.WriteHeader(http.StatusFound)

	f.stats.Success()
}

// finishRefreshAccessToken mutates the in-flight request's Cookie header,
// optionally sets the Authorization header, and ensures the upstream's
// response carries the matching Set-Cookie headers before it is written.
func (f *Filter) finishRefreshAccessToken(w http.ResponseWriter, r *http.Request, next http.Handler, host string, tokens TokenResult) {
	c := f.config
	now := f.now()
	state := newIssuedSession(c, tokens, now)

	// setCookies computes state.hmac, which the rewritten Cookie header needs.
	setCookies := state.setCookies(c, f.effectiveDomainHost(host))
	rewriteCookieHeader(r, c.CookieNames, state)

	if c.ForwardBearerToken && state.accessToken != "" {
		r.Header.Set("Authorization", "Bearer "+state.accessToken)
	}

	wrapped := &cookieInjectingWriter{
		ResponseWriter: w,
		cookies:        setCookies,
	}

	f.stats.RefreshTokenSuccess()
	f.stats.Success()
	next.ServeHTTP(wrapped, r)
}

func (f *Filter) effectiveDomainHost(host string) string {
	return f.config.effectiveDomain(host)
}

func (f *Filter) sendUnauthorized(w http.ResponseWriter) {
	f.stats.Failure()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

// tokenOutcome is the one-shot completion message passed from an IdP
// client callback back into the blocked request goroutine.
type tokenOutcome struct {
	result TokenResult
	err    error
}

// awaitToken dispatches an async IdP operation and blocks the current
// goroutine until the operation completes or the request is cancelled. A
// buffered channel of size 1 guarantees the IdP client's callback never
// blocks even if nobody is left listening -- the callback is safely
// abandoned on cancellation.
func (f *Filter) awaitToken(ctx context.Context, dispatch func(onSuccess func(TokenResult), onFailure func(error))) (TokenResult, error) {
	ch := make(chan tokenOutcome, 1)

	dispatch(
		func(tr TokenResult) { ch <- tokenOutcome{result: tr} },
		func(err error) { ch <- tokenOutcome{err: err} },
	)

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return TokenResult{}, ctx.Err()
	}
}

// cookieInjectingWriter adds a fixed set of Set-Cookie headers the first
// time headers are written, so a refreshed session's cookies always land
// on the upstream's response before it is flushed.
type cookieInjectingWriter struct {
	http.ResponseWriter
	cookies []string
	wrote   bool
}

func (w *cookieInjectingWriter) WriteHeader(status int) {
	if !w.wrote {
		for _, c := range w.cookies {
			w.Header().Add("Set-Cookie", c)
		}
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieInjectingWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// rewriteCookieHeader overwrites the in-flight request's session cookies
// with the freshly-refreshed values, respecting disable-*-set-cookie gates.
func rewriteCookieHeader(r *http.Request, names CookieNames, s issuedSession) {
	values := map[string]string{}
	for _, c := range r.Cookies() {
		values[c.Name] = c.Value
	}

	values[names.OAuthHMAC] = s.hmac
	values[names.OAuthExpires] = s.newExpires

	if s.accessToken != "" {
		values[names.BearerToken] = s.accessToken
	}
	if s.idToken != "" {
		values[names.IDToken] = s.idToken
	}
	if s.refreshToken != "" {
		values[names.RefreshToken] = s.refreshToken
	}

	header := ""
	first := true
	for name, value := range values {
		if !first {
			header += "; "
		}
		first = false
		header += name + "=" + value
	}
	r.Header.Set("Cookie", header)
}

// issuedSession is the pending-state tuple computed once tokens arrive,
// from which both the emitted Set-Cookie headers and the rewritten request
// Cookie header are derived.
type issuedSession struct {
	accessToken  string
	idToken      string
	refreshToken string
	newExpires   string
	hmac         string

	accessTokenMaxAge  int64
	idTokenMaxAge      int64
	refreshTokenMaxAge int64
	expiresMaxAge      int64
}

// newIssuedSession applies the disable-*-set-cookie gates and computes the
// HMAC and per-cookie lifetimes.
func newIssuedSession(c *Config, tokens TokenResult, now time.Time) issuedSession {
	s := issuedSession{}

	if !c.DisableAccessTokenSetCookie {
		s.accessToken = tokens.AccessToken
	}
	if !c.DisableIDTokenSetCookie {
		s.idToken = tokens.IDToken
	}
	if !c.DisableRefreshTokenSetCookie {
		s.refreshToken = tokens.RefreshToken
	}

	newExpires := now.Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix()
	s.newExpires = strconv.FormatInt(newExpires, 10)

	s.accessTokenMaxAge = accessTokenMaxAge(tokens.ExpiresIn)
	s.idTokenMaxAge = idTokenMaxAge(s.idToken, tokens.ExpiresIn, now)
	s.refreshTokenMaxAge = refreshTokenMaxAge(c.UseRefreshToken, s.refreshToken, tokens.ExpiresIn, c.DefaultRefreshTokenExpiresIn, now)
	s.expiresMaxAge = tokens.ExpiresIn

	return s
}

// setCookies renders the Set-Cookie header values this session should
// emit: hmac and expires are always present; bearer/id/refresh only when
// non-empty (i.e. not disabled). hmac is computed against domain at render
// time since it depends on which fields survived the disable gates.
func (s *issuedSession) setCookies(c *Config, domain string) []string {
	s.hmac = encodeHmacBase64(mustSecret(c), domain, s.newExpires, s.accessToken, s.idToken, s.refreshToken)

	out := []string{
		formatSetCookie(c.CookieNames.OAuthHMAC, s.hmac, c.CookieDomain, s.expiresMaxAge, c.CookieConfigs.OAuthHMAC.SameSite),
		formatSetCookie(c.CookieNames.OAuthExpires, s.newExpires, c.CookieDomain, s.expiresMaxAge, c.CookieConfigs.OAuthExpires.SameSite),
	}

	if s.accessToken != "" {
		out = append(out, formatSetCookie(c.CookieNames.BearerToken, s.accessToken, c.CookieDomain, s.accessTokenMaxAge, c.CookieConfigs.BearerToken.SameSite))
	}
	if s.idToken != "" {
		out = append(out, formatSetCookie(c.CookieNames.IDToken, s.idToken, c.CookieDomain, s.idTokenMaxAge, c.CookieConfigs.IDToken.SameSite))
	}
	if s.refreshToken != "" {
		out = append(out, formatSetCookie(c.CookieNames.RefreshToken, s.refreshToken, c.CookieDomain, s.refreshTokenMaxAge, c.CookieConfigs.RefreshToken.SameSite))
	}

	return out
}

// mustSecret re-reads the HMAC secret for cookie emission. Emission happens
// in the same request turn as validation, immediately after the secret was
// already read once; re-reading here keeps issuedSession free of a secret
// field it would otherwise have to thread through two call sites.
func mustSecret(c *Config) []byte {
	secret, err := c.SecretReader.GetSecret()
	if err != nil {
		// The secret reader already succeeded once this request; a
		// failure here means it is actively rotating out from under us.
		// Returning an empty secret fails the next validation closed
		// rather than panicking the request.
		return nil
	}
	return secret
}
