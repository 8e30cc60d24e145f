package oauth2

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSecretReader struct{ secret []byte }

func (r testSecretReader) GetSecret() ([]byte, error) { return r.secret, nil }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Errorf(string, ...interface{}) {}

type stubClient struct {
	getAccessToken     func() (TokenResult, error)
	refreshAccessToken func() (TokenResult, error)
}

func (c *stubClient) AsyncGetAccessToken(code, clientID, clientSecret, redirectURI string, authType AuthType,
	onSuccess func(TokenResult), onFailure func(error)) {
	tr, err := c.getAccessToken()
	if err != nil {
		onFailure(err)
		return
	}
	onSuccess(tr)
}

func (c *stubClient) AsyncRefreshAccessToken(refreshToken, clientID, clientSecret string, authType AuthType,
	onSuccess func(TokenResult), onFailure func(error)) {
	tr, err := c.refreshAccessToken()
	if err != nil {
		onFailure(err)
		return
	}
	onSuccess(tr)
}

func testConfig(t *testing.T, secret []byte) *Config {
	t.Helper()
	redirectMatcher, err := NewPathMatcher("^/oauth2/callback$")
	require.NoError(t, err)
	signOutMatcher, err := NewPathMatcher("^/oauth2/signout$")
	require.NoError(t, err)

	c := &Config{
		TokenEndpoint:         "https://idp.example.com/token",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		ClientID:              "client-id",
		ClientSecret:          "client-secret",
		RedirectURITemplate:   "{scheme}://{host}/oauth2/callback",
		RedirectPathMatcher:   redirectMatcher,
		SignOutPathMatcher:    signOutMatcher,
		SecretReader:          testSecretReader{secret: secret},
	}
	require.NoError(t, c.Init())
	return c
}

func newTestFilter(t *testing.T, c *Config, client Client, now time.Time) *Filter {
	t.Helper()
	return NewFilter(c, client, func() time.Time { return now }, fixedRNG(99), NopStats{}, nopLogger{})
}

func passThroughHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// S1 -- Fresh unauthenticated GET.
func TestFilterFreshUnauthenticatedRedirectsToIdP(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)
	f := newTestFilter(t, c, &stubClient{}, time.Unix(1000, 0))

	req := httptest.NewRequest(http.MethodGet, "https://host/app", nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()

	f.Middleware(passThroughHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, c.AuthorizationEndpoint)

	u, err := url.Parse(loc)
	require.NoError(t, err)
	state := u.Query().Get("state")
	sp, err := decodeState(state)
	require.NoError(t, err)
	assert.Equal(t, "https://host/app", sp.URL)

	setCookie := rec.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "OauthNonce=")
	assert.Contains(t, setCookie, "Max-Age=600")
	assert.Contains(t, setCookie, sp.CSRFToken)
}

// S2 -- Callback success.
func TestFilterCallbackSuccessSetsSessionCookies(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)

	csrf, err := generateCSRFToken(secret, fixedRNG(99))
	require.NoError(t, err)
	state := encodeState("https://host/app", csrf)

	client := &stubClient{
		getAccessToken: func() (TokenResult, error) {
			return TokenResult{AccessToken: "A", IDToken: "I", RefreshToken: "R", ExpiresIn: 3600}, nil
		},
	}
	f := newTestFilter(t, c, client, time.Unix(1000, 0))

	req := httptest.NewRequest(http.MethodGet, "https://host/oauth2/callback?code=AUTH&state="+state, nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: "OauthNonce", Value: csrf})
	rec := httptest.NewRecorder()

	f.Middleware(passThroughHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://host/app", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	names := map[string]*http.Cookie{}
	for _, ck := range cookies {
		names[ck.Name] = ck
	}
	require.Len(t, cookies, 5, "hmac, expires, bearer, id, refresh")
	assert.Equal(t, "A", names["BearerToken"].Value)
	assert.Equal(t, "I", names["IdToken"].Value)
	assert.Equal(t, "R", names["RefreshToken"].Value)
	assert.Equal(t, 3600, names["BearerToken"].MaxAge)
	assert.Equal(t, 3600, names["RefreshToken"].MaxAge, "refresh-token use disabled, so its cookie just follows expires_in")
}

// S3 -- CSRF mismatch (nonce cookie absent).
func TestFilterCallbackMissingNonceCookieIsUnauthorized(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)

	csrf, err := generateCSRFToken(secret, fixedRNG(99))
	require.NoError(t, err)
	state := encodeState("https://host/app", csrf)

	f := newTestFilter(t, c, &stubClient{}, time.Unix(1000, 0))

	req := httptest.NewRequest(http.MethodGet, "https://host/oauth2/callback?code=AUTH&state="+state, nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()

	f.Middleware(passThroughHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, unauthorizedBody, rec.Body.String())
}

// S4 -- Valid session passthrough.
func TestFilterValidSessionForwardsWithBearerToken(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)
	c.ForwardBearerToken = true

	now := time.Unix(1000, 0)
	expires := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	hmac := encodeHmacBase64(secret, "host", expires, "A", "I", "R")

	var sawAuth string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	f := newTestFilter(t, c, &stubClient{}, now)

	req := httptest.NewRequest(http.MethodGet, "https://host/app", nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: "OauthExpires", Value: expires})
	req.AddCookie(&http.Cookie{Name: "BearerToken", Value: "A"})
	req.AddCookie(&http.Cookie{Name: "IdToken", Value: "I"})
	req.AddCookie(&http.Cookie{Name: "RefreshToken", Value: "R"})
	req.AddCookie(&http.Cookie{Name: "OauthHMAC", Value: hmac})
	rec := httptest.NewRecorder()

	f.Middleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer A", sawAuth)
}

// S5 -- Refresh.
func TestFilterExpiredSessionRefreshes(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)
	c.UseRefreshToken = true

	now := time.Unix(100000, 0)
	pastExpires := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	hmac := encodeHmacBase64(secret, "host", pastExpires, "A", "I", "R")

	client := &stubClient{
		refreshAccessToken: func() (TokenResult, error) {
			return TokenResult{AccessToken: "A2", IDToken: "I2", RefreshToken: "R2", ExpiresIn: 3600}, nil
		},
	}
	f := newTestFilter(t, c, client, now)

	var sawCookie string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "https://host/app", nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: "OauthExpires", Value: pastExpires})
	req.AddCookie(&http.Cookie{Name: "BearerToken", Value: "A"})
	req.AddCookie(&http.Cookie{Name: "IdToken", Value: "I"})
	req.AddCookie(&http.Cookie{Name: "RefreshToken", Value: "R"})
	req.AddCookie(&http.Cookie{Name: "OauthHMAC", Value: hmac})
	rec := httptest.NewRecorder()

	f.Middleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, sawCookie, "RefreshToken=R2")
	assert.Contains(t, sawCookie, "BearerToken=A2")

	cookies := rec.Result().Cookies()
	assert.Len(t, cookies, 5)
}

// S6 -- Sign-out.
func TestFilterSignOutDeletesAllSessionCookies(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)
	f := newTestFilter(t, c, &stubClient{}, time.Unix(1000, 0))

	req := httptest.NewRequest(http.MethodGet, "https://host/oauth2/signout", nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()

	f.Middleware(passThroughHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://host/", rec.Header().Get("Location"))

	setCookies := rec.Header().Values("Set-Cookie")
	require.Len(t, setCookies, 6)
	for _, sc := range setCookies {
		assert.Contains(t, sc, "expires=Thu, 01 Jan 1970 00:00:00 GMT")
	}
}

// Loop guard: race-redirect to a URL that itself matches the callback path
// must 401, never loop.
func TestFilterRaceRedirectLoopGuard(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)

	now := time.Unix(1000, 0)
	expires := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	hmac := encodeHmacBase64(secret, "host", expires, "A", "", "")

	csrf, err := generateCSRFToken(secret, fixedRNG(99))
	require.NoError(t, err)
	loopingState := encodeState("https://host/oauth2/callback", csrf)

	f := newTestFilter(t, c, &stubClient{}, now)

	req := httptest.NewRequest(http.MethodGet, "https://host/oauth2/callback?code=AUTH&state="+loopingState, nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: "OauthExpires", Value: expires})
	req.AddCookie(&http.Cookie{Name: "BearerToken", Value: "A"})
	req.AddCookie(&http.Cookie{Name: "OauthHMAC", Value: hmac})
	req.AddCookie(&http.Cookie{Name: "OauthNonce", Value: csrf})
	rec := httptest.NewRecorder()

	f.Middleware(passThroughHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Disable flags: a disabled cookie never appears in the emitted set.
// Validation of a session without that cookie is covered by
// TestSessionValidatorAcceptsMissingDisabledField.
func TestFilterDisableAccessTokenSetCookie(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)
	c.DisableAccessTokenSetCookie = true

	csrf, err := generateCSRFToken(secret, fixedRNG(99))
	require.NoError(t, err)
	state := encodeState("https://host/app", csrf)

	client := &stubClient{
		getAccessToken: func() (TokenResult, error) {
			return TokenResult{AccessToken: "A", IDToken: "I", RefreshToken: "R", ExpiresIn: 3600}, nil
		},
	}
	f := newTestFilter(t, c, client, time.Unix(1000, 0))

	req := httptest.NewRequest(http.MethodGet, "https://host/oauth2/callback?code=AUTH&state="+state, nil)
	req.Host = "host"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: "OauthNonce", Value: csrf})
	rec := httptest.NewRecorder()

	f.Middleware(passThroughHandler()).ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		assert.NotEqual(t, "BearerToken", ck.Name)
	}
}

func TestFilterPassThroughSkipsAuthorizationSanitization(t *testing.T) {
	secret := []byte("secret")
	c := testConfig(t, secret)
	c.PassThroughMatchers = []HeaderMatcher{HeaderPresentMatcher{Name: "X-Internal"}}

	var sawAuth string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	f := newTestFilter(t, c, &stubClient{}, time.Unix(1000, 0))

	req := httptest.NewRequest(http.MethodGet, "https://host/app", nil)
	req.Header.Set("X-Internal", "true")
	req.Header.Set("Authorization", "Bearer untouched")
	rec := httptest.NewRecorder()

	f.Middleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer untouched", sawAuth)
}
