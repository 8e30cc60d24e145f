package oauth2

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TokenResult carries the tokens and lifetime the IdP returned, whether
// from a fresh code exchange or a refresh.
type TokenResult struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int64 // seconds
}

// Client is the IdP collaborator: an asynchronous RPC with two callbacks
// per operation. Implementations must invoke exactly one of
// onSuccess/onFailure, exactly once.
type Client interface {
	AsyncGetAccessToken(code, clientID, clientSecret, redirectURI string, authType AuthType,
		onSuccess func(TokenResult), onFailure func(error))
	AsyncRefreshAccessToken(refreshToken, clientID, clientSecret string, authType AuthType,
		onSuccess func(TokenResult), onFailure func(error))
}

// httpClient is the default Client implementation, talking to an
// RFC 6749 token endpoint over HTTP: a long-lived *http.Client with a
// background idle-connection reaper, one instance shared across requests.
type httpClient struct {
	tokenEndpoint string
	httpClient    *http.Client
	defaultExpiresIn int64
}

// NewHTTPClient builds the default Client, dialing tokenEndpoint for both
// code exchange and refresh. defaultExpiresIn is substituted when the IdP's
// token response omits expires_in.
func NewHTTPClient(tokenEndpoint string, timeout time.Duration, defaultExpiresIn int64) *httpClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: timeout}).DialContext,
	}
	quit := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				transport.CloseIdleConnections()
			case <-quit:
				return
			}
		}
	}()

	return &httpClient{
		tokenEndpoint: tokenEndpoint,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		defaultExpiresIn: defaultExpiresIn,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
}

func (c *httpClient) exchange(form url.Values, clientID, clientSecret string, authType AuthType,
	onSuccess func(TokenResult), onFailure func(error)) {
	go func() {
		var useBasicAuth bool
		switch authType {
		case AuthTypeBasicAuth:
			useBasicAuth = true
		default:
			form.Set("client_id", clientID)
			form.Set("client_secret", clientSecret)
		}

		req, err := http.NewRequest(http.MethodPost, c.tokenEndpoint, strings.NewReader(form.Encode()))
		if err != nil {
			onFailure(err)
			return
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		if useBasicAuth {
			req.SetBasicAuth(clientID, clientSecret)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			onFailure(err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			onFailure(fmt.Errorf("oauth2gate: token endpoint returned status %d", resp.StatusCode))
			return
		}

		var tr tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			onFailure(err)
			return
		}

		expiresIn := c.defaultExpiresIn
		if tr.ExpiresIn != "" {
			if v, err := strconv.ParseInt(tr.ExpiresIn.String(), 10, 64); err == nil {
				expiresIn = v
			}
		}

		onSuccess(TokenResult{
			AccessToken:  tr.AccessToken,
			IDToken:      tr.IDToken,
			RefreshToken: tr.RefreshToken,
			ExpiresIn:    expiresIn,
		})
	}()
}

func (c *httpClient) AsyncGetAccessToken(code, clientID, clientSecret, redirectURI string, authType AuthType,
	onSuccess func(TokenResult), onFailure func(error)) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	c.exchange(form, clientID, clientSecret, authType, onSuccess, onFailure)
}

func (c *httpClient) AsyncRefreshAccessToken(refreshToken, clientID, clientSecret string, authType AuthType,
	onSuccess func(TokenResult), onFailure func(error)) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	c.exchange(form, clientID, clientSecret, authType, onSuccess, onFailure)
}
