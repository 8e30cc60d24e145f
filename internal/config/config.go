// Package config loads oauth2gate's process configuration from flags
// optionally overlaid with a YAML file: parse flags first so defaults are
// in place, then if -config-file was given, unmarshal the YAML into the
// same struct and re-parse the flags so the command line still wins over
// the file.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Yueren-Wang/oauth2gate/internal/oauth2"
	"github.com/Yueren-Wang/oauth2gate/internal/secretreader"
)

// Config is the flag/YAML-bound process configuration. Fields mirror
// oauth2.Config closely; Build converts this into one.
type Config struct {
	Flags      *flag.FlagSet `yaml:"-"`
	ConfigFile string        `yaml:"-"`

	// server
	Address         string        `yaml:"address"`
	UpstreamAddress string        `yaml:"upstream-address"`
	ReadTimeout     time.Duration `yaml:"read-timeout"`
	WriteTimeout    time.Duration `yaml:"write-timeout"`
	IdleTimeout     time.Duration `yaml:"idle-timeout"`
	MetricsListener string        `yaml:"metrics-listener"`

	// IdP
	TokenEndpoint         string `yaml:"token-endpoint"`
	AuthorizationEndpoint string `yaml:"authorization-endpoint"`
	ClientID              string `yaml:"client-id"`
	ClientSecret          string `yaml:"client-secret"`
	TokenRequestTimeout   time.Duration `yaml:"token-request-timeout"`

	// paths
	RedirectURITemplate string `yaml:"redirect-uri-template"`
	RedirectPath        string `yaml:"redirect-path"`
	SignOutPath         string `yaml:"sign-out-path"`

	// secret
	SecretFile             string        `yaml:"secret-file"`
	SecretRefreshInterval  time.Duration `yaml:"secret-refresh-interval"`

	// cookies
	CookieDomain                       string    `yaml:"cookie-domain"`
	CookieNameHMAC                     string    `yaml:"cookie-name-hmac"`
	CookieNameExpires                  string    `yaml:"cookie-name-expires"`
	CookieNameBearer                   string    `yaml:"cookie-name-bearer"`
	CookieNameIDToken                  string    `yaml:"cookie-name-id-token"`
	CookieNameRefreshToken             string    `yaml:"cookie-name-refresh-token"`
	CookieNameNonce                    string    `yaml:"cookie-name-nonce"`
	CompatNonceSameSiteFromRefreshToken bool     `yaml:"compat-nonce-samesite-from-refresh-token"`

	// behavior
	AuthTypeBasicAuth           bool      `yaml:"auth-type-basic"`
	DefaultExpiresIn            int64     `yaml:"default-expires-in"`
	DefaultRefreshTokenExpiresIn int64    `yaml:"default-refresh-token-expires-in"`
	ForwardBearerToken          bool      `yaml:"forward-bearer-token"`
	PreserveAuthorizationHeader bool      `yaml:"preserve-authorization-header"`
	UseRefreshToken             bool      `yaml:"use-refresh-token"`
	DisableIDTokenSetCookie     bool      `yaml:"disable-id-token-set-cookie"`
	DisableAccessTokenSetCookie bool      `yaml:"disable-access-token-set-cookie"`
	DisableRefreshTokenSetCookie bool     `yaml:"disable-refresh-token-set-cookie"`
	AuthScopes                  *listFlag `yaml:"auth-scopes"`
	Resources                   *listFlag `yaml:"resources"`

	PassThroughHeaders  *headerMatcherFlag `yaml:"pass-through-headers"`
	DenyRedirectHeaders *headerMatcherFlag `yaml:"deny-redirect-headers"`

	// logging / metrics
	LogLevel        string `yaml:"log-level"`
	LogFormatJSON   bool   `yaml:"log-format-json"`
	MetricsNamespace string `yaml:"metrics-namespace"`
}

// NewConfig returns a Config with its flag.FlagSet wired up and defaults
// set.
func NewConfig() *Config {
	cfg := &Config{
		AuthScopes:          commaListFlag(),
		Resources:           commaListFlag(),
		PassThroughHeaders:  &headerMatcherFlag{},
		DenyRedirectHeaders: &headerMatcherFlag{},
	}

	flags := flag.NewFlagSet("", flag.ExitOnError)
	flags.StringVar(&cfg.ConfigFile, "config-file", "", "if provided, flags are loaded/overwritten from this YAML file")

	flags.StringVar(&cfg.Address, "address", ":8080", "network address to listen on for protected traffic")
	flags.StringVar(&cfg.UpstreamAddress, "upstream-address", "", "address of the upstream this gate protects, e.g. http://localhost:9090")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", 5*time.Second, "HTTP server read timeout")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", 60*time.Second, "HTTP server write timeout")
	flags.DurationVar(&cfg.IdleTimeout, "idle-timeout", 60*time.Second, "HTTP server idle timeout")
	flags.StringVar(&cfg.MetricsListener, "metrics-listener", ":9911", "network address for the /metrics endpoint, empty disables it")

	flags.StringVar(&cfg.TokenEndpoint, "token-endpoint", "", "IdP token exchange/refresh endpoint")
	flags.StringVar(&cfg.AuthorizationEndpoint, "authorization-endpoint", "", "IdP authorization endpoint")
	flags.StringVar(&cfg.ClientID, "client-id", "", "OAuth2 client id")
	flags.StringVar(&cfg.ClientSecret, "client-secret", "", "OAuth2 client secret")
	flags.DurationVar(&cfg.TokenRequestTimeout, "token-request-timeout", 5*time.Second, "timeout for requests to the token endpoint")

	flags.StringVar(&cfg.RedirectURITemplate, "redirect-uri-template", "{scheme}://{host}/oauth2/callback", "redirect_uri template; {scheme} and {host} are substituted")
	flags.StringVar(&cfg.RedirectPath, "redirect-path", "^/oauth2/callback$", "regexp matching the IdP callback path")
	flags.StringVar(&cfg.SignOutPath, "sign-out-path", "^/oauth2/sign_out$", "regexp matching the sign-out path")

	flags.StringVar(&cfg.SecretFile, "secret-file", "", "path to the file containing the HMAC signing secret")
	flags.DurationVar(&cfg.SecretRefreshInterval, "secret-refresh-interval", 10*time.Minute, "how often to re-read secret-file")

	flags.StringVar(&cfg.CookieDomain, "cookie-domain", "", "Domain attribute for session cookies; defaults to the request host")
	flags.StringVar(&cfg.CookieNameHMAC, "cookie-name-hmac", "OauthHMAC", "name of the session HMAC cookie")
	flags.StringVar(&cfg.CookieNameExpires, "cookie-name-expires", "OauthExpires", "name of the session expiry cookie")
	flags.StringVar(&cfg.CookieNameBearer, "cookie-name-bearer", "BearerToken", "name of the access token cookie")
	flags.StringVar(&cfg.CookieNameIDToken, "cookie-name-id-token", "IdToken", "name of the ID token cookie")
	flags.StringVar(&cfg.CookieNameRefreshToken, "cookie-name-refresh-token", "RefreshToken", "name of the refresh token cookie")
	flags.StringVar(&cfg.CookieNameNonce, "cookie-name-nonce", "OauthNonce", "name of the CSRF nonce cookie")
	flags.BoolVar(&cfg.CompatNonceSameSiteFromRefreshToken, "compat-nonce-samesite-from-refresh-token", false, "source the nonce cookie's SameSite from the refresh-token cookie config instead of its own (historical compatibility)")

	flags.BoolVar(&cfg.AuthTypeBasicAuth, "auth-type-basic", false, "present client credentials via HTTP Basic auth instead of the request body")
	flags.Int64Var(&cfg.DefaultExpiresIn, "default-expires-in", 3600, "fallback token lifetime in seconds when the IdP omits expires_in")
	flags.Int64Var(&cfg.DefaultRefreshTokenExpiresIn, "default-refresh-token-expires-in", 604800, "fallback refresh-token cookie lifetime in seconds when the refresh token isn't a JWT with exp")
	flags.BoolVar(&cfg.ForwardBearerToken, "forward-bearer-token", false, "set the Authorization header on forwarded requests from the access token cookie")
	flags.BoolVar(&cfg.PreserveAuthorizationHeader, "preserve-authorization-header", false, "do not strip an inbound Authorization header")
	flags.BoolVar(&cfg.UseRefreshToken, "use-refresh-token", false, "use the refresh token cookie to renew an expired session instead of redirecting to the IdP")
	flags.BoolVar(&cfg.DisableIDTokenSetCookie, "disable-id-token-set-cookie", false, "never set the ID token cookie")
	flags.BoolVar(&cfg.DisableAccessTokenSetCookie, "disable-access-token-set-cookie", false, "never set the access token cookie")
	flags.BoolVar(&cfg.DisableRefreshTokenSetCookie, "disable-refresh-token-set-cookie", false, "never set the refresh token cookie")
	flags.Var(cfg.AuthScopes, "auth-scopes", "comma-separated OAuth2 scopes; defaults to \"user\"")
	flags.Var(cfg.Resources, "resources", "comma-separated resource indicators appended to the authorization URL")

	flags.Var(cfg.PassThroughHeaders, "pass-through-header", "repeatable \"Name:Regexp\" header matcher that exempts matching requests from the gate")
	flags.Var(cfg.DenyRedirectHeaders, "deny-redirect-header", "repeatable \"Name:Regexp\" header matcher that 401s instead of redirecting to the IdP")

	flags.StringVar(&cfg.LogLevel, "log-level", "info", "application log level")
	flags.BoolVar(&cfg.LogFormatJSON, "log-format-json", false, "emit application logs as JSON")
	flags.StringVar(&cfg.MetricsNamespace, "metrics-namespace", "oauth2gate", "Prometheus metrics namespace")

	cfg.Flags = flags
	return cfg
}

// Parse parses os.Args[1:] into c.
func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[1:])
}

// ParseArgs parses args into c, following them with ConfigFile's YAML
// overlay (if set) and a second flag pass so the command line wins.
func (c *Config) ParseArgs(args []string) error {
	if err := c.Flags.Parse(args); err != nil {
		return err
	}

	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %v", c.Flags.Args())
	}

	if c.ConfigFile == "" {
		return nil
	}

	yamlFile, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}

	if err := yaml.Unmarshal(yamlFile, c); err != nil {
		return fmt.Errorf("unmarshalling config file: %w", err)
	}

	return c.Flags.Parse(args)
}

// Build validates c and assembles the oauth2.Config plus the
// secretreader.FileSecretReader it depends on.
func (c *Config) Build() (*oauth2.Config, *secretreader.FileSecretReader, error) {
	if c.SecretFile == "" {
		return nil, nil, fmt.Errorf("config: secret-file is required")
	}

	sr, err := secretreader.NewFileSecretReader(c.SecretFile, c.SecretRefreshInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("config: loading secret-file: %w", err)
	}

	redirectMatcher, err := oauth2.NewPathMatcher(c.RedirectPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: invalid redirect-path: %w", err)
	}

	signOutMatcher, err := oauth2.NewPathMatcher(c.SignOutPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: invalid sign-out-path: %w", err)
	}

	authType := oauth2.AuthTypeURLEncodedBody
	if c.AuthTypeBasicAuth {
		authType = oauth2.AuthTypeBasicAuth
	}

	oc := &oauth2.Config{
		TokenEndpoint:         c.TokenEndpoint,
		AuthorizationEndpoint: c.AuthorizationEndpoint,
		ClientID:              c.ClientID,
		ClientSecret:          c.ClientSecret,
		RedirectURITemplate:   c.RedirectURITemplate,
		RedirectPathMatcher:   redirectMatcher,
		SignOutPathMatcher:    signOutMatcher,
		PassThroughMatchers:   c.PassThroughHeaders.matchers,
		DenyRedirectMatchers:  c.DenyRedirectHeaders.matchers,
		CookieNames: oauth2.CookieNames{
			OAuthHMAC:    c.CookieNameHMAC,
			OAuthExpires: c.CookieNameExpires,
			BearerToken:  c.CookieNameBearer,
			IDToken:      c.CookieNameIDToken,
			RefreshToken: c.CookieNameRefreshToken,
			Nonce:        c.CookieNameNonce,
		},
		CookieDomain:                        c.CookieDomain,
		AuthType:                            authType,
		DefaultExpiresIn:                    c.DefaultExpiresIn,
		DefaultRefreshTokenExpiresIn:        c.DefaultRefreshTokenExpiresIn,
		ForwardBearerToken:                  c.ForwardBearerToken,
		PreserveAuthorizationHeader:         c.PreserveAuthorizationHeader,
		UseRefreshToken:                     c.UseRefreshToken,
		DisableIDTokenSetCookie:             c.DisableIDTokenSetCookie,
		DisableAccessTokenSetCookie:         c.DisableAccessTokenSetCookie,
		DisableRefreshTokenSetCookie:        c.DisableRefreshTokenSetCookie,
		AuthScopes:                          c.AuthScopes.values,
		Resources:                           c.Resources.values,
		CompatNonceSameSiteFromRefreshToken: c.CompatNonceSameSiteFromRefreshToken,
		SecretReader:                        sr,
	}

	if err := oc.Init(); err != nil {
		sr.Close()
		return nil, nil, err
	}

	return oc, sr, nil
}
