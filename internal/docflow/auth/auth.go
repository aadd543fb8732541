// Package auth supplies access tokens for the remote endpoint.
//
// The sync engine asks for a fresh token before every record. Providers are
// expected to cache: ClientCredentials reuses a token until shortly before it
// expires, Static returns the configured value after checking it has not
// expired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Supported provider modes.
const (
	ModeNone              = "none"
	ModeStatic            = "static"
	ModeClientCredentials = "client_credentials"
)

var (
	// ErrNoToken means no token is configured.
	ErrNoToken = errors.New("no access token configured")
	// ErrTokenExpired means the configured token's exp claim is in the past.
	ErrTokenExpired = errors.New("access token expired")
)

// Provider returns a bearer token for one request.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context) (string, error)

// Token calls f.
func (f Func) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Config selects and configures a provider.
type Config struct {
	Mode         string
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// New builds the provider described by cfg.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Mode) {
	case ModeNone:
		return Func(func(context.Context) (string, error) { return "", nil }), nil
	case ModeStatic, "":
		return &Static{Value: cfg.Token}, nil
	case ModeClientCredentials:
		if cfg.ClientID == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("client_credentials requires auth.client_id and auth.token_url")
		}
		return NewClientCredentials(&clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Static returns a fixed bearer token.
//
// When the value is a JWT an expired exp claim is a failure. The signature is
// not verified.
type Static struct {
	Value string
	Now   func() time.Time
}

// Token implements Provider.
func (s *Static) Token(ctx context.Context) (string, error) {
	if s.Value == "" {
		return "", ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Value, claims); err != nil {
		// Opaque token.
		return s.Value, nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return s.Value, nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if !now().Before(exp.Time) {
		return "", fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return s.Value, nil
}

// ClientCredentials fetches tokens with the OAuth2 client-credentials grant.
type ClientCredentials struct {
	cfg *clientcredentials.Config
	src oauth2.TokenSource
}

// NewClientCredentials returns a provider that caches tokens until they expire.
func NewClientCredentials(cfg *clientcredentials.Config) *ClientCredentials {
	return &ClientCredentials{
		cfg: cfg,
		src: oauth2.ReuseTokenSource(nil, cfg.TokenSource(context.Background())),
	}
}

// Token implements Provider.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tok, err := c.src.Token()
	if err != nil {
		return "", fmt.Errorf("client credentials token from %s: %w", c.cfg.TokenURL, err)
	}
	return tok.AccessToken, nil
}
