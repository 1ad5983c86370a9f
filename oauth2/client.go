package oauth2

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-oauth-accounts/core"
)

const (
	defaultAccessTokenType = "Bearer"
	defaultScopeSeparator  = ","
	defaultRequestTimeout  = 30 * time.Second

	maxResponseBodyBytes = 1 << 20 // 1 MiB
)

// Config is the wire-client configuration. Everything is fixed at
// construction except the scope separator and access-token type, which have
// setters because providers occasionally negotiate them late.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURI string
	TokenURI     string
	RedirectURI  string

	CustomHeaders   map[string]string
	AccessTokenType string
	ScopeSeparator  string
	UseState        bool

	HTTPClient core.HTTPDoer
	Timeout    time.Duration
}

// Client talks to an OAuth2 provider's token endpoint and resource endpoints.
// It is stateless per call apart from the state value generated at
// construction, and it never interprets HTTP status: raw responses go back to
// the flow, which owns decoding policy.
type Client struct {
	cfg        Config
	state      string
	httpClient core.HTTPDoer
}

// NewClient validates and normalizes cfg and, when state emission is
// enabled, generates the random 20-hex-character state value.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AuthorizeURI) == "" {
		return nil, fmt.Errorf("oauth2: authorize uri is required")
	}
	if strings.TrimSpace(cfg.TokenURI) == "" {
		return nil, fmt.Errorf("oauth2: token uri is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("oauth2: client id is required")
	}

	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AuthorizeURI = strings.TrimSpace(cfg.AuthorizeURI)
	cfg.TokenURI = strings.TrimSpace(cfg.TokenURI)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	if strings.TrimSpace(cfg.AccessTokenType) == "" {
		cfg.AccessTokenType = defaultAccessTokenType
	}
	if strings.TrimSpace(cfg.ScopeSeparator) == "" {
		cfg.ScopeSeparator = defaultScopeSeparator
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	client := &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}
	if cfg.UseState {
		state, err := generateState()
		if err != nil {
			return nil, err
		}
		client.state = state
	}
	return client, nil
}

// State returns the correlation state generated at construction, empty when
// state emission is disabled.
func (c *Client) State() string {
	if c == nil {
		return ""
	}
	return c.state
}

func (c *Client) SetScopeSeparator(separator string) {
	if c == nil || strings.TrimSpace(separator) == "" {
		return
	}
	c.cfg.ScopeSeparator = separator
}

func (c *Client) SetAccessTokenType(tokenType string) {
	if c == nil || strings.TrimSpace(tokenType) == "" {
		return
	}
	c.cfg.AccessTokenType = tokenType
}

// AuthorizeURL builds the authorize URL from the default parameter set. The
// scope parameter appears only when scope is non-empty, joined by the
// configured separator in input order.
func (c *Client) AuthorizeURL(scope []string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	if c.cfg.UseState {
		params.Set("state", c.state)
	}
	if len(scope) > 0 {
		params.Set("scope", strings.Join(scope, c.cfg.ScopeSeparator))
	}
	return c.cfg.AuthorizeURI + "?" + params.Encode()
}

// AuthorizeURLFromParams serializes caller-controlled parameters verbatim,
// injecting only the client id.
func (c *Client) AuthorizeURLFromParams(params url.Values) string {
	merged := url.Values{}
	for key, values := range params {
		for _, value := range values {
			merged.Add(key, value)
		}
	}
	merged.Set("client_id", c.cfg.ClientID)
	return c.cfg.AuthorizeURI + "?" + merged.Encode()
}

// AccessToken posts the default authorization-code grant for code.
func (c *Client) AccessToken(ctx context.Context, code string) (core.Response, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	return c.postTokenForm(ctx, form)
}

// AccessTokenFromParams posts the caller's raw grant parameters with the
// client credentials injected.
func (c *Client) AccessTokenFromParams(ctx context.Context, params url.Values) (core.Response, error) {
	return c.postTokenForm(ctx, c.injectClientCredentials(params))
}

// RefreshToken posts the default refresh-token grant.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (core.Response, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	return c.postTokenForm(ctx, form)
}

// RefreshTokenFromParams posts the caller's raw refresh parameters with the
// client credentials injected.
func (c *Client) RefreshTokenFromParams(ctx context.Context, params url.Values) (core.Response, error) {
	return c.postTokenForm(ctx, c.injectClientCredentials(params))
}

// Get performs an authenticated GET using the configured token header scheme.
func (c *Client) Get(ctx context.Context, rawurl string, accessToken string) (core.Response, error) {
	return c.authenticatedRequest(ctx, http.MethodGet, rawurl, nil, accessToken)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, rawurl string, body []byte, accessToken string) (core.Response, error) {
	return c.authenticatedRequest(ctx, http.MethodPost, rawurl, body, accessToken)
}

func (c *Client) injectClientCredentials(params url.Values) url.Values {
	merged := url.Values{}
	for key, values := range params {
		for _, value := range values {
			merged.Add(key, value)
		}
	}
	merged.Set("client_id", c.cfg.ClientID)
	merged.Set("client_secret", c.cfg.ClientSecret)
	return merged
}

func (c *Client) postTokenForm(ctx context.Context, form url.Values) (core.Response, error) {
	if c == nil || c.httpClient == nil {
		return core.Response{}, fmt.Errorf("oauth2: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return core.Response{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.cfg.CustomHeaders {
		req.Header.Set(key, value)
	}

	return c.do(req)
}

func (c *Client) authenticatedRequest(ctx context.Context, method string, rawurl string, body []byte, accessToken string) (core.Response, error) {
	if c == nil || c.httpClient == nil {
		return core.Response{}, fmt.Errorf("oauth2: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
	if err != nil {
		return core.Response{}, err
	}
	req.Header.Set("Authorization", c.cfg.AccessTokenType+" "+accessToken)
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (core.Response, error) {
	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		return core.Response{}, fmt.Errorf("oauth2: request failed: %w", err)
	}
	defer httpRes.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(httpRes.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return core.Response{}, fmt.Errorf("oauth2: read response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return core.Response{}, fmt.Errorf("oauth2: response exceeds %d bytes", maxResponseBodyBytes)
	}

	return core.Response{
		StatusCode: httpRes.StatusCode,
		Headers:    httpRes.Header,
		Body:       body,
	}, nil
}

func generateState() (string, error) {
	raw := make([]byte, 10)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauth2: generate state: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
