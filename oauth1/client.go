package oauth1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/goliatone/go-oauth-accounts/core"
	"github.com/google/uuid"
)

const (
	oauthVersion10      = "1.0"
	signatureMethodHMAC = "HMAC-SHA1"

	defaultRequestTimeout = 30 * time.Second

	maxResponseBodyBytes = 1 << 20 // 1 MiB
)

// Config is the signed-client configuration. Nonce and Clock are injectable
// so signatures stay deterministic under test.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string

	RequestURI   string
	AccessURI    string
	AuthorizeURI string
	CallbackURI  string

	CustomHeaders map[string]string

	// Version is the value advertised as oauth_version; defaults to "1.0".
	Version string

	HTTPClient core.HTTPDoer
	Timeout    time.Duration

	Nonce func() string
	Clock func() time.Time
}

// Client performs HMAC-SHA1 signed requests against an OAuth1 provider. Like
// its OAuth2 counterpart it never interprets HTTP status; raw responses go
// back to the flow.
type Client struct {
	cfg        Config
	httpClient core.HTTPDoer
	signer     oauth1.HMACSigner
}

// NewClient validates and normalizes cfg, defaulting the nonce source to
// UUIDv4 and the clock to UTC wall time.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" {
		return nil, fmt.Errorf("oauth1: consumer key is required")
	}
	if strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, fmt.Errorf("oauth1: consumer secret is required")
	}

	cfg.ConsumerKey = strings.TrimSpace(cfg.ConsumerKey)
	cfg.ConsumerSecret = strings.TrimSpace(cfg.ConsumerSecret)
	cfg.RequestURI = strings.TrimSpace(cfg.RequestURI)
	cfg.AccessURI = strings.TrimSpace(cfg.AccessURI)
	cfg.AuthorizeURI = strings.TrimSpace(cfg.AuthorizeURI)
	cfg.CallbackURI = strings.TrimSpace(cfg.CallbackURI)
	cfg.Version = strings.TrimSpace(cfg.Version)
	if cfg.Version == "" {
		cfg.Version = oauthVersion10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Nonce == nil {
		cfg.Nonce = func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		signer:     oauth1.HMACSigner{ConsumerSecret: cfg.ConsumerSecret},
	}, nil
}

// AuthorizeURL builds the user-facing authorize URL for a request token.
func (c *Client) AuthorizeURL(requestToken string) string {
	params := url.Values{}
	params.Set("oauth_token", requestToken)
	return c.cfg.AuthorizeURI + "?" + params.Encode()
}

// RequestToken posts the signed temporary-credentials request, carrying the
// callback URI inside the signature per 1.0A.
func (c *Client) RequestToken(ctx context.Context) (core.Response, error) {
	if strings.TrimSpace(c.cfg.RequestURI) == "" {
		return core.Response{}, fmt.Errorf("oauth1: request uri is required")
	}
	extra := map[string]string{"oauth_callback": c.cfg.CallbackURI}
	return c.signedRequest(ctx, http.MethodPost, c.cfg.RequestURI, nil, "", "", extra)
}

// AccessToken exchanges an authorized request token and its verifier for
// token credentials.
func (c *Client) AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (core.Response, error) {
	if strings.TrimSpace(c.cfg.AccessURI) == "" {
		return core.Response{}, fmt.Errorf("oauth1: access uri is required")
	}
	extra := map[string]string{"oauth_verifier": verifier}
	return c.signedRequest(ctx, http.MethodPost, c.cfg.AccessURI, nil, requestToken, requestSecret, extra)
}

// Get performs a signed GET with the stored token credentials.
func (c *Client) Get(ctx context.Context, rawurl string, accessToken, accessSecret string) (core.Response, error) {
	return c.signedRequest(ctx, http.MethodGet, rawurl, nil, accessToken, accessSecret, nil)
}

// Post performs a signed POST with a JSON body. The body does not enter the
// signature base string, matching 1.0A for non-form payloads.
func (c *Client) Post(ctx context.Context, rawurl string, body []byte, accessToken, accessSecret string) (core.Response, error) {
	return c.signedRequest(ctx, http.MethodPost, rawurl, body, accessToken, accessSecret, nil)
}

func (c *Client) signedRequest(ctx context.Context, method, rawurl string, body []byte, token, tokenSecret string, extra map[string]string) (core.Response, error) {
	if c == nil || c.httpClient == nil {
		return core.Response{}, fmt.Errorf("oauth1: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	parsed, err := url.Parse(rawurl)
	if err != nil {
		return core.Response{}, fmt.Errorf("oauth1: parse url: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     c.cfg.ConsumerKey,
		"oauth_nonce":            c.cfg.Nonce(),
		"oauth_signature_method": signatureMethodHMAC,
		"oauth_timestamp":        strconv.FormatInt(c.cfg.Clock().Unix(), 10),
		"oauth_version":          c.cfg.Version,
	}
	if strings.TrimSpace(token) != "" {
		oauthParams["oauth_token"] = token
	}
	for key, value := range extra {
		if strings.TrimSpace(value) != "" {
			oauthParams[key] = value
		}
	}

	base := signatureBase(method, parsed, oauthParams)
	signature, err := c.signer.Sign(tokenSecret, base)
	if err != nil {
		return core.Response{}, fmt.Errorf("oauth1: sign request: %w", err)
	}
	oauthParams["oauth_signature"] = signature

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
	if err != nil {
		return core.Response{}, err
	}
	req.Header.Set("Authorization", authorizationHeader(oauthParams))
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.cfg.CustomHeaders {
		req.Header.Set(key, value)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (core.Response, error) {
	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		return core.Response{}, fmt.Errorf("oauth1: request failed: %w", err)
	}
	defer httpRes.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(httpRes.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return core.Response{}, fmt.Errorf("oauth1: read response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return core.Response{}, fmt.Errorf("oauth1: response exceeds %d bytes", maxResponseBodyBytes)
	}

	return core.Response{
		StatusCode: httpRes.StatusCode,
		Headers:    httpRes.Header,
		Body:       body,
	}, nil
}

// signatureBase builds the RFC 5849 signature base string from the request
// method, the base URI stripped of query and fragment, and the normalized
// union of query and oauth parameters.
func signatureBase(method string, u *url.URL, oauthParams map[string]string) string {
	baseURL := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()

	pairs := make([]string, 0, len(oauthParams)+len(u.Query()))
	for key, values := range u.Query() {
		for _, value := range values {
			pairs = append(pairs, percentEncode(key)+"="+percentEncode(value))
		}
	}
	for key, value := range oauthParams {
		pairs = append(pairs, percentEncode(key)+"="+percentEncode(value))
	}
	sort.Strings(pairs)

	return strings.ToUpper(method) + "&" +
		percentEncode(baseURL) + "&" +
		percentEncode(strings.Join(pairs, "&"))
}

// authorizationHeader renders the oauth parameters as an OAuth scheme header
// with sorted, percent-encoded key="value" pairs.
func authorizationHeader(oauthParams map[string]string) string {
	keys := make([]string, 0, len(oauthParams))
	for key := range oauthParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, percentEncode(key)+"=\""+percentEncode(oauthParams[key])+"\"")
	}
	return "OAuth " + strings.Join(pairs, ", ")
}

// percentEncode applies the strict RFC 3986 unreserved-set encoding OAuth1
// signatures require; url.QueryEscape is close but encodes space as '+'.
func percentEncode(input string) string {
	var out strings.Builder
	out.Grow(len(input))
	for i := 0; i < len(input); i++ {
		c := input[i]
		if isUnreserved(c) {
			out.WriteByte(c)
			continue
		}
		fmt.Fprintf(&out, "%%%02X", c)
	}
	return out.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
