package core

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Environment carries host-supplied context for an account: the public host
// used to derive default redirect URIs and the clock used for every expiry
// computation. The clock is injected so expiry math stays deterministic under
// test and consistent when the host pins a single point in time per operation.
type Environment struct {
	Host string
	Now  func() time.Time
}

// Clock returns the environment clock, falling back to UTC wall time.
func (e Environment) Clock() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// CommonCredentials are the app-level client id/secret shared by every
// account of a provider unless the account data carries its own override.
type CommonCredentials struct {
	ClientID     string
	ClientSecret string
}

// AccountMetadata is the display record populated by a MetadataFunc hook.
type AccountMetadata struct {
	Value string
	Type  string
}

// AccountData is the mutable credential bag owned by the host. The flow
// treats it as exclusively owned by the single in-flight operation; callers
// must not run concurrent authorize/callback/refresh against the same bag.
type AccountData struct {
	ConsumerKey    string
	ConsumerSecret string

	AccessToken        string
	AccessTokenSecret  string
	RefreshToken       string
	RequestToken       string
	RequestTokenSecret string

	Expire *time.Time
}

// Account represents one authorized connection to a provider for one end
// user or organization. The host assigns the id and supplies the data bag,
// environment, and shared credentials; flows mutate Data, Scope, UID, and
// Metadata as the authorization sequence progresses.
type Account struct {
	ID          string
	Name        string
	Data        *AccountData
	Scope       []string
	Common      CommonCredentials
	Environment Environment

	UID      string
	Metadata *AccountMetadata
}

// ResolveCredentials returns the effective client id/secret for the account:
// the per-account consumer key pair when present, else the shared values.
func (a *Account) ResolveCredentials() (string, string) {
	if a == nil {
		return "", ""
	}
	clientID := a.Common.ClientID
	clientSecret := a.Common.ClientSecret
	if a.Data != nil {
		if strings.TrimSpace(a.Data.ConsumerKey) != "" {
			clientID = a.Data.ConsumerKey
		}
		if strings.TrimSpace(a.Data.ConsumerSecret) != "" {
			clientSecret = a.Data.ConsumerSecret
		}
	}
	return strings.TrimSpace(clientID), strings.TrimSpace(clientSecret)
}

// AppendScope appends values to the account scope keeping first-occurrence
// order and unique-by-value semantics.
func (a *Account) AppendScope(values ...string) {
	if a == nil {
		return
	}
	a.Scope = MergeScope(a.Scope, values)
}

// MergeScope returns the duplicate-free ordered union of base and additions,
// base values first, additions in first-occurrence order.
func MergeScope(base []string, additions []string) []string {
	merged := make([]string, 0, len(base)+len(additions))
	seen := make(map[string]struct{}, len(base)+len(additions))
	for _, group := range [][]string{base, additions} {
		for _, value := range group {
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			merged = append(merged, trimmed)
		}
	}
	return merged
}

// SaveExpire records an absolute expiry computed as the environment clock
// plus expiresIn seconds. Non-positive values leave the stored expiry alone;
// both protocols share this single relative-to-absolute conversion.
func (a *Account) SaveExpire(expiresIn int64) {
	if a == nil || a.Data == nil || expiresIn <= 0 {
		return
	}
	expire := a.Environment.Clock().Add(time.Duration(expiresIn) * time.Second)
	a.Data.Expire = &expire
}

// CallbackRequest is the inbound redirect captured by the host: OAuth1 uses
// oauth_token, oauth_verifier, and denied; OAuth2 uses code, state, and error.
type CallbackRequest struct {
	Query url.Values
}

// QueryValue returns a trimmed query parameter from the callback request.
func (r CallbackRequest) QueryValue(key string) string {
	return strings.TrimSpace(r.Query.Get(key))
}

// Response is the raw provider reply surfaced by the wire clients. Status and
// body interpretation belongs to the flows, never to the transport layer.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ContentType returns the media type of the response without parameters.
func (r Response) ContentType() string {
	value := r.Headers.Get("Content-Type")
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(strings.ToLower(value))
}

func (r Response) String() string {
	return fmt.Sprintf("status=%d body=%s", r.StatusCode, strings.TrimSpace(string(r.Body)))
}
