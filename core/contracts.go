package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// DefaultTokenTTL is the lifetime of a correlation token registered during
// authorize. A callback arriving later than this finds no token.
const DefaultTokenTTL = 15 * time.Minute

// TokenEntry is the value registered under a correlation token: the owning
// account, the scope requested for this authorization, and an advisory
// absolute expiry. The store does not sweep on expiry; staleness is checked
// lazily on read.
type TokenEntry struct {
	AccountID string
	Scope     []string
	ExpiresAt time.Time
}

// TokenStore holds short-lived correlation tokens (OAuth1 request tokens,
// OAuth2 state values) keyed by the opaque token string. Create must reject
// an existing key atomically; Get and Delete together form the only
// consumption path, giving at-most-once semantics per token. The reference
// implementation is in-memory; production deployments substitute a shared
// store with the same three-operation contract.
type TokenStore interface {
	Create(ctx context.Context, token string, entry TokenEntry) error
	Get(ctx context.Context, token string) (TokenEntry, error)
	Delete(ctx context.Context, token string)
}

// HTTPDoer is the outbound transport seam shared by both wire clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AccountFlow is the capability set both protocol variants implement. Shared
// defaults (scope and expiry helpers, callback-token binding, user info) live
// on core.FlowBase; the concrete flows supply the protocol specifics.
type AccountFlow interface {
	Initialize(ctx context.Context) error
	Authorize(ctx context.Context, scope []string) (string, error)
	Callback(ctx context.Context, req CallbackRequest) error
	Test(ctx context.Context) (bool, error)
	Get(ctx context.Context, url string) (Response, error)
}

// MetadataFunc runs after a successful test call with the raw user-info
// response. Implementations populate Account.UID and Account.Metadata; there
// is no default behavior.
type MetadataFunc func(account *Account, res Response) error

// ScopeFunc reconciles the account's final granted scope after an OAuth2
// callback. The default trusts the scope recorded in the consumed correlation
// token; providers whose token response or permissions endpoint is
// authoritative override it.
type ScopeFunc func(ctx context.Context, account *Account, granted []string) error

// ResponseErrorFunc normalizes a provider reply into the uniform error model:
// nil for success, a pass-through transport error, or a provider error
// wrapping the raw payload. Providers with bespoke error schemas override it.
type ResponseErrorFunc func(err error, res *Response) error

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
