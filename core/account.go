package core

import (
	"context"
	"fmt"
	"strings"
)

// AuthenticatedCaller is the slice of a concrete flow the shared behavior
// composes over: authenticated GET/POST against provider endpoints.
type AuthenticatedCaller interface {
	Get(ctx context.Context, url string) (Response, error)
	Post(ctx context.Context, url string, body []byte) (Response, error)
}

// FlowBase carries the behavior both protocol flows share: correlation-token
// registration and consume-once binding, user-info and invalidate calls, and
// the metadata hook. Concrete flows embed it and register themselves as the
// authenticated caller.
type FlowBase struct {
	Account *Account
	Options Options

	store    TokenStore
	logger   Logger
	caller   AuthenticatedCaller
	metadata MetadataFunc
}

// NewFlowBase wires the shared behavior for a concrete flow. The caller is
// the flow itself; the token store and logger come from the resolved deps.
func NewFlowBase(account *Account, options Options, deps Deps, caller AuthenticatedCaller) FlowBase {
	return FlowBase{
		Account:  account,
		Options:  options,
		store:    deps.Store,
		logger:   deps.Logger,
		caller:   caller,
		metadata: deps.MetadataSaver,
	}
}

// Store exposes the correlation token store the flow was built with.
func (b *FlowBase) Store() TokenStore {
	return b.store
}

// Logger exposes the flow logger, never nil.
func (b *FlowBase) Logger() Logger {
	return b.logger
}

// RegisterToken registers a correlation token owned by the account with the
// given scope and the default 15-minute expiry from the environment clock.
func (b *FlowBase) RegisterToken(ctx context.Context, token string, scope []string) error {
	if b == nil || b.store == nil {
		return fmt.Errorf("core: token store is required")
	}
	if b.Account == nil {
		return fmt.Errorf("core: account is required")
	}
	return b.store.Create(ctx, token, TokenEntry{
		AccountID: b.Account.ID,
		Scope:     append([]string(nil), scope...),
		ExpiresAt: b.Account.Environment.Clock().Add(DefaultTokenTTL),
	})
}

// BindCallbackToken consumes the correlation token extracted from an inbound
// callback: it looks the token up, adopts the stored account id and granted
// scope onto the current account, and deletes the token. Each token binds at
// most one callback; a second bind fails with an unknown-token error.
func (b *FlowBase) BindCallbackToken(ctx context.Context, token string) (TokenEntry, error) {
	if b == nil || b.store == nil {
		return TokenEntry{}, fmt.Errorf("core: token store is required")
	}
	token = strings.TrimSpace(token)
	entry, err := b.store.Get(ctx, token)
	if err != nil {
		return TokenEntry{}, err
	}

	if b.Account != nil {
		b.Account.ID = entry.AccountID
		b.Account.Scope = append([]string(nil), entry.Scope...)
	}
	b.store.Delete(ctx, token)

	return entry, nil
}

// GetUserInfo performs the authenticated "who am I" call against the
// configured info endpoint.
func (b *FlowBase) GetUserInfo(ctx context.Context) (Response, error) {
	if b == nil || b.caller == nil {
		return Response{}, fmt.Errorf("core: flow caller is not bound")
	}
	return b.caller.Get(ctx, b.Options.InfoURI)
}

// Invalidate posts to the configured invalidate endpoint, revoking the
// current credentials on the provider side.
func (b *FlowBase) Invalidate(ctx context.Context) (Response, error) {
	if b == nil || b.caller == nil {
		return Response{}, fmt.Errorf("core: flow caller is not bound")
	}
	return b.caller.Post(ctx, b.Options.InvalidateURI, nil)
}

// SaveMetadata invokes the pluggable metadata hook with the raw user-info
// response. No hook configured means no metadata is recorded.
func (b *FlowBase) SaveMetadata(res Response) error {
	if b == nil || b.metadata == nil {
		return nil
	}
	return b.metadata(b.Account, res)
}

// DefaultRedirectURI derives the host callback URI for the account's
// provider name. OAuth1 providers historically used a trailing slash.
func (b *FlowBase) DefaultRedirectURI(trailingSlash bool) string {
	if b == nil || b.Account == nil {
		return ""
	}
	uri := fmt.Sprintf("https://%s/oauth/cb/%s", b.Account.Environment.Host, b.Account.Name)
	if trailingSlash {
		uri += "/"
	}
	return uri
}
