package oauthaccounts

import (
	"github.com/goliatone/go-oauth-accounts/core"
	"github.com/goliatone/go-oauth-accounts/oauth1"
	"github.com/goliatone/go-oauth-accounts/oauth2"
)

type Account = core.Account
type AccountData = core.AccountData
type AccountMetadata = core.AccountMetadata
type CommonCredentials = core.CommonCredentials
type Environment = core.Environment

type Options = core.Options
type OptionsRegistry = core.OptionsRegistry
type OptionsProvider = core.OptionsProvider
type OptionsResolver = core.OptionsResolver

type AccountFlow = core.AccountFlow
type CallbackRequest = core.CallbackRequest
type Response = core.Response

type TokenStore = core.TokenStore
type TokenEntry = core.TokenEntry
type MemoryTokenStore = core.MemoryTokenStore

type HTTPDoer = core.HTTPDoer
type MetadataFunc = core.MetadataFunc
type ScopeFunc = core.ScopeFunc
type ResponseErrorFunc = core.ResponseErrorFunc

type Option = core.Option
type Deps = core.Deps

type OAuth1Flow = oauth1.Flow
type OAuth2Flow = oauth2.Flow

var (
	WithTokenStore         = core.WithTokenStore
	WithHTTPClient         = core.WithHTTPClient
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetadataSaver      = core.WithMetadataSaver
	WithScopeSaver         = core.WithScopeSaver
	WithResponseNormalizer = core.WithResponseNormalizer
	WithErrorMapper        = core.WithErrorMapper
)

func DefaultOptions() Options {
	return core.DefaultOptions()
}

func NewOptionsRegistry() *OptionsRegistry {
	return core.NewOptionsRegistry()
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return core.NewMemoryTokenStore(core.DefaultTokenTTL)
}

func NewOAuth1Flow(account *Account, options Options, opts ...Option) *OAuth1Flow {
	return oauth1.NewFlow(account, options, opts...)
}

func NewOAuth2Flow(account *Account, options Options, opts ...Option) *OAuth2Flow {
	return oauth2.NewFlow(account, options, opts...)
}

// NewFlow selects the protocol variant from the registered options: a
// request token endpoint means OAuth1, anything else OAuth2.
func NewFlow(account *Account, options Options, opts ...Option) AccountFlow {
	if options.RequestURI != "" {
		return oauth1.NewFlow(account, options, opts...)
	}
	return oauth2.NewFlow(account, options, opts...)
}
