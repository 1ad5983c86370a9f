package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

const defaultRequestTimeout = 30 * time.Second

type ErrorMapper func(err error) *goerrors.Error

// OptionsProvider loads a provider Options value from host configuration.
type OptionsProvider interface {
	Load(ctx context.Context, defaults Options) (Options, error)
}

// RawOptionsLoader supplies the raw configuration map an OptionsProvider
// builds from.
type RawOptionsLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// OptionsResolver merges default, loaded, and runtime option layers.
type OptionsResolver interface {
	Resolve(defaults Options, loaded Options, runtime Options) (Options, error)
}

// Deps are the resolved collaborators a flow is constructed with. Everything
// is injected; there are no ambient globals.
type Deps struct {
	Store              TokenStore
	HTTPClient         HTTPDoer
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetadataSaver      MetadataFunc
	ScopeSaver         ScopeFunc
	ResponseNormalizer ResponseErrorFunc
	ErrorMapper        ErrorMapper
}

type flowBuilder struct {
	store              TokenStore
	httpClient         HTTPDoer
	logger             Logger
	loggerProvider     LoggerProvider
	metadataSaver      MetadataFunc
	scopeSaver         ScopeFunc
	responseNormalizer ResponseErrorFunc
	errorMapper        ErrorMapper
}

type Option func(*flowBuilder)

func WithTokenStore(store TokenStore) Option {
	return func(b *flowBuilder) {
		b.store = store
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(b *flowBuilder) {
		b.httpClient = client
	}
}

func WithLogger(logger Logger) Option {
	return func(b *flowBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *flowBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetadataSaver(saver MetadataFunc) Option {
	return func(b *flowBuilder) {
		b.metadataSaver = saver
	}
}

func WithScopeSaver(saver ScopeFunc) Option {
	return func(b *flowBuilder) {
		b.scopeSaver = saver
	}
}

func WithResponseNormalizer(normalizer ResponseErrorFunc) Option {
	return func(b *flowBuilder) {
		b.responseNormalizer = normalizer
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *flowBuilder) {
		b.errorMapper = mapper
	}
}

// ResolveDeps applies functional options on top of the default collaborator
// set and resolves a named logger for the flow.
func ResolveDeps(name string, options ...Option) Deps {
	builder := flowBuilder{}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	provider, logger := glog.Resolve("oauth-accounts", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil && strings.TrimSpace(name) != "" {
		if named := provider.GetLogger(name); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.store == nil {
		builder.store = NewMemoryTokenStore(DefaultTokenTTL)
	}
	if builder.httpClient == nil {
		builder.httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if builder.responseNormalizer == nil {
		builder.responseNormalizer = NormalizeResponseError
	}
	if builder.errorMapper == nil {
		builder.errorMapper = accountErrorMapper
	}

	return Deps{
		Store:              builder.store,
		HTTPClient:         builder.httpClient,
		Logger:             logger,
		LoggerProvider:     provider,
		MetadataSaver:      builder.metadataSaver,
		ScopeSaver:         builder.scopeSaver,
		ResponseNormalizer: builder.responseNormalizer,
		ErrorMapper:        builder.errorMapper,
	}
}

type staticRawOptionsLoader struct {
	Values map[string]any
}

func (l staticRawOptionsLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// CfgxOptionsProvider builds provider Options from a raw configuration map
// through cfgx, applying defaults and validation.
type CfgxOptionsProvider struct {
	Loader RawOptionsLoader
}

func NewCfgxOptionsProvider(loader RawOptionsLoader) *CfgxOptionsProvider {
	return &CfgxOptionsProvider{Loader: loader}
}

func (p *CfgxOptionsProvider) Load(ctx context.Context, defaults Options) (Options, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawOptionsLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Options{}, err
	}
	resolved, err := cfgx.Build[Options](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Options]((*Options).Validate),
	)
	if err != nil {
		return Options{}, err
	}
	return resolved, nil
}

// GoOptionsResolver merges defaults, loaded configuration, and runtime
// overrides through a go-options layer stack, runtime winning.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Options, loaded Options, runtime Options) (Options, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			optionsToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			optionsToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			optionsToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Options{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Options{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Options](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Options]((*Options).Validate),
	)
	if err != nil {
		return Options{}, err
	}
	return resolved, nil
}

func optionsToLayerMap(o Options, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setString("client_id", o.ClientID)
	setString("client_secret", o.ClientSecret)
	setString("authorize_uri", o.AuthorizeURI)
	setString("token_uri", o.TokenURI)
	setString("request_uri", o.RequestURI)
	setString("redirect_uri", o.RedirectURI)
	setString("info_uri", o.InfoURI)
	setString("invalidate_uri", o.InvalidateURI)
	setString("scope_separator", o.ScopeSeparator)
	setString("access_token_type", o.AccessTokenType)
	setString("version", o.Version)
	if includeZero || o.UseAuthHeader {
		layer["use_auth_header"] = o.UseAuthHeader
	}
	if includeZero || o.UseState != nil {
		layer["use_state"] = o.StateEnabled()
	}
	if includeZero || o.RefreshToken {
		layer["refresh_token"] = o.RefreshToken
	}
	if includeZero || len(o.CustomHeaders) > 0 {
		layer["custom_headers"] = copyStringMap(o.CustomHeaders)
	}
	if includeZero || len(o.AuthorizeParams) > 0 {
		layer["authorize_params"] = copyStringMap(o.AuthorizeParams)
	}
	return layer
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
