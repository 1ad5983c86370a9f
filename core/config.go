package core

import (
	"fmt"
	"strings"
)

// Options is the per-account protocol configuration surface. Hosts usually
// register one Options value per provider and reuse it for every account of
// that provider; per-account credential overrides live on AccountData.
type Options struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`

	AuthorizeURI  string `koanf:"authorize_uri" mapstructure:"authorize_uri"`
	TokenURI      string `koanf:"token_uri" mapstructure:"token_uri"`
	RequestURI    string `koanf:"request_uri" mapstructure:"request_uri"`
	RedirectURI   string `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	InfoURI       string `koanf:"info_uri" mapstructure:"info_uri"`
	InvalidateURI string `koanf:"invalidate_uri" mapstructure:"invalidate_uri"`

	ScopeSeparator  string `koanf:"scope_separator" mapstructure:"scope_separator"`
	AccessTokenType string `koanf:"access_token_type" mapstructure:"access_token_type"`

	// UseAuthHeader is accepted from provider configurations for
	// compatibility; authenticated calls always send the Authorization
	// header regardless of its value.
	UseAuthHeader bool `koanf:"use_auth_header" mapstructure:"use_auth_header"`

	// UseState is a tri-state flag: nil means enabled. Use StateEnabled to
	// read it.
	UseState        *bool             `koanf:"use_state" mapstructure:"use_state"`
	CustomHeaders   map[string]string `koanf:"custom_headers" mapstructure:"custom_headers"`
	AuthorizeParams map[string]string `koanf:"authorize_params" mapstructure:"authorize_params"`
	RefreshToken    bool              `koanf:"refresh_token" mapstructure:"refresh_token"`

	// Version is the OAuth1 protocol variant, "1.0A" unless overridden.
	Version string `koanf:"version" mapstructure:"version"`
}

// DefaultOptions returns the option set every provider configuration is
// layered on top of.
func DefaultOptions() Options {
	enabled := true
	return Options{
		ScopeSeparator:  ",",
		AccessTokenType: "Bearer",
		UseAuthHeader:   true,
		UseState:        &enabled,
		Version:         "1.0A",
	}
}

// StateEnabled reports whether authorize URLs carry a correlation state.
// Providers opt out explicitly; unset means enabled.
func (o Options) StateEnabled() bool {
	if o.UseState == nil {
		return true
	}
	return *o.UseState
}

// Validate checks the invariants shared by both protocols. Endpoint
// requirements beyond the authorize URI are protocol-specific and enforced by
// the flow constructors.
func (o Options) Validate() error {
	if strings.TrimSpace(o.AuthorizeURI) == "" {
		return fmt.Errorf("core: authorize_uri is required")
	}
	if strings.TrimSpace(o.ScopeSeparator) == "" {
		return fmt.Errorf("core: scope_separator is required")
	}
	return nil
}

// WithDefaults fills zero-valued fields from DefaultOptions. Plain boolean
// flags whose default is false are layered through the options resolver
// instead, since a false value is indistinguishable from unset here.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if strings.TrimSpace(o.ScopeSeparator) == "" {
		o.ScopeSeparator = defaults.ScopeSeparator
	}
	if strings.TrimSpace(o.AccessTokenType) == "" {
		o.AccessTokenType = defaults.AccessTokenType
	}
	if strings.TrimSpace(o.Version) == "" {
		o.Version = defaults.Version
	}
	if o.UseState == nil {
		o.UseState = defaults.UseState
	}
	return o
}
