package core

import (
	"context"
	"testing"
)

func TestOptions_WithDefaults(t *testing.T) {
	options := Options{AuthorizeURI: "https://provider.example.com/authorize"}.WithDefaults()

	if options.ScopeSeparator != "," {
		t.Fatalf("expected default scope separator, got %q", options.ScopeSeparator)
	}
	if options.AccessTokenType != "Bearer" {
		t.Fatalf("expected default token type, got %q", options.AccessTokenType)
	}
	if options.Version != "1.0A" {
		t.Fatalf("expected default version, got %q", options.Version)
	}
}

func TestOptions_WithDefaultsKeepsExplicitValues(t *testing.T) {
	options := Options{ScopeSeparator: " ", AccessTokenType: "token"}.WithDefaults()
	if options.ScopeSeparator != " " {
		t.Fatalf("expected explicit separator to survive, got %q", options.ScopeSeparator)
	}
	if options.AccessTokenType != "token" {
		t.Fatalf("expected explicit token type to survive, got %q", options.AccessTokenType)
	}
}

func TestOptions_StateEnabledDefaultsTrue(t *testing.T) {
	if !(Options{}).StateEnabled() {
		t.Fatalf("expected unset use_state to mean enabled")
	}
	if !(Options{}).WithDefaults().StateEnabled() {
		t.Fatalf("expected defaults to keep state enabled")
	}

	disabled := false
	options := Options{UseState: &disabled}.WithDefaults()
	if options.StateEnabled() {
		t.Fatalf("expected explicit opt-out to survive defaults")
	}
}

func TestOptions_Validate(t *testing.T) {
	if err := (Options{}.WithDefaults()).Validate(); err == nil {
		t.Fatalf("expected missing authorize_uri to fail validation")
	}
	if err := validOptions().WithDefaults().Validate(); err != nil {
		t.Fatalf("expected valid options to pass, got %v", err)
	}
}

func TestResolveDeps_Defaults(t *testing.T) {
	deps := ResolveDeps("github")

	if deps.Store == nil {
		t.Fatalf("expected default token store")
	}
	if deps.HTTPClient == nil {
		t.Fatalf("expected default http client")
	}
	if deps.Logger == nil {
		t.Fatalf("expected non-nil logger")
	}
	if deps.ResponseNormalizer == nil {
		t.Fatalf("expected default response normalizer")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
}

func TestResolveDeps_AppliesOptions(t *testing.T) {
	store := NewMemoryTokenStore(0)
	deps := ResolveDeps("github",
		WithTokenStore(store),
		WithMetadataSaver(func(*Account, Response) error { return nil }),
		WithScopeSaver(func(context.Context, *Account, []string) error { return nil }),
	)

	if deps.Store != TokenStore(store) {
		t.Fatalf("expected injected store to win")
	}
	if deps.MetadataSaver == nil {
		t.Fatalf("expected metadata saver to be kept")
	}
	if deps.ScopeSaver == nil {
		t.Fatalf("expected scope saver to be kept")
	}
}

func TestCfgxOptionsProvider_Load(t *testing.T) {
	provider := NewCfgxOptionsProvider(staticRawOptionsLoader{Values: map[string]any{
		"client_id":     "cfg_client",
		"authorize_uri": "https://provider.example.com/authorize",
		"token_uri":     "https://provider.example.com/token",
	}})

	options, err := provider.Load(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if options.ClientID != "cfg_client" {
		t.Fatalf("expected loaded client id, got %q", options.ClientID)
	}
	if options.ScopeSeparator != "," {
		t.Fatalf("expected defaults to backfill, got %q", options.ScopeSeparator)
	}
}

func TestCfgxOptionsProvider_LoadRejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxOptionsProvider(staticRawOptionsLoader{Values: map[string]any{
		"client_id": "cfg_client",
	}})

	if _, err := provider.Load(context.Background(), Options{}); err == nil {
		t.Fatalf("expected validation failure without authorize_uri")
	}
}

func TestGoOptionsResolver_RuntimeWins(t *testing.T) {
	defaults := DefaultOptions()
	defaults.AuthorizeURI = "https://provider.example.com/authorize"

	loaded := Options{ClientID: "cfg_client", TokenURI: "https://provider.example.com/token"}
	runtime := Options{ClientID: "runtime_client"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ClientID != "runtime_client" {
		t.Fatalf("expected runtime layer to win, got %q", resolved.ClientID)
	}
	if resolved.TokenURI != "https://provider.example.com/token" {
		t.Fatalf("expected config layer value to survive, got %q", resolved.TokenURI)
	}
	if resolved.AuthorizeURI != "https://provider.example.com/authorize" {
		t.Fatalf("expected defaults layer value to survive, got %q", resolved.AuthorizeURI)
	}
}
