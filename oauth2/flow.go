package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-oauth-accounts/core"
)

// Flow drives the two-legged OAuth2 dance for one account: authorization
// code exchange plus silent refresh. The host owns the redirect plumbing;
// the flow owns correlation-token registration, token exchange, scope and
// expiry bookkeeping, and error normalization.
type Flow struct {
	core.FlowBase

	client *Client
	deps   core.Deps
}

// NewFlow builds an uninitialized flow for account with the given provider
// options. Call Initialize before any other operation.
func NewFlow(account *core.Account, options core.Options, opts ...core.Option) *Flow {
	deps := core.ResolveDeps(account.Name, opts...)
	flow := &Flow{deps: deps}
	flow.FlowBase = core.NewFlowBase(account, options.WithDefaults(), deps, flow)
	return flow
}

// Initialize resolves the effective client credentials and redirect URI and
// builds the wire client. Per-account consumer keys override the shared app
// credentials, which override the registered provider options.
func (f *Flow) Initialize(_ context.Context) error {
	if f == nil || f.Account == nil {
		return f.mapError(fmt.Errorf("oauth2: account is required"))
	}

	clientID, clientSecret := f.Account.ResolveCredentials()
	if clientID == "" {
		clientID = f.Options.ClientID
	}
	if clientSecret == "" {
		clientSecret = f.Options.ClientSecret
	}
	f.Options.ClientID = clientID
	f.Options.ClientSecret = clientSecret
	if strings.TrimSpace(f.Options.RedirectURI) == "" {
		f.Options.RedirectURI = f.DefaultRedirectURI(false)
	}

	client, err := NewClient(Config{
		ClientID:        f.Options.ClientID,
		ClientSecret:    f.Options.ClientSecret,
		AuthorizeURI:    f.Options.AuthorizeURI,
		TokenURI:        f.Options.TokenURI,
		RedirectURI:     f.Options.RedirectURI,
		CustomHeaders:   f.Options.CustomHeaders,
		AccessTokenType: f.Options.AccessTokenType,
		ScopeSeparator:  f.Options.ScopeSeparator,
		UseState:        f.Options.StateEnabled(),
		HTTPClient:      f.deps.HTTPClient,
	})
	if err != nil {
		return f.mapError(err)
	}
	f.client = client
	return nil
}

// Client exposes the wire client built during Initialize.
func (f *Flow) Client() *Client {
	if f == nil {
		return nil
	}
	return f.client
}

// Authorize merges the account's granted scope with the newly requested
// scope, registers a correlation token under the client state, and returns
// the provider authorize URL. Caller-supplied authorize parameters merge
// last so they can override the defaults.
func (f *Flow) Authorize(ctx context.Context, scope []string) (string, error) {
	if err := f.ensureInitialized(); err != nil {
		return "", f.mapError(err)
	}

	merged := core.MergeScope(f.Account.Scope, scope)

	params := url.Values{}
	params.Set("redirect_uri", f.Options.RedirectURI)
	params.Set("client_id", f.Options.ClientID)
	params.Set("response_type", "code")
	state := f.client.State()
	if state == "" {
		return "", f.mapError(fmt.Errorf("oauth2: state is required to authorize"))
	}
	params.Set("state", state)
	if len(merged) > 0 {
		params.Set("scope", strings.Join(merged, f.Options.ScopeSeparator))
	}
	for key, value := range f.Options.AuthorizeParams {
		params.Set(key, value)
	}

	if err := f.RegisterToken(ctx, state, merged); err != nil {
		f.Logger().Error("oauth2 authorize failed", "account_id", f.Account.ID, "error", err.Error())
		return "", f.mapError(err)
	}

	authorizeURL := f.client.AuthorizeURLFromParams(params)
	f.Logger().Info("oauth2 authorize succeeded", "account_id", f.Account.ID, "scope", strings.Join(merged, ","))
	return authorizeURL, nil
}

// ExtendScope is authorize with additional requested scopes.
func (f *Flow) ExtendScope(ctx context.Context, scope []string) (string, error) {
	return f.Authorize(ctx, scope)
}

// Reauthorize is authorize with the account's current scope.
func (f *Flow) Reauthorize(ctx context.Context) (string, error) {
	return f.Authorize(ctx, nil)
}

// BindCallback consumes the correlation token carried in the inbound
// request's state parameter, adopting the owning account id and granted
// scope. Hosts call this before Callback to route the redirect.
func (f *Flow) BindCallback(ctx context.Context, req core.CallbackRequest) error {
	_, err := f.BindCallbackToken(ctx, req.QueryValue("state"))
	return f.mapError(err)
}

// Callback completes an authorization from the inbound redirect: it rejects
// provider-signaled denial, exchanges the code for tokens, tolerates JSON or
// form-encoded token bodies, stores credentials and expiry, and runs the
// scope reconciliation hook.
func (f *Flow) Callback(ctx context.Context, req core.CallbackRequest) error {
	if err := f.ensureInitialized(); err != nil {
		return f.mapError(err)
	}
	if req.QueryValue("error") == "access_denied" {
		return f.mapError(core.NewAccessDeniedError())
	}

	params := url.Values{}
	params.Set("code", req.QueryValue("code"))
	params.Set("redirect_uri", f.Options.RedirectURI)
	params.Set("grant_type", "authorization_code")

	res, err := f.client.AccessTokenFromParams(ctx, params)
	if normErr := f.responseError(err, &res); normErr != nil {
		f.Logger().Error("oauth2 callback failed", "account_id", f.Account.ID, "error", normErr.Error())
		return f.mapError(normErr)
	}

	payload, err := parseTokenPayload(res)
	if err != nil {
		return f.mapError(err)
	}
	f.saveTokens(payload)
	f.savePayloadExpire(payload)

	if err := f.saveScope(ctx); err != nil {
		return f.mapError(err)
	}
	f.Logger().Info("oauth2 callback succeeded", "account_id", f.Account.ID)
	return nil
}

// RefreshToken exchanges the stored refresh token for fresh credentials and
// returns the raw token payload. Refresh not being configured for the
// provider is a successful no-op.
func (f *Flow) RefreshToken(ctx context.Context) (map[string]string, error) {
	if err := f.ensureInitialized(); err != nil {
		return nil, f.mapError(err)
	}
	if !f.Options.RefreshToken {
		return nil, nil
	}
	payload, err := f.forceRefresh(ctx)
	if err != nil {
		return nil, f.mapError(err)
	}
	return payload, nil
}

// ValidateWithRefreshToken reports whether a refresh was needed: a token
// still valid past now+timeout short-circuits with false and no I/O, anything
// else forces a refresh and updates the stored expiry.
func (f *Flow) ValidateWithRefreshToken(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := f.ensureInitialized(); err != nil {
		return false, f.mapError(err)
	}
	if f.Account.Data != nil && f.Account.Data.Expire != nil {
		if f.Account.Data.Expire.Add(-timeout).After(f.Account.Environment.Clock()) {
			return false, nil
		}
	}

	f.Options.RefreshToken = true
	payload, err := f.forceRefresh(ctx)
	if err != nil {
		return false, f.mapError(err)
	}
	f.savePayloadExpire(payload)
	return true, nil
}

// Test refreshes when configured, performs the user-info call, and feeds the
// response to the metadata hook.
func (f *Flow) Test(ctx context.Context) (bool, error) {
	if _, err := f.RefreshToken(ctx); err != nil {
		return false, err
	}

	res, err := f.GetUserInfo(ctx)
	if err != nil {
		return false, f.mapError(err)
	}
	if err := f.SaveMetadata(res); err != nil {
		return false, f.mapError(err)
	}
	return true, nil
}

// Get performs an authenticated GET, failing without any network call when
// no access token is stored.
func (f *Flow) Get(ctx context.Context, rawurl string) (core.Response, error) {
	if err := f.ensureInitialized(); err != nil {
		return core.Response{}, f.mapError(err)
	}
	if f.accessToken() == "" {
		return core.Response{}, f.mapError(core.NewMissingCredentialsError())
	}
	res, err := f.client.Get(ctx, rawurl, f.accessToken())
	if normErr := f.responseError(err, &res); normErr != nil {
		return core.Response{}, f.mapError(normErr)
	}
	return res, nil
}

// Post performs an authenticated POST, failing without any network call when
// no access token is stored.
func (f *Flow) Post(ctx context.Context, rawurl string, body []byte) (core.Response, error) {
	if err := f.ensureInitialized(); err != nil {
		return core.Response{}, f.mapError(err)
	}
	if f.accessToken() == "" {
		return core.Response{}, f.mapError(core.NewMissingCredentialsError())
	}
	res, err := f.client.Post(ctx, rawurl, body, f.accessToken())
	if normErr := f.responseError(err, &res); normErr != nil {
		return core.Response{}, f.mapError(normErr)
	}
	return res, nil
}

func (f *Flow) forceRefresh(ctx context.Context) (map[string]string, error) {
	if f.Account.Data == nil || strings.TrimSpace(f.Account.Data.RefreshToken) == "" {
		return nil, core.NewMissingRefreshTokenError()
	}

	params := url.Values{}
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", f.Account.Data.RefreshToken)

	res, err := f.client.RefreshTokenFromParams(ctx, params)
	if normErr := f.responseError(err, &res); normErr != nil {
		f.Logger().Error("oauth2 refresh failed", "account_id", f.Account.ID, "error", normErr.Error())
		return nil, normErr
	}

	payload, err := parseTokenPayload(res)
	if err != nil {
		return nil, err
	}
	f.saveTokens(payload)
	f.Logger().Info("oauth2 refresh succeeded", "account_id", f.Account.ID)
	return payload, nil
}

// saveTokens stores the access token and, only when the payload carries one,
// the refresh token: absence never clears a stored refresh token.
func (f *Flow) saveTokens(payload map[string]string) {
	if f.Account.Data == nil {
		f.Account.Data = &core.AccountData{}
	}
	f.Account.Data.AccessToken = payload["access_token"]
	if refresh := strings.TrimSpace(payload["refresh_token"]); refresh != "" {
		f.Account.Data.RefreshToken = refresh
	}
}

func (f *Flow) savePayloadExpire(payload map[string]string) {
	expiresIn, err := strconv.ParseInt(strings.TrimSpace(payload["expires_in"]), 10, 64)
	if err != nil {
		return
	}
	f.Account.SaveExpire(expiresIn)
}

// saveScope runs the scope reconciliation hook. The default trusts the scope
// recorded in the consumed correlation token, which BindCallback already
// adopted onto the account.
func (f *Flow) saveScope(ctx context.Context) error {
	if f.deps.ScopeSaver == nil {
		return nil
	}
	return f.deps.ScopeSaver(ctx, f.Account, append([]string(nil), f.Account.Scope...))
}

// mapError runs flow errors through the configured error mapper so callers
// see consistent categorized errors regardless of where a failure surfaced.
func (f *Flow) mapError(err error) error {
	if err == nil || f == nil {
		return err
	}
	if f.deps.ErrorMapper != nil {
		if mapped := f.deps.ErrorMapper(err); mapped != nil {
			return mapped
		}
	}
	return err
}

func (f *Flow) responseError(err error, res *core.Response) error {
	if f.deps.ResponseNormalizer != nil {
		return f.deps.ResponseNormalizer(err, res)
	}
	return core.NormalizeResponseError(err, res)
}

func (f *Flow) accessToken() string {
	if f.Account.Data == nil {
		return ""
	}
	return strings.TrimSpace(f.Account.Data.AccessToken)
}

func (f *Flow) ensureInitialized() error {
	if f == nil || f.Account == nil {
		return fmt.Errorf("oauth2: account is required")
	}
	if f.client == nil {
		return fmt.Errorf("oauth2: flow is not initialized")
	}
	return nil
}

// parseTokenPayload decodes a token-endpoint body that providers send either
// as JSON or as a form-encoded string.
func parseTokenPayload(res core.Response) (map[string]string, error) {
	body := strings.TrimSpace(string(res.Body))
	if body == "" {
		return map[string]string{}, nil
	}

	if strings.Contains(res.ContentType(), "json") || strings.HasPrefix(body, "{") {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(body), &decoded); err != nil {
			return nil, core.NewInvalidJSONError(err)
		}
		payload := make(map[string]string, len(decoded))
		for key, value := range decoded {
			switch typed := value.(type) {
			case string:
				payload[key] = typed
			case float64:
				payload[key] = strconv.FormatInt(int64(typed), 10)
			case bool:
				payload[key] = strconv.FormatBool(typed)
			case nil:
			default:
				payload[key] = fmt.Sprint(typed)
			}
		}
		return payload, nil
	}

	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, core.NewInvalidJSONError(err)
	}
	payload := make(map[string]string, len(values))
	for key := range values {
		payload[key] = values.Get(key)
	}
	return payload, nil
}

var _ core.AccountFlow = (*Flow)(nil)
var _ core.AuthenticatedCaller = (*Flow)(nil)
