package oauth1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-oauth-accounts/core"
)

// Flow drives the three-legged OAuth1 dance for one account: temporary
// credentials, user authorization, and the verifier exchange. The request
// token doubles as the correlation token, so the host can route the inbound
// callback by its oauth_token (or denied) parameter.
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

// Initialize resolves the effective consumer credentials and callback URI and
// builds the signed wire client. Per-account consumer keys override the
// shared app credentials, which override the registered provider options.
func (f *Flow) Initialize(_ context.Context) error {
	if f == nil || f.Account == nil {
		return f.mapError(fmt.Errorf("oauth1: account is required"))
	}

	consumerKey, consumerSecret := f.Account.ResolveCredentials()
	if consumerKey == "" {
		consumerKey = f.Options.ClientID
	}
	if consumerSecret == "" {
		consumerSecret = f.Options.ClientSecret
	}
	f.Options.ClientID = consumerKey
	f.Options.ClientSecret = consumerSecret
	if strings.TrimSpace(f.Options.RedirectURI) == "" {
		f.Options.RedirectURI = f.DefaultRedirectURI(true)
	}

	client, err := NewClient(Config{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		RequestURI:     f.Options.RequestURI,
		AccessURI:      f.Options.TokenURI,
		AuthorizeURI:   f.Options.AuthorizeURI,
		CallbackURI:    f.Options.RedirectURI,
		CustomHeaders:  f.Options.CustomHeaders,
		Version:        f.Options.Version,
		HTTPClient:     f.deps.HTTPClient,
		Clock:          f.Account.Environment.Now,
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

// Authorize obtains temporary credentials, records them on the account,
// registers the request token as the correlation token, and returns the user
// authorize URL. The protocol carries no scope on the wire; the requested
// scope still merges onto the account and travels with the correlation token.
func (f *Flow) Authorize(ctx context.Context, scope []string) (string, error) {
	if err := f.ensureInitialized(); err != nil {
		return "", f.mapError(err)
	}

	merged := core.MergeScope(f.Account.Scope, scope)

	res, err := f.client.RequestToken(ctx)
	if normErr := f.responseError(err, &res); normErr != nil {
		f.Logger().Error("oauth1 authorize failed", "account_id", f.Account.ID, "error", normErr.Error())
		return "", f.mapError(normErr)
	}

	payload, err := parseFormPayload(res)
	if err != nil {
		return "", f.mapError(err)
	}
	requestToken := payload["oauth_token"]
	if requestToken == "" {
		return "", f.mapError(core.NewProviderError(res.StatusCode, res.Body))
	}

	if f.Account.Data == nil {
		f.Account.Data = &core.AccountData{}
	}
	f.Account.Data.RequestToken = requestToken
	f.Account.Data.RequestTokenSecret = payload["oauth_token_secret"]
	f.Account.Scope = merged

	if err := f.RegisterToken(ctx, requestToken, merged); err != nil {
		f.Logger().Error("oauth1 authorize failed", "account_id", f.Account.ID, "error", err.Error())
		return "", f.mapError(err)
	}

	f.Logger().Info("oauth1 authorize succeeded", "account_id", f.Account.ID)
	return f.client.AuthorizeURL(requestToken), nil
}

// BindCallback consumes the correlation token carried in the inbound request,
// adopting the owning account id and scope. A denied parameter identifies the
// token for rejected authorizations and takes precedence over oauth_token.
func (f *Flow) BindCallback(ctx context.Context, req core.CallbackRequest) error {
	token := req.QueryValue("denied")
	if token == "" {
		token = req.QueryValue("oauth_token")
	}
	_, err := f.BindCallbackToken(ctx, token)
	return f.mapError(err)
}

// Callback completes an authorization from the inbound redirect: it rejects
// user denial, exchanges the verifier for token credentials using the stored
// request token secret, and stores the result.
func (f *Flow) Callback(ctx context.Context, req core.CallbackRequest) error {
	if err := f.ensureInitialized(); err != nil {
		return f.mapError(err)
	}
	if req.QueryValue("denied") != "" {
		return f.mapError(core.NewAccessDeniedError())
	}

	requestToken := req.QueryValue("oauth_token")
	verifier := req.QueryValue("oauth_verifier")
	requestSecret := ""
	if f.Account.Data != nil {
		if requestToken == "" {
			requestToken = f.Account.Data.RequestToken
		}
		requestSecret = f.Account.Data.RequestTokenSecret
	}

	res, err := f.client.AccessToken(ctx, requestToken, requestSecret, verifier)
	if normErr := f.responseError(err, &res); normErr != nil {
		f.Logger().Error("oauth1 callback failed", "account_id", f.Account.ID, "error", normErr.Error())
		return f.mapError(normErr)
	}

	payload, err := parseFormPayload(res)
	if err != nil {
		return f.mapError(err)
	}
	accessToken := payload["oauth_token"]
	if accessToken == "" {
		return f.mapError(core.NewProviderError(res.StatusCode, res.Body))
	}

	if f.Account.Data == nil {
		f.Account.Data = &core.AccountData{}
	}
	f.Account.Data.AccessToken = accessToken
	f.Account.Data.AccessTokenSecret = payload["oauth_token_secret"]
	f.Account.Data.RequestToken = ""
	f.Account.Data.RequestTokenSecret = ""
	if expiresIn, convErr := strconv.ParseInt(payload["expires_in"], 10, 64); convErr == nil {
		f.Account.SaveExpire(expiresIn)
	}

	f.Logger().Info("oauth1 callback succeeded", "account_id", f.Account.ID)
	return nil
}

// Test performs the user-info call and feeds the response to the metadata
// hook. OAuth1 credentials do not expire, so there is nothing to refresh.
func (f *Flow) Test(ctx context.Context) (bool, error) {
	res, err := f.GetUserInfo(ctx)
	if err != nil {
		return false, f.mapError(err)
	}
	if err := f.SaveMetadata(res); err != nil {
		return false, f.mapError(err)
	}
	return true, nil
}

// Get performs a signed GET, failing without any network call when no token
// credentials are stored. Responses must be JSON; providers that answer with
// another media type fail with an invalid-response-type error.
func (f *Flow) Get(ctx context.Context, rawurl string) (core.Response, error) {
	if err := f.ensureInitialized(); err != nil {
		return core.Response{}, f.mapError(err)
	}
	token, secret := f.tokenCredentials()
	if token == "" {
		return core.Response{}, f.mapError(core.NewMissingCredentialsError())
	}

	res, err := f.client.Get(ctx, rawurl, token, secret)
	if normErr := f.responseError(err, &res); normErr != nil {
		return core.Response{}, f.mapError(normErr)
	}
	if !strings.Contains(res.ContentType(), "json") {
		return core.Response{}, f.mapError(core.NewInvalidResponseTypeError(res.ContentType()))
	}
	if len(res.Body) > 0 && !json.Valid(res.Body) {
		return core.Response{}, f.mapError(core.NewInvalidJSONError(nil))
	}
	return res, nil
}

// Post performs a signed POST with a JSON body under the stored token
// credentials.
func (f *Flow) Post(ctx context.Context, rawurl string, body []byte) (core.Response, error) {
	if err := f.ensureInitialized(); err != nil {
		return core.Response{}, f.mapError(err)
	}
	token, secret := f.tokenCredentials()
	if token == "" {
		return core.Response{}, f.mapError(core.NewMissingCredentialsError())
	}

	res, err := f.client.Post(ctx, rawurl, body, token, secret)
	if normErr := f.responseError(err, &res); normErr != nil {
		return core.Response{}, f.mapError(normErr)
	}
	return res, nil
}

func (f *Flow) tokenCredentials() (string, string) {
	if f.Account.Data == nil {
		return "", ""
	}
	return strings.TrimSpace(f.Account.Data.AccessToken), f.Account.Data.AccessTokenSecret
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

func (f *Flow) ensureInitialized() error {
	if f == nil || f.Account == nil {
		return fmt.Errorf("oauth1: account is required")
	}
	if f.client == nil {
		return fmt.Errorf("oauth1: flow is not initialized")
	}
	return nil
}

// parseFormPayload decodes the form-encoded token responses OAuth1 providers
// return from the request and access token endpoints.
func parseFormPayload(res core.Response) (map[string]string, error) {
	body := strings.TrimSpace(string(res.Body))
	if body == "" {
		return map[string]string{}, nil
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
