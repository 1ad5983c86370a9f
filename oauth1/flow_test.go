package oauth1

import (
	"context"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-oauth-accounts/core"
)

func testFlowOptions() core.Options {
	options := core.DefaultOptions()
	options.ClientID = "consumer_1"
	options.ClientSecret = "consumer_secret_1"
	options.RequestURI = "https://provider.example.com/oauth/request_token"
	options.AuthorizeURI = "https://provider.example.com/oauth/authorize"
	options.TokenURI = "https://provider.example.com/oauth/access_token"
	options.InfoURI = "https://api.example.com/me"
	return options
}

func testClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testFlowAccount() *core.Account {
	return &core.Account{
		ID:   "acc_1",
		Name: "twitter",
		Data: &core.AccountData{},
		Environment: core.Environment{
			Host: "app.example.com",
			Now:  testClock,
		},
	}
}

func initializedFlow(t *testing.T, account *core.Account, options core.Options, doer core.HTTPDoer, opts ...core.Option) *Flow {
	t.Helper()
	opts = append([]core.Option{core.WithHTTPClient(doer)}, opts...)
	flow := NewFlow(account, options, opts...)
	if err := flow.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return flow
}

func TestFlow_InitializeDefaultsTrailingSlashRedirect(t *testing.T) {
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), &stubDoer{})
	if flow.Options.RedirectURI != "https://app.example.com/oauth/cb/twitter/" {
		t.Fatalf("unexpected redirect uri: %q", flow.Options.RedirectURI)
	}
}

func TestFlow_InitializePrefersAccountCredentials(t *testing.T) {
	account := testFlowAccount()
	account.Data.ConsumerKey = "own_consumer"
	account.Data.ConsumerSecret = "own_secret"

	flow := initializedFlow(t, account, testFlowOptions(), &stubDoer{})
	if flow.Options.ClientID != "own_consumer" {
		t.Fatalf("expected account consumer key to win, got %q", flow.Options.ClientID)
	}
}

func TestFlow_AuthorizeStoresRequestTokenAndRegistersIt(t *testing.T) {
	store := core.NewMemoryTokenStoreWithClock(0, testClock)
	doer := &stubDoer{body: "oauth_token=rt_1&oauth_token_secret=rts_1"}
	account := testFlowAccount()
	flow := initializedFlow(t, account, testFlowOptions(), doer, core.WithTokenStore(store))

	raw, err := flow.Authorize(context.Background(), []string{"read"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	if got := parsed.Query().Get("oauth_token"); got != "rt_1" {
		t.Fatalf("expected request token in authorize url, got %q", got)
	}

	if account.Data.RequestToken != "rt_1" || account.Data.RequestTokenSecret != "rts_1" {
		t.Fatalf("expected request token stored, got %+v", account.Data)
	}

	entry, err := store.Get(context.Background(), "rt_1")
	if err != nil {
		t.Fatalf("expected registered correlation token: %v", err)
	}
	if entry.AccountID != "acc_1" {
		t.Fatalf("expected token owned by acc_1, got %q", entry.AccountID)
	}
	if !reflect.DeepEqual(entry.Scope, []string{"read"}) {
		t.Fatalf("expected requested scope on token, got %v", entry.Scope)
	}
}

func TestFlow_AuthorizeRejectsMissingToken(t *testing.T) {
	doer := &stubDoer{body: "oauth_callback_confirmed=true"}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), doer)

	if _, err := flow.Authorize(context.Background(), nil); !core.IsProviderError(err) {
		t.Fatalf("expected provider error for missing token, got %v", err)
	}
}

func TestFlow_AuthorizeWrapsProviderFailure(t *testing.T) {
	doer := &stubDoer{status: http.StatusUnauthorized, body: "invalid consumer"}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), doer)

	if _, err := flow.Authorize(context.Background(), nil); !core.IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestFlow_BindCallbackPrefersDeniedParameter(t *testing.T) {
	store := core.NewMemoryTokenStoreWithClock(0, testClock)
	doer := &stubDoer{body: "oauth_token=rt_1&oauth_token_secret=rts_1"}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), doer, core.WithTokenStore(store))

	if _, err := flow.Authorize(context.Background(), nil); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	inbound := testFlowAccount()
	inbound.ID = ""
	inboundFlow := initializedFlow(t, inbound, testFlowOptions(), &stubDoer{}, core.WithTokenStore(store))

	req := core.CallbackRequest{Query: url.Values{
		"denied":      {"rt_1"},
		"oauth_token": {"something_else"},
	}}
	if err := inboundFlow.BindCallback(context.Background(), req); err != nil {
		t.Fatalf("bind callback: %v", err)
	}
	if inbound.ID != "acc_1" {
		t.Fatalf("expected account adoption from denied token, got %q", inbound.ID)
	}
}

func TestFlow_BindCallbackConsumesRequestToken(t *testing.T) {
	store := core.NewMemoryTokenStoreWithClock(0, testClock)
	doer := &stubDoer{body: "oauth_token=rt_1&oauth_token_secret=rts_1"}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), doer, core.WithTokenStore(store))

	if _, err := flow.Authorize(context.Background(), nil); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	req := core.CallbackRequest{Query: url.Values{"oauth_token": {"rt_1"}, "oauth_verifier": {"v_1"}}}
	if err := flow.BindCallback(context.Background(), req); err != nil {
		t.Fatalf("bind callback: %v", err)
	}
	if err := flow.BindCallback(context.Background(), req); !core.IsUnknownToken(err) {
		t.Fatalf("expected replayed token to fail, got %v", err)
	}
}

func TestFlow_CallbackRejectsDenial(t *testing.T) {
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), &stubDoer{})
	req := core.CallbackRequest{Query: url.Values{"denied": {"rt_1"}}}
	if err := flow.Callback(context.Background(), req); !core.IsAccessDenied(err) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestFlow_CallbackExchangesVerifier(t *testing.T) {
	doer := &stubDoer{body: "oauth_token=at_1&oauth_token_secret=ats_1"}
	account := testFlowAccount()
	account.Data.RequestToken = "rt_1"
	account.Data.RequestTokenSecret = "rts_1"
	flow := initializedFlow(t, account, testFlowOptions(), doer)

	req := core.CallbackRequest{Query: url.Values{"oauth_token": {"rt_1"}, "oauth_verifier": {"v_1"}}}
	if err := flow.Callback(context.Background(), req); err != nil {
		t.Fatalf("callback: %v", err)
	}

	if account.Data.AccessToken != "at_1" || account.Data.AccessTokenSecret != "ats_1" {
		t.Fatalf("expected token credentials stored, got %+v", account.Data)
	}
	if account.Data.RequestToken != "" || account.Data.RequestTokenSecret != "" {
		t.Fatalf("expected request token cleared after exchange, got %+v", account.Data)
	}

	header := doer.requests[0].Header.Get("Authorization")
	for _, fragment := range []string{"oauth_token=\"rt_1\"", "oauth_verifier=\"v_1\""} {
		if !strings.Contains(header, fragment) {
			t.Fatalf("expected header to contain %q, got %q", fragment, header)
		}
	}
}

func TestFlow_CallbackRecordsExpiryWhenPresent(t *testing.T) {
	doer := &stubDoer{body: "oauth_token=at_1&oauth_token_secret=ats_1&expires_in=3600"}
	account := testFlowAccount()
	account.Data.RequestToken = "rt_1"
	account.Data.RequestTokenSecret = "rts_1"
	flow := initializedFlow(t, account, testFlowOptions(), doer)

	req := core.CallbackRequest{Query: url.Values{"oauth_token": {"rt_1"}, "oauth_verifier": {"v_1"}}}
	if err := flow.Callback(context.Background(), req); err != nil {
		t.Fatalf("callback: %v", err)
	}
	want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if account.Data.Expire == nil || !account.Data.Expire.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, account.Data.Expire)
	}
}

func TestFlow_CallbackWrapsProviderFailure(t *testing.T) {
	doer := &stubDoer{status: http.StatusUnauthorized, body: "invalid verifier"}
	account := testFlowAccount()
	account.Data.RequestToken = "rt_1"
	account.Data.RequestTokenSecret = "rts_1"
	flow := initializedFlow(t, account, testFlowOptions(), doer)

	req := core.CallbackRequest{Query: url.Values{"oauth_token": {"rt_1"}, "oauth_verifier": {"v_1"}}}
	if err := flow.Callback(context.Background(), req); !core.IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestFlow_TestRunsUserInfoAndMetadataHook(t *testing.T) {
	doer := &stubDoer{body: `{"id":"uid_1"}`, headers: http.Header{"Content-Type": {"application/json"}}}
	account := testFlowAccount()
	account.Data.AccessToken = "at_1"
	account.Data.AccessTokenSecret = "ats_1"
	saver := func(a *core.Account, res core.Response) error {
		a.UID = "uid_1"
		return nil
	}
	flow := initializedFlow(t, account, testFlowOptions(), doer, core.WithMetadataSaver(saver))

	ok, err := flow.Test(context.Background())
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if !ok || account.UID != "uid_1" {
		t.Fatalf("expected metadata populated, got ok=%v uid=%q", ok, account.UID)
	}
}

func TestFlow_GetRequiresTokenCredentials(t *testing.T) {
	doer := &stubDoer{}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), doer)

	if _, err := flow.Get(context.Background(), "https://api.example.com/me"); !core.IsMissingCredentials(err) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
	if len(doer.requests) != 0 {
		t.Fatalf("expected no network traffic, got %d requests", len(doer.requests))
	}
}

func TestFlow_GetRejectsNonJSONResponses(t *testing.T) {
	doer := &stubDoer{body: "<html></html>", headers: http.Header{"Content-Type": {"text/html"}}}
	account := testFlowAccount()
	account.Data.AccessToken = "at_1"
	account.Data.AccessTokenSecret = "ats_1"
	flow := initializedFlow(t, account, testFlowOptions(), doer)

	if _, err := flow.Get(context.Background(), "https://api.example.com/me"); !core.IsInvalidResponseType(err) {
		t.Fatalf("expected invalid response type, got %v", err)
	}
}

func TestFlow_GetRejectsMalformedJSONBody(t *testing.T) {
	doer := &stubDoer{body: `{"id":`, headers: http.Header{"Content-Type": {"application/json"}}}
	account := testFlowAccount()
	account.Data.AccessToken = "at_1"
	account.Data.AccessTokenSecret = "ats_1"
	flow := initializedFlow(t, account, testFlowOptions(), doer)

	if _, err := flow.Get(context.Background(), "https://api.example.com/me"); !core.IsInvalidJSON(err) {
		t.Fatalf("expected invalid json error, got %v", err)
	}
}

func TestFlow_GetReturnsJSONResponses(t *testing.T) {
	doer := &stubDoer{body: `{"id":1}`, headers: http.Header{"Content-Type": {"application/json; charset=utf-8"}}}
	account := testFlowAccount()
	account.Data.AccessToken = "at_1"
	account.Data.AccessTokenSecret = "ats_1"
	flow := initializedFlow(t, account, testFlowOptions(), doer)

	res, err := flow.Get(context.Background(), "https://api.example.com/me")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(res.Body) != `{"id":1}` {
		t.Fatalf("expected raw body, got %q", res.Body)
	}
}

func TestFlow_ErrorsPassThroughConfiguredMapper(t *testing.T) {
	mapper := func(err error) *goerrors.Error {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "account needs relink").WithTextCode("HOST_RELINK")
	}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), &stubDoer{}, core.WithErrorMapper(mapper))

	req := core.CallbackRequest{Query: url.Values{"denied": {"rt_1"}}}
	err := flow.Callback(context.Background(), req)
	var mapped *goerrors.Error
	if !goerrors.As(err, &mapped) {
		t.Fatalf("expected a mapped error, got %v", err)
	}
	if mapped.TextCode != "HOST_RELINK" {
		t.Fatalf("expected mapper to rewrite the error, got %q", mapped.TextCode)
	}
}

func TestFlow_SignedRequestsCarryOptionsVersion(t *testing.T) {
	doer := &stubDoer{body: "oauth_token=rt_1&oauth_token_secret=rts_1"}
	flow := initializedFlow(t, testFlowAccount(), testFlowOptions(), doer)

	if _, err := flow.Authorize(context.Background(), nil); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	header := doer.requests[0].Header.Get("Authorization")
	if !strings.Contains(header, "oauth_version=\"1.0A\"") {
		t.Fatalf("expected options version on the wire, got %q", header)
	}
}
