package b2c_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/b2cauth/b2cauth/tokencache"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStateKey = []byte("0123456789abcdef0123456789abcdef")

type testExchanger struct {
	mu    sync.Mutex
	calls int
	token *b2c.Token
	err   error
}

func (e *testExchanger) Exchange(_ context.Context, code string, claims b2c.Claims) (*b2c.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.token, nil
}

type failingCache struct{ b2c.TokenCache }

func (failingCache) Set(context.Context, string, b2c.AccessToken, time.Time) error {
	return errors.New("cache unavailable")
}

type testResponse struct {
	handled  bool
	location string
}

func (r *testResponse) HandleResponse()          { r.handled = true }
func (r *testResponse) Redirect(location string) { r.location = location }

type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func testConfig(t *testing.T) *b2c.Config {
	t.Helper()
	c, err := b2c.NewConfig(
		"https://contoso.b2clogin.com/tfp",
		b2c.TestDomain,
		b2c.TestClientId,
		b2c.TestClientSecret,
		b2c.TestRedirectUrl,
		b2c.TestPolicies(),
		b2c.WithApiScopes(b2c.TestApiScopes),
	)
	require.NoError(t, err)
	return c
}

func testCodec(t *testing.T) *b2c.StateCodec {
	t.Helper()
	codec, err := b2c.NewStateCodec(testStateKey)
	require.NoError(t, err)
	return codec
}

func testDefaultRequest() *b2c.AuthRequest {
	return &b2c.AuthRequest{
		IssuerAddress: "https://contoso.b2clogin.com/contoso.onmicrosoft.com/b2c_1_siupin/oauth2/v2.0/authorize",
		ClientId:      b2c.TestClientId,
		RedirectUri:   b2c.TestRedirectUrl,
		ResponseType:  b2c.ResponseTypeCodeIdToken,
		ResponseMode:  b2c.ResponseModeFormPost,
		Scope:         "openid " + b2c.TestApiScopes,
	}
}

func TestNewOrchestrator(t *testing.T) {
	t.Parallel()
	c := testConfig(t)
	codec := testCodec(t)
	ex := &testExchanger{}
	cache := tokencache.NewMemory()

	tests := []struct {
		name      string
		config    *b2c.Config
		exchanger b2c.Exchanger
		cache     b2c.TokenCache
		codec     *b2c.StateCodec
		opt       []b2c.Option
		wantIsErr error
	}{
		{name: "valid", config: c, exchanger: ex, cache: cache, codec: codec},
		{name: "nil-config", exchanger: ex, cache: cache, codec: codec, wantIsErr: b2c.ErrNilParameter},
		{name: "nil-exchanger", config: c, cache: cache, codec: codec, wantIsErr: b2c.ErrNilParameter},
		{name: "nil-cache", config: c, exchanger: ex, codec: codec, wantIsErr: b2c.ErrNilParameter},
		{name: "nil-codec", config: c, exchanger: ex, cache: cache, wantIsErr: b2c.ErrNilParameter},
		{name: "nil-classifier", config: c, exchanger: ex, cache: cache, codec: codec, opt: []b2c.Option{b2c.WithClassifier(nil)}, wantIsErr: b2c.ErrNilParameter},
		{name: "zero-expiry", config: c, exchanger: ex, cache: cache, codec: codec, opt: []b2c.Option{b2c.WithAttemptExpiry(0)}, wantIsErr: b2c.ErrInvalidParameter},
		{
			name: "non-local-route", config: c, exchanger: ex, cache: cache, codec: codec,
			opt:       []b2c.Option{b2c.WithRoutes(b2c.Routes{ResetPassword: "https://evil.example.com", Cancelled: "/", GenericError: "/error"})},
			wantIsErr: b2c.ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := b2c.NewOrchestrator(tt.config, tt.exchanger, tt.cache, tt.codec, tt.opt...)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(c, got.Config())
			assert.Equal(b2c.DefaultRoutes(), got.Routes())
		})
	}
}

func TestOrchestrator_OnPreRedirect(t *testing.T) {
	t.Parallel()
	c := testConfig(t)
	codec := testCodec(t)
	o, err := b2c.NewOrchestrator(c, &testExchanger{}, tokencache.NewMemory(), codec)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name          string
		props         b2c.Properties
		wantPolicy    string
		wantReturnTo  string
		wantRewritten bool
		wantProps     b2c.Properties
		wantIsErr     error
	}{
		{
			name:       "no-props",
			props:      nil,
			wantPolicy: "B2C_1_SiUpIn",
		},
		{
			name:         "default",
			props:        b2c.Properties{b2c.RedirectUriProperty: "/Home/Api"},
			wantPolicy:   "B2C_1_SiUpIn",
			wantReturnTo: "/Home/Api",
			wantProps:    b2c.Properties{b2c.RedirectUriProperty: "/Home/Api"},
		},
		{
			name:          "reset-password",
			props:         b2c.Properties{b2c.PolicyAuthenticationProperty: "b2c_1_sspr", b2c.RedirectUriProperty: "/"},
			wantPolicy:    "B2C_1_SSPR",
			wantReturnTo:  "/",
			wantRewritten: true,
			wantProps:     b2c.Properties{b2c.RedirectUriProperty: "/"},
		},
		{
			name:          "edit-profile",
			props:         b2c.Properties{b2c.PolicyAuthenticationProperty: "B2C_1_SiPe"},
			wantPolicy:    "B2C_1_SiPe",
			wantRewritten: true,
			wantProps:     b2c.Properties{},
		},
		{
			name:      "unknown-policy",
			props:     b2c.Properties{b2c.PolicyAuthenticationProperty: "B2C_1_Unknown"},
			wantProps: b2c.Properties{b2c.PolicyAuthenticationProperty: "B2C_1_Unknown"},
			wantIsErr: b2c.ErrUnknownPolicy,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			req := testDefaultRequest()
			err := o.OnPreRedirect(ctx, req, tt.props)
			assert.Equal(tt.wantProps, tt.props)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				assert.Empty(req.State)
				assert.Equal(testDefaultRequest(), req)
				return
			}
			require.NoError(err)

			st, err := o.OpenState(req.State)
			require.NoError(err)
			assert.Equal(tt.wantPolicy, st.Policy())
			assert.Equal(tt.wantReturnTo, st.ReturnTo())
			assert.Equal(st.Nonce(), req.Nonce)

			if tt.wantRewritten {
				assert.Equal(b2c.ResponseTypeIdToken, req.ResponseType)
				assert.Equal(b2c.ScopeOpenIdProfile, req.Scope)
				assert.Contains(req.IssuerAddress, "/"+strings.ToLower(tt.wantPolicy)+"/")
				return
			}
			want := testDefaultRequest()
			want.State, want.Nonce = req.State, req.Nonce
			assert.Equal(want, req)
		})
	}

	t.Run("nil-request", func(t *testing.T) {
		assert := assert.New(t)
		err := o.OnPreRedirect(ctx, nil, b2c.Properties{})
		assert.Truef(errors.Is(err, b2c.ErrNilParameter), "wanted \"%s\" but got \"%s\"", b2c.ErrNilParameter, err)
	})
	t.Run("expired-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		past := time.Now().Add(-time.Hour)
		old, err := b2c.NewOrchestrator(c, &testExchanger{}, tokencache.NewMemory(), codec,
			b2c.WithNow(func() time.Time { return past }), b2c.WithAttemptExpiry(time.Minute))
		require.NoError(err)
		req := testDefaultRequest()
		require.NoError(old.OnPreRedirect(ctx, req, nil))
		_, err = o.OpenState(req.State)
		assert.Truef(errors.Is(err, b2c.ErrExpiredState), "wanted \"%s\" but got \"%s\"", b2c.ErrExpiredState, err)
	})
}

func TestOrchestrator_OnCodeReceived(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)
	success := &b2c.Token{Subject: "user-42", AccessToken: "access-token", IdToken: "id-token", Expiry: expiry}
	claims := b2c.Claims{"sub": "user-42"}

	const help = `
# HELP b2c_code_redemptions_total Authorization code redemptions by result.
# TYPE b2c_code_redemptions_total counter
`
	tests := []struct {
		name        string
		exchanger   *testExchanger
		failCache   bool
		want        *b2c.Token
		wantCached  bool
		wantIsErr   error
		wantMessage string
		wantMetric  string
	}{
		{
			name:       "success",
			exchanger:  &testExchanger{token: success},
			want:       success,
			wantCached: true,
			wantMetric: `b2c_code_redemptions_total{result="success"} 1`,
		},
		{
			name:        "reauth-required",
			exchanger:   &testExchanger{err: fmt.Errorf("Provider.Exchange: %w", b2c.ErrReauthRequired)},
			wantIsErr:   b2c.ErrReauthRequired,
			wantMessage: b2c.MessageReauthRequired,
			wantMetric:  `b2c_code_redemptions_total{result="reauth_required"} 1`,
		},
		{
			name:        "token-endpoint-error",
			exchanger:   &testExchanger{err: fmt.Errorf("Provider.Exchange: %w", b2c.ErrTokenEndpoint)},
			wantIsErr:   b2c.ErrTokenEndpoint,
			wantMessage: b2c.MessageSignInFailed,
			wantMetric:  `b2c_code_redemptions_total{result="error"} 1`,
		},
		{
			name:        "missing-identity-claim",
			exchanger:   &testExchanger{err: fmt.Errorf("Provider.Exchange: %w", b2c.ErrMissingIdentityClaim)},
			wantIsErr:   b2c.ErrMissingIdentityClaim,
			wantMessage: b2c.MessageSignInFailed,
			wantMetric:  `b2c_code_redemptions_total{result="error"} 1`,
		},
		{
			name:       "cache-write-fails",
			exchanger:  &testExchanger{token: success},
			failCache:  true,
			want:       success,
			wantMetric: `b2c_code_redemptions_total{result="cache_error"} 1`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			reg := prometheus.NewRegistry()
			m, err := b2c.NewMetrics(reg)
			require.NoError(err)

			mem := tokencache.NewMemory()
			var cache b2c.TokenCache = mem
			if tt.failCache {
				cache = failingCache{mem}
			}
			o, err := b2c.NewOrchestrator(testConfig(t), tt.exchanger, cache, testCodec(t), b2c.WithMetrics(m))
			require.NoError(err)

			got, err := o.OnCodeReceived(ctx, "code", claims)
			assert.Equal(1, tt.exchanger.calls)
			require.NoError(testutil.GatherAndCompare(reg, strings.NewReader(help+tt.wantMetric+"\n"), "b2c_code_redemptions_total"))

			cached, ok, cacheErr := o.AccessToken(ctx, "user-42")
			require.NoError(cacheErr)
			assert.Equal(tt.wantCached, ok)
			if tt.wantCached {
				assert.Equal(b2c.AccessToken("access-token"), cached)
			}

			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				assert.Equal(tt.wantMessage, b2c.DisplayMessage(err))
				assert.Equal(0, mem.Len())
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestOrchestrator_OnRemoteFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	customRoutes := b2c.Routes{ResetPassword: "/reset", Cancelled: "/home", GenericError: "/oops"}

	tests := []struct {
		name         string
		failure      *b2c.RemoteFailure
		opt          []b2c.Option
		want         b2c.RecoveryAction
		wantLocation string
		wantMatched  string
		wantWarn     bool
	}{
		{
			name:         "forgot-password",
			failure:      b2c.NewProtocolFailure("access_denied", "AADB2C90118: The user has forgotten their password.", ""),
			want:         b2c.RedirectToResetPassword,
			wantLocation: "/Account/ResetPassword",
			wantMatched:  "true",
		},
		{
			name:         "cancelled",
			failure:      b2c.NewProtocolFailure("access_denied", "AADB2C90091: The user has cancelled.", ""),
			want:         b2c.RedirectToCancelled,
			wantLocation: "/",
			wantMatched:  "true",
		},
		{
			name:         "unrecognized",
			failure:      b2c.NewProtocolFailure("server_error", "AADB2C99999: reworded", ""),
			want:         b2c.RedirectToGenericError,
			wantLocation: "/Home/Error",
			wantMatched:  "false",
			wantWarn:     true,
		},
		{
			name:         "generic",
			failure:      b2c.NewGenericFailure(b2c.ErrInvalidState),
			want:         b2c.RedirectToGenericError,
			wantLocation: "/Home/Error",
			wantMatched:  "false",
		},
		{
			name:         "nil-failure",
			failure:      nil,
			want:         b2c.RedirectToGenericError,
			wantLocation: "/Home/Error",
			wantMatched:  "false",
		},
		{
			name:         "custom-routes",
			failure:      b2c.NewProtocolFailure("access_denied", "AADB2C90118", ""),
			opt:          []b2c.Option{b2c.WithRoutes(customRoutes)},
			want:         b2c.RedirectToResetPassword,
			wantLocation: "/reset",
			wantMatched:  "true",
		},
		{
			name:    "custom-classifier",
			failure: b2c.NewProtocolFailure("temporarily_unavailable", "", ""),
			opt: []b2c.Option{b2c.WithClassifier(b2c.NewRuleClassifier(
				b2c.Rule{Contains: "temporarily_unavailable", Action: b2c.RedirectToCancelled},
			))},
			want:         b2c.RedirectToCancelled,
			wantLocation: "/",
			wantMatched:  "true",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			var logs syncBuffer
			logger := hclog.New(&hclog.LoggerOptions{Output: &logs, Level: hclog.Debug})
			reg := prometheus.NewRegistry()
			m, err := b2c.NewMetrics(reg)
			require.NoError(err)
			opts := append([]b2c.Option{b2c.WithMetrics(m), b2c.WithLogger(logger)}, tt.opt...)
			o, err := b2c.NewOrchestrator(testConfig(t), &testExchanger{}, tokencache.NewMemory(), testCodec(t), opts...)
			require.NoError(err)

			resp := &testResponse{}
			got := o.OnRemoteFailure(ctx, tt.failure, resp)
			assert.Equal(tt.want, got)
			assert.True(resp.handled)
			assert.Equal(tt.wantLocation, resp.location)

			want := fmt.Sprintf(`
# HELP b2c_remote_failures_total Remote authentication failures by recovery action and whether a classification rule matched.
# TYPE b2c_remote_failures_total counter
b2c_remote_failures_total{action="%s",matched="%s"} 1
`, tt.want, tt.wantMatched)
			require.NoError(testutil.GatherAndCompare(reg, strings.NewReader(want), "b2c_remote_failures_total"))

			if tt.wantWarn {
				assert.Contains(logs.String(), "[WARN]")
				assert.Contains(logs.String(), "orchestrator: unrecognized provider error")
			} else {
				assert.NotContains(logs.String(), "[WARN]")
			}
		})
	}

	t.Run("nil-response", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		o, err := b2c.NewOrchestrator(testConfig(t), &testExchanger{}, tokencache.NewMemory(), testCodec(t))
		require.NoError(err)
		assert.Equal(b2c.RedirectToCancelled, o.OnRemoteFailure(ctx, b2c.NewProtocolFailure("access_denied", "", ""), nil))
	})
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	reg := prometheus.NewRegistry()
	_, err := b2c.NewMetrics(reg)
	require.NoError(err)
	_, err = b2c.NewMetrics(reg)
	assert.Error(err)

	m, err := b2c.NewMetrics(nil)
	require.NoError(err)
	assert.NotNil(m)
}

func TestAttemptStatus(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	path := []b2c.AttemptStatus{b2c.Anonymous, b2c.ChallengeIssued, b2c.CodeReceived, b2c.Authenticated}
	for i := 1; i < len(path); i++ {
		assert.Truef(path[i-1].CanTransitionTo(path[i]), "%s -> %s", path[i-1], path[i])
	}
	recovery := []b2c.AttemptStatus{b2c.Anonymous, b2c.ChallengeIssued, b2c.RemoteFailed, b2c.RedirectedForRecovery}
	for i := 1; i < len(recovery); i++ {
		assert.Truef(recovery[i-1].CanTransitionTo(recovery[i]), "%s -> %s", recovery[i-1], recovery[i])
	}
	assert.False(b2c.Anonymous.CanTransitionTo(b2c.Authenticated))
	assert.False(b2c.Authenticated.CanTransitionTo(b2c.ChallengeIssued))
	assert.False(b2c.RemoteFailed.CanTransitionTo(b2c.Authenticated))
	assert.True(b2c.Authenticated.Terminal())
	assert.True(b2c.RedirectedForRecovery.Terminal())
	assert.False(b2c.CodeReceived.Terminal())
	assert.Equal("challenge_issued", b2c.ChallengeIssued.String())
	assert.Equal("unknown(42)", b2c.AttemptStatus(42).String())
}

func TestDisplayMessage(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Empty(b2c.DisplayMessage(nil))
	assert.Equal(b2c.MessageReauthRequired, b2c.DisplayMessage(fmt.Errorf("x: %w", b2c.ErrReauthRequired)))
	assert.Equal(b2c.MessageSignInFailed, b2c.DisplayMessage(b2c.ErrTokenEndpoint))
	assert.Equal(b2c.MessageSignInFailed, b2c.DisplayMessage(errors.New("boom")))
}

// testAuthorize follows req at the test provider and returns the response
// parameters sent back to the redirect URI.
func testAuthorize(t *testing.T, p *b2c.Provider, req *b2c.AuthRequest) url.Values {
	t.Helper()
	require := require.New(t)
	req.ResponseMode = b2c.ResponseModeQuery
	authURL, err := req.URL()
	require.NoError(err)

	client, err := p.Config().HttpClient()
	require.NoError(err)
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return loc.Query()
}

func TestOrchestrator_flows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*b2c.TestProvider, *b2c.Provider, *b2c.Orchestrator, *tokencache.Memory) {
		t.Helper()
		tp := b2c.StartTestProvider(t)
		p, err := b2c.NewProvider(tp.TestConfig())
		require.NoError(t, err)
		t.Cleanup(p.Done)
		cache := tokencache.NewMemory()
		o, err := b2c.NewOrchestrator(p.Config(), p, cache, testCodec(t))
		require.NoError(t, err)
		return tp, p, o, cache
	}

	t.Run("sign-in-redeems-and-caches", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p, o, cache := setup(t)

		req, err := p.AuthRequest()
		require.NoError(err)
		require.NoError(o.OnPreRedirect(ctx, req, b2c.Properties{b2c.RedirectUriProperty: "/Home/Api"}))
		resp := testAuthorize(t, p, req)
		require.Empty(resp.Get("error"))

		st, err := o.OpenState(resp.Get("state"))
		require.NoError(err)
		assert.Equal("/Home/Api", st.ReturnTo())
		claims, err := p.VerifyIdToken(ctx, st.Policy(), b2c.IdToken(resp.Get("id_token")), st.Nonce())
		require.NoError(err)

		tk, err := o.OnCodeReceived(ctx, resp.Get("code"), claims)
		require.NoError(err)
		assert.Equal(b2c.TestReplySubject, tk.Subject)

		cached, ok, err := cache.Get(ctx, b2c.TestReplySubject)
		require.NoError(err)
		assert.True(ok)
		assert.Equal(tk.AccessToken, cached)

		_, scope := tp.LastTokenRequest()
		assert.Equal(b2c.TestApiScopes, scope)

		// the code is spent: presenting it again requires signing in again
		// and leaves the cached token alone
		_, err = o.OnCodeReceived(ctx, resp.Get("code"), claims)
		require.Error(err)
		assert.Truef(errors.Is(err, b2c.ErrReauthRequired), "wanted \"%s\" but got \"%s\"", b2c.ErrReauthRequired, err)
		assert.Equal(b2c.MessageReauthRequired, b2c.DisplayMessage(err))
		cached, _, err = cache.Get(ctx, b2c.TestReplySubject)
		require.NoError(err)
		assert.Equal(tk.AccessToken, cached)
		assert.Equal(2, tp.Redemptions())
	})

	t.Run("reset-password-challenge", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p, o, cache := setup(t)

		req, err := p.AuthRequest()
		require.NoError(err)
		props := b2c.Properties{}
		props.SetPolicy(tp.Policies().ResetPassword)
		require.NoError(o.OnPreRedirect(ctx, req, props))
		assert.Empty(props.Policy())

		resp := testAuthorize(t, p, req)
		policy, q := tp.LastAuthorizeRequest()
		assert.Equal(strings.ToLower(tp.Policies().ResetPassword), policy)
		assert.Equal(b2c.ResponseTypeIdToken, q.Get("response_type"))
		assert.Equal(b2c.ScopeOpenIdProfile, q.Get("scope"))
		assert.Empty(resp.Get("code"))

		st, err := o.OpenState(resp.Get("state"))
		require.NoError(err)
		assert.Equal(tp.Policies().ResetPassword, st.Policy())
		claims, err := p.VerifyIdToken(ctx, st.Policy(), b2c.IdToken(resp.Get("id_token")), st.Nonce())
		require.NoError(err)
		assert.Equal(tp.Policies().ResetPassword, claims.String("tfp"))
		assert.Equal(0, cache.Len())
		assert.Equal(0, tp.Redemptions())
	})

	t.Run("forgot-password-on-sign-in", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p, o, _ := setup(t)
		tp.SetAuthError("access_denied", "AADB2C90118: The user has forgotten their password.")

		req, err := p.AuthRequest()
		require.NoError(err)
		require.NoError(o.OnPreRedirect(ctx, req, nil))
		resp := testAuthorize(t, p, req)

		w := &testResponse{}
		action := o.OnRemoteFailure(ctx, b2c.NewProtocolFailure(resp.Get("error"), resp.Get("error_description"), resp.Get("error_uri")), w)
		assert.Equal(b2c.RedirectToResetPassword, action)
		assert.Equal("/Account/ResetPassword", w.location)
		assert.True(w.handled)
	})

	t.Run("user-cancels", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p, o, _ := setup(t)
		tp.SetAuthError("access_denied", "AADB2C90091: The user has cancelled entering self-asserted information.")

		req, err := p.AuthRequest()
		require.NoError(err)
		require.NoError(o.OnPreRedirect(ctx, req, nil))
		resp := testAuthorize(t, p, req)

		w := &testResponse{}
		action := o.OnRemoteFailure(ctx, b2c.NewProtocolFailure(resp.Get("error"), resp.Get("error_description"), resp.Get("error_uri")), w)
		assert.Equal(b2c.RedirectToCancelled, action)
		assert.Equal("/", w.location)
	})
}
