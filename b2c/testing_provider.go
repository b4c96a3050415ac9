package b2c

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/b2cauth/b2cauth/b2c/internal/strutils"
	"github.com/b2cauth/b2cauth/sdk/id"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// Default values used by a TestProvider.
const (
	TestDomain         = "contoso.onmicrosoft.com"
	TestClientId       = "test-client-id"
	TestClientSecret   = "test-client-secret"
	TestRedirectUrl    = "https://app.example.com/signin-oidc"
	TestApiScopes      = "https://contoso.onmicrosoft.com/api/demo.read https://contoso.onmicrosoft.com/api/demo.write"
	TestReplySubject   = "user-42"
	TestAccessTokenTTL = time.Hour
)

// TestPolicies returns the policies served by a default TestProvider.
func TestPolicies() Policies {
	return Policies{
		SignUpSignIn:  "B2C_1_SiUpIn",
		EditProfile:   "B2C_1_SiPe",
		ResetPassword: "B2C_1_SSPR",
	}
}

// TestProvider is a local TLS server which mimics a tenant's policies:
// per-policy discovery, keys, authorize and token endpoints. The endpoints
// live under /{domain}/{policy}/ and match the policy without regard to case.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	domain     string
	policies   Policies

	jwks          *jose.JSONWebKeySet
	keyID         string
	rsaPublicKey  string
	rsaPrivateKey string

	mu                  sync.Mutex
	clientId            string
	clientSecret        string
	allowedRedirectURIs []string
	replySubject        string
	customClaims        map[string]interface{}
	tenantIssuer        string
	accessTokenTTL      time.Duration
	authError           *testErrorReply
	tokenError          *testErrorReply
	grants              map[string]testGrant
	redeemed            map[string]bool
	redemptions         int
	lastTokenScope      string
	lastTokenPolicy     string
	lastAuthorizePolicy string
	lastAuthorize       url.Values

	t *testing.T
}

type testErrorReply struct {
	status      int
	code        string
	description string
}

type testGrant struct {
	policy string
	nonce  string
}

// StartTestProvider creates a disposable TestProvider for TestDomain and
// TestPolicies, with TestClientId/TestClientSecret as the client's
// credentials and TestRedirectUrl as the only allowed redirect URI.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		domain:              TestDomain,
		policies:            TestPolicies(),
		clientId:            TestClientId,
		clientSecret:        TestClientSecret,
		allowedRedirectURIs: []string{TestRedirectUrl},
		replySubject:        TestReplySubject,
		accessTokenTTL:      TestAccessTokenTTL,
		grants:              map[string]testGrant{},
		redeemed:            map[string]bool{},
		keyID:               "test-key",
		t:                   t,
	}
	p.rsaPublicKey, p.rsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.rsaPublicKey, p.keyID)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the base URL of the test provider, which is the instance of
// its tenant.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.rsaPublicKey, p.rsaPrivateKey
}

// Domain returns the test provider's tenant domain.
func (p *TestProvider) Domain() string { return p.domain }

// Policies returns the test provider's policies.
func (p *TestProvider) Policies() Policies { return p.policies }

// TestConfig returns a valid Config for the test provider. opt are applied
// after the provider's defaults, so they can override them.
func (p *TestProvider) TestConfig(opt ...Option) *Config {
	p.t.Helper()
	p.mu.Lock()
	clientId, clientSecret, redirect := p.clientId, p.clientSecret, p.allowedRedirectURIs[0]
	p.mu.Unlock()
	opts := append([]Option{WithApiScopes(TestApiScopes), WithProviderCA(p.caCert)}, opt...)
	c, err := NewConfig(p.Addr(), p.domain, clientId, ClientSecret(clientSecret), redirect, p.policies, opts...)
	require.NoError(p.t, err)
	return c
}

// SetClientCreds configures the client credentials the token endpoint
// accepts.
func (p *TestProvider) SetClientCreds(clientId, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientId = clientId
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs configures the allowed redirect URIs.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetReplySubject configures the sub claim of issued tokens.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims lets you set additional claims for issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetTenantIssuer makes every policy report, and sign tokens with, one
// tenant wide issuer instead of the policy's authority.
func (p *TestProvider) SetTenantIssuer(issuer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenantIssuer = issuer
}

// SetAccessTokenTTL configures the expires_in of redeemed tokens. Zero omits
// expires_in.
func (p *TestProvider) SetAccessTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenTTL = d
}

// SetAuthError makes the authorize endpoint reply with the error. An empty
// code clears it.
func (p *TestProvider) SetAuthError(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code == "" {
		p.authError = nil
		return
	}
	p.authError = &testErrorReply{code: code, description: description}
}

// SetTokenError makes the token endpoint reply with status and the error. A
// zero status clears it.
func (p *TestProvider) SetTokenError(status int, code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == 0 {
		p.tokenError = nil
		return
	}
	p.tokenError = &testErrorReply{status: status, code: code, description: description}
}

// Redemptions returns the number of requests made to the token endpoint.
func (p *TestProvider) Redemptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.redemptions
}

// LastTokenRequest returns the policy and scope of the last token request.
func (p *TestProvider) LastTokenRequest() (policy, scope string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTokenPolicy, p.lastTokenScope
}

// LastAuthorizeRequest returns the policy path segment and the query of the
// last authorize request.
func (p *TestProvider) LastAuthorizeRequest() (policy string, q url.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthorizePolicy, p.lastAuthorize
}

// Issuer returns the issuer of policy's tokens.
func (p *TestProvider) Issuer(policy string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issuer(policy)
}

func (p *TestProvider) issuer(policy string) string {
	if p.tenantIssuer != "" {
		return p.tenantIssuer
	}
	return strings.Join([]string{p.Addr(), p.domain, policy, AuthorityVersion}, "/")
}

// IssueIdToken signs an id_token for policy which carries nonce, as the
// authorize endpoint would.
func (p *TestProvider) IssueIdToken(policy, nonce string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idToken(policy, nonce)
}

// IssueCode registers a new authorization code for policy and returns it.
func (p *TestProvider) IssueCode(policy string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newCode(policy, "")
}

func (p *TestProvider) idToken(policy, nonce string) string {
	now := time.Now()
	claims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.issuer(policy),
		Audience:  jwt.Audience{p.clientId},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	private := map[string]interface{}{
		"tfp":  policy,
		"name": "Test User",
	}
	if nonce != "" {
		private["nonce"] = nonce
	}
	for k, v := range p.customClaims {
		private[k] = v
	}
	return TestSignJWT(p.t, p.rsaPrivateKey, p.keyID, claims, private)
}

func (p *TestProvider) newCode(policy, nonce string) string {
	code, err := id.New("code")
	require.NoError(p.t, err)
	p.grants[code] = testGrant{policy: policy, nonce: nonce}
	return code
}

func (p *TestProvider) canonicalPolicy(s string) (string, bool) {
	for _, policy := range p.policies.List() {
		if strings.EqualFold(policy, s) {
			return policy, true
		}
	}
	return "", false
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(&body)
}

var testFormPostTmpl = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $k, $v := .Fields}}<input type="hidden" name="{{$k}}" id="{{$k}}" value="{{$v}}"/>
{{end}}</form>
</body>
</html>`))

// writeAuthResponse returns fields to redirectURI using the requested
// response mode.
func (p *TestProvider) writeAuthResponse(w http.ResponseWriter, req *http.Request, redirectURI, responseMode string, fields map[string]string) {
	if responseMode == ResponseModeFormPost {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = testFormPostTmpl.Execute(w, struct {
			Action string
			Fields map[string]string
		}{redirectURI, fields})
		return
	}
	u, err := url.Parse(redirectURI)
	require.NoError(p.t, err)
	q := u.Query()
	for k, v := range fields {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	parts := strings.SplitN(strings.Trim(req.URL.Path, "/"), "/", 3)
	if len(parts) != 3 || !strings.EqualFold(parts[0], p.domain) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	policy, ok := p.canonicalPolicy(parts[1])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	base := strings.Join([]string{p.Addr(), p.domain, strings.ToLower(policy)}, "/")

	switch parts[2] {
	case AuthorityVersion + "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			EndSessionEndpoint string   `json:"end_session_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			ResponseModes      []string `json:"response_modes_supported"`
			ResponseTypes      []string `json:"response_types_supported"`
			Algs               []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:             p.issuer(policy),
			AuthEndpoint:       base + "/oauth2/v2.0/authorize",
			TokenEndpoint:      base + "/oauth2/v2.0/token",
			EndSessionEndpoint: base + "/oauth2/v2.0/logout",
			JWKSURI:            base + "/discovery/v2.0/keys",
			ResponseModes:      []string{ResponseModeQuery, "fragment", ResponseModeFormPost},
			ResponseTypes:      []string{"code", ResponseTypeCodeIdToken, ResponseTypeIdToken, "code token", "token id_token", "token"},
			Algs:               []string{string(RS256)},
		}
		_ = p.writeJSON(w, &reply)

	case "discovery/v2.0/keys":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "oauth2/v2.0/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		p.lastAuthorizePolicy = parts[1]
		p.lastAuthorize = qv

		redirectURI := qv.Get("redirect_uri")
		if !strutils.StrListContains(p.allowedRedirectURIs, redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("redirect_uri is not allowed"))
			return
		}
		mode := qv.Get("response_mode")
		fail := func(code, description string) {
			p.writeAuthResponse(w, req, redirectURI, mode, map[string]string{
				"state":             qv.Get("state"),
				"error":             code,
				"error_description": description,
			})
		}
		responseType := strings.Fields(qv.Get("response_type"))
		switch {
		case qv.Get("client_id") != p.clientId:
			fail("unauthorized_client", "AADB2C90057: The provided application is not configured to allow the OAuth Implicit flow.")
			return
		case qv.Get("state") == "":
			fail("invalid_request", "missing state parameter")
			return
		case !strutils.StrListContains(strings.Fields(qv.Get("scope")), ScopeOpenId):
			fail("invalid_request", "AADB2C90055: The scope 'openid' must be specified.")
			return
		case len(responseType) == 0:
			fail("unsupported_response_type", "missing response_type")
			return
		case strutils.StrListContains(responseType, "id_token") && qv.Get("nonce") == "":
			fail("invalid_request", "AADB2C90014: The required field 'nonce' is missing.")
			return
		case p.authError != nil:
			fail(p.authError.code, p.authError.description)
			return
		}

		fields := map[string]string{"state": qv.Get("state")}
		for _, rt := range responseType {
			switch rt {
			case "code":
				fields["code"] = p.newCode(policy, qv.Get("nonce"))
			case "id_token":
				fields["id_token"] = p.idToken(policy, qv.Get("nonce"))
			default:
				fail("unsupported_response_type", "AADB2C90079: unsupported response_type "+rt)
				return
			}
		}
		p.writeAuthResponse(w, req, redirectURI, mode, fields)

	case "oauth2/v2.0/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.redemptions++
		p.lastTokenPolicy = parts[1]
		p.lastTokenScope = req.FormValue("scope")

		clientId, clientSecret, ok := req.BasicAuth()
		if !ok {
			clientId, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
		}
		code := req.FormValue("code")
		switch {
		case p.tokenError != nil:
			_ = p.writeTokenErrorResponse(w, p.tokenError.status, p.tokenError.code, p.tokenError.description)
			return
		case clientId != p.clientId || clientSecret != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "AADB2C90081: The specified client_secret does not match the expected value for this client.")
			return
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "AADB2C90086: The supplied grant_type is not supported.")
			return
		case !strutils.StrListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "AADB2C90006: The redirect URI provided in the request is not registered for the client id.")
			return
		case p.redeemed[code]:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", GrantUsedCode+": The provided grant has already been redeemed.")
			return
		}
		grant, ok := p.grants[code]
		if !ok {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", GrantExpiredCode+": The provided grant has expired. Please re-authenticate and try again.")
			return
		}
		delete(p.grants, code)
		p.redeemed[code] = true

		now := time.Now()
		accessToken := TestSignJWT(p.t, p.rsaPrivateKey, p.keyID, jwt.Claims{
			Subject:  p.replySubject,
			Issuer:   p.issuer(grant.policy),
			Audience: jwt.Audience{p.clientId},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(p.accessTokenTTL)),
		}, map[string]interface{}{"scp": p.lastTokenScope})

		reply := struct {
			AccessToken string `json:"access_token"`
			IdToken     string `json:"id_token,omitempty"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int64  `json:"expires_in,omitempty"`
			Scope       string `json:"scope,omitempty"`
		}{
			AccessToken: accessToken,
			IdToken:     p.idToken(grant.policy, grant.nonce),
			TokenType:   "Bearer",
			ExpiresIn:   int64(p.accessTokenTTL / time.Second),
			Scope:       p.lastTokenScope,
		}
		_ = p.writeJSON(w, &reply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
