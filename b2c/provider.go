package b2c

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/b2cauth/b2cauth/b2c/internal/strutils"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

const (
	// GrantExpiredCode is the provider's error code for an authorization
	// code that is no longer redeemable.
	GrantExpiredCode = "AADB2C90080"

	// GrantUsedCode is the provider's error code for an authorization code
	// that was already redeemed.
	GrantUsedCode = "AADB2C90088"
)

// oauth error codes meaning the user has to sign in interactively again.
var reauthErrorCodes = []string{
	"invalid_grant",
	"interaction_required",
	"login_required",
	"consent_required",
}

// Provider provides integration with every policy of the tenant. Each
// policy's authority is discovered once, when the Provider is created.
//
// See Provider.Done() which must be called to release provider resources.
type Provider struct {
	config *Config
	client *http.Client
	logger hclog.Logger

	// providers holds the discovered provider of each policy, keyed by the
	// lower-cased policy id. It is read-only after NewProvider returns.
	providers map[string]*oidc.Provider

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider. Initializing the provider
// includes an http request to each policy authority's discovery document.
func NewProvider(c *Config) (*Provider, error) {
	const op = "b2c.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              c.logger().Named("provider"),
		providers:           make(map[string]*oidc.Provider, 3),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HttpClient()
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	for _, policy := range c.PolicyList() {
		authority := c.Authority(policy)
		discoveryCtx := HttpClientContext(p.backgroundCtx, client)
		if c.Issuer != "" {
			discoveryCtx = oidc.InsecureIssuerURLContext(discoveryCtx, c.Issuer)
		}
		discovered, err := oidc.NewProvider(discoveryCtx, authority) // makes http req to authority for discovery
		if err != nil {
			p.Done()
			return nil, fmt.Errorf("%s: unable to discover policy %s at %s: %w: %w", op, policy, authority, ErrDiscoveryFailed, err)
		}
		p.providers[strings.ToLower(policy)] = discovered
		p.logger.Debug("discovered policy authority", "policy", policy, "authority", authority)
	}
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's tenant config.
func (p *Provider) Config() *Config { return p.config }

func (p *Provider) policyProvider(policy string) (*oidc.Provider, error) {
	const op = "Provider.policyProvider"
	if pp, ok := p.providers[strings.ToLower(policy)]; ok {
		return pp, nil
	}
	return nil, fmt.Errorf("%s: %q is not a policy of tenant %s: %w", op, policy, p.config.Domain, ErrUnknownPolicy)
}

// AuthRequest returns a new authorization request for the default policy: a
// code and id_token response requesting openid plus the configured API
// scopes. The caller is expected to pass it through the Orchestrator's
// OnPreRedirect hook before rendering it.
func (p *Provider) AuthRequest() (*AuthRequest, error) {
	const op = "Provider.AuthRequest"
	dp, err := p.policyProvider(p.config.DefaultPolicy())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	scopes := append([]string{ScopeOpenId}, p.config.ApiScopeList()...)
	return &AuthRequest{
		IssuerAddress: dp.Endpoint().AuthURL,
		ClientId:      p.config.ClientId,
		RedirectUri:   p.config.RedirectUrl,
		ResponseType:  ResponseTypeCodeIdToken,
		ResponseMode:  ResponseModeFormPost,
		Scope:         strings.Join(scopes, " "),
	}, nil
}

// VerifyIdToken verifies an id_token issued under policy: its signature,
// issuer, audience and expiry, and that it carries nonce. It returns the
// token's claims.
func (p *Provider) VerifyIdToken(ctx context.Context, policy string, t IdToken, nonce string) (Claims, error) {
	const op = "Provider.VerifyIdToken"
	if t == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingIdToken)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	pp, err := p.policyProvider(policy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := pp.Verifier(&oidc.Config{
		ClientID:             p.config.ClientId,
		SupportedSigningAlgs: algs,
	})
	idToken, err := verifier.Verify(HttpClientContext(ctx, p.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIdTokenVerification, err)
	}
	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidNonce)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode id_token claims: %w: %w", op, ErrIdTokenVerification, err)
	}
	return claims, nil
}

// Exchange redeems an authorization code at the default policy's token
// endpoint as a confidential client, requesting the configured API scopes.
// claims are the validated id_token claims presented alongside the code;
// the subject identifier is taken from them.
//
// Exactly one token request is made. A code the provider refuses because the
// user must sign in again returns ErrReauthRequired; every other failure
// returns ErrTokenEndpoint. Exchange never caches the result.
func (p *Provider) Exchange(ctx context.Context, code string, claims Claims) (*Token, error) {
	const op = "Provider.Exchange"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	subject, err := claims.Subject(p.config.SubjectClaim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	dp, err := p.policyProvider(p.config.DefaultPolicy())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	endpoint := dp.Endpoint()
	// the auto-detect style resends a rejected request with the other
	// client auth style, which would present a single-use code twice.
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	scopes := p.config.ApiScopeList()
	oauth2Config := oauth2.Config{
		ClientID:     p.config.ClientId,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectUrl,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}

	oauth2Token, err := oauth2Config.Exchange(
		HttpClientContext(ctx, p.client),
		code,
		oauth2.SetAuthURLParam("scope", strings.Join(scopes, " ")),
	)
	if err != nil {
		if isReauthRequired(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrReauthRequired, err)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenEndpoint, err)
	}

	t := &Token{
		Subject:     subject,
		AccessToken: AccessToken(oauth2Token.AccessToken),
		Expiry:      oauth2Token.Expiry,
	}
	if idToken, ok := oauth2Token.Extra("id_token").(string); ok {
		t.IdToken = IdToken(idToken)
	}
	return t, nil
}

// isReauthRequired reports whether a token endpoint error means the user has
// to sign in interactively again.
func isReauthRequired(err error) bool {
	var r *oauth2.RetrieveError
	if !errors.As(err, &r) {
		return false
	}
	if r.Response != nil && r.Response.StatusCode >= http.StatusInternalServerError {
		return false
	}
	if strutils.StrListContains(reauthErrorCodes, r.ErrorCode) {
		return true
	}
	body := string(r.Body)
	for _, c := range append([]string{GrantExpiredCode, GrantUsedCode}, reauthErrorCodes...) {
		if strings.Contains(body, c) {
			return true
		}
	}
	return false
}

// HttpClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HttpClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}
