package b2c

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/b2cauth/b2cauth/b2c/internal/strutils"
	sdkHttp "github.com/b2cauth/b2cauth/sdk/http"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	// AuthorityVersion is the final path segment of every policy authority.
	AuthorityVersion = "v2.0"

	// DefaultCallbackPath is the path the provider posts authentication
	// responses to when no callback path is configured.
	DefaultCallbackPath = "/signin-oidc"

	// DefaultSubjectClaim is the id_token claim used as the stable subject
	// identifier of a signed-in identity.
	DefaultSubjectClaim = "sub"

	// DefaultHttpTimeout bounds every request made to the provider.
	DefaultHttpTimeout = 30 * time.Second
)

// Policies are the tenant's three policy identifiers.
type Policies struct {
	// SignUpSignIn is the default policy. Authorization codes are only ever
	// redeemed under it.
	SignUpSignIn string

	// EditProfile is the policy used to edit a signed-in user's profile.
	EditProfile string

	// ResetPassword is the policy used for self-service password reset.
	ResetPassword string
}

// List returns the policies, default first.
func (p Policies) List() []string {
	return []string{p.SignUpSignIn, p.EditProfile, p.ResetPassword}
}

// Config represents the immutable tenant configuration shared by every
// authentication attempt.
type Config struct {
	// ClientId is the relying party id
	ClientId string

	// ClientSecret is the relying party secret used to redeem authorization
	// codes
	ClientSecret ClientSecret

	// Instance is the provider's base URL, for example
	// https://contoso.b2clogin.com/tfp
	Instance string

	// Domain is the tenant domain, for example contoso.onmicrosoft.com
	Domain string

	// Policies are the tenant's policy identifiers
	Policies Policies

	// RedirectUrl is the absolute URL the provider redirects to after
	// authentication. Its path is normally CallbackPath.
	RedirectUrl string

	// CallbackPath is the local path that receives authentication responses
	CallbackPath string

	// ApiUrl is the optional downstream API called with cached access tokens
	ApiUrl string

	// ApiScopes is the space-delimited list of API scopes requested for
	// the default policy and at code redemption.
	ApiScopes string

	// Issuer is the optional issuer expected in id_tokens when it differs
	// from the policy authorities, which is the case for tenants that
	// publish a tenant-id based issuer.
	Issuer string

	// SubjectClaim is the id_token claim which identifies a signed-in
	// identity. Defaults to "sub".
	SubjectClaim string

	// SupportedSigningAlgs is a list of supported id_token signing
	// algorithms. Defaults to RS256.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// HttpTimeout bounds each request to the provider. Defaults to
	// DefaultHttpTimeout.
	HttpTimeout time.Duration

	// Logger is an optional logger
	Logger hclog.Logger
}

// NewConfig composes a new tenant config.
// Supported options:
//
//	WithApiScopes
//	WithApiUrl
//	WithCallbackPath
//	WithIssuer
//	WithSubjectClaim
//	WithSupportedSigningAlgs
//	WithProviderCA
//	WithHttpTimeout
//	WithLogger
func NewConfig(instance, domain, clientId string, clientSecret ClientSecret, redirectUrl string, policies Policies, opt ...Option) (*Config, error) {
	const op = "b2c.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientId:             clientId,
		ClientSecret:         clientSecret,
		Instance:             strings.TrimSuffix(instance, "/"),
		Domain:               domain,
		Policies:             policies,
		RedirectUrl:          redirectUrl,
		CallbackPath:         opts.withCallbackPath,
		ApiUrl:               opts.withApiUrl,
		ApiScopes:            opts.withApiScopes,
		Issuer:               opts.withIssuer,
		SubjectClaim:         opts.withSubjectClaim,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		ProviderCA:           opts.withProviderCA,
		HttpTimeout:          opts.withHttpTimeout,
		Logger:               opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the tenant configuration. Every problem found is reported, not
// just the first one. It doesn't verify the authorities are discoverable via
// an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	invalid := func(format string, a ...interface{}) {
		errs = multierror.Append(errs, fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, a...), ErrInvalidParameter))
	}
	if c.ClientId == "" {
		invalid("client id is empty")
	}
	if c.ClientSecret == "" {
		invalid("client secret is empty")
	}
	if c.Domain == "" {
		invalid("domain is empty")
	}
	if c.Instance == "" {
		invalid("instance is empty")
	} else if u, err := url.Parse(c.Instance); err != nil {
		invalid("instance %s is invalid: %s", c.Instance, err)
	} else if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		invalid("instance %s scheme %s is not http or https", c.Instance, u.Scheme)
	}
	if c.RedirectUrl == "" {
		invalid("redirect URL is empty")
	} else if u, err := url.Parse(c.RedirectUrl); err != nil || !u.IsAbs() {
		invalid("redirect URL %s is not an absolute URL", c.RedirectUrl)
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		invalid("callback path %q must start with /", c.CallbackPath)
	}
	if c.ApiUrl != "" {
		if u, err := url.Parse(c.ApiUrl); err != nil || !u.IsAbs() {
			invalid("api URL %s is not an absolute URL", c.ApiUrl)
		}
	}
	if len(c.ApiScopeList()) == 0 {
		invalid("api scopes are empty")
	}
	if c.Issuer != "" {
		if u, err := url.Parse(c.Issuer); err != nil || !u.IsAbs() {
			invalid("issuer %s is not an absolute URL", c.Issuer)
		}
	}
	if c.SubjectClaim == "" {
		invalid("subject claim is empty")
	}

	seen := map[string]string{}
	for _, p := range []struct{ name, id string }{
		{"sign-up-sign-in", c.Policies.SignUpSignIn},
		{"edit-profile", c.Policies.EditProfile},
		{"reset-password", c.Policies.ResetPassword},
	} {
		if p.id == "" {
			invalid("%s policy id is empty", p.name)
			continue
		}
		if strings.ContainsAny(p.id, "/?#") {
			invalid("%s policy id %q is not a single path segment", p.name, p.id)
		}
		if other, ok := seen[strings.ToLower(p.id)]; ok {
			invalid("%s policy id %q duplicates the %s policy", p.name, p.id, other)
		}
		seen[strings.ToLower(p.id)] = p.name
	}

	if len(c.SupportedSigningAlgs) == 0 {
		invalid("supported algorithms is empty")
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			invalid("unsupported algorithm: %s", a)
		}
	}
	return errs.ErrorOrNil()
}

// DefaultPolicy returns the sign-up-sign-in policy.
func (c *Config) DefaultPolicy() string { return c.Policies.SignUpSignIn }

// Authority returns the authority URL of the given policy:
// {instance}/{domain}/{policy}/v2.0
func (c *Config) Authority(policy string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Instance, c.Domain, policy, AuthorityVersion)
}

// DefaultAuthority returns the authority of the default policy.
func (c *Config) DefaultAuthority() string { return c.Authority(c.DefaultPolicy()) }

// ApiScopeList splits ApiScopes into individual scope tokens.
func (c *Config) ApiScopeList() []string { return strings.Fields(c.ApiScopes) }

// PolicyList returns the tenant's policies, default first.
func (c *Config) PolicyList() []string { return c.Policies.List() }

// CanonicalPolicy returns the configured spelling of policy, matched without
// regard to case. The bool is false when policy is not one of the tenant's
// policies.
func (c *Config) CanonicalPolicy(policy string) (string, bool) {
	for _, p := range c.PolicyList() {
		if strings.EqualFold(p, policy) {
			return p, true
		}
	}
	return "", false
}

// IsDefaultPolicy reports whether policy is unset or names the default policy.
func (c *Config) IsDefaultPolicy(policy string) bool {
	return policy == "" || strings.EqualFold(policy, c.DefaultPolicy())
}

// RequestedPolicy returns the canonical policy recorded in props, or the
// default policy when none is recorded.
func (c *Config) RequestedPolicy(props Properties) (string, error) {
	const op = "Config.RequestedPolicy"
	requested := props.Policy()
	if c.IsDefaultPolicy(requested) {
		return c.DefaultPolicy(), nil
	}
	p, ok := c.CanonicalPolicy(requested)
	if !ok {
		return "", fmt.Errorf("%s: %q is not a policy of tenant %s: %w", op, requested, c.Domain, ErrUnknownPolicy)
	}
	return p, nil
}

// HttpClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, c.HttpTimeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

func (c *Config) logger() hclog.Logger {
	if c.Logger == nil {
		return hclog.NewNullLogger()
	}
	return c.Logger
}

// configOptions is the set of available options
type configOptions struct {
	withApiScopes            string
	withApiUrl               string
	withCallbackPath         string
	withIssuer               string
	withSubjectClaim         string
	withSupportedSigningAlgs []Alg
	withProviderCA           string
	withHttpTimeout          time.Duration
	withLogger               hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withCallbackPath:         DefaultCallbackPath,
		withSubjectClaim:         DefaultSubjectClaim,
		withSupportedSigningAlgs: []Alg{RS256},
		withHttpTimeout:          DefaultHttpTimeout,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithApiScopes provides the space-delimited API scopes for the config
func WithApiScopes(scopes string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withApiScopes = scopes
		}
	}
}

// WithApiUrl provides the downstream API URL for the config
func WithApiUrl(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withApiUrl = u
		}
	}
}

// WithCallbackPath provides an optional callback path for the config
func WithCallbackPath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCallbackPath = p
		}
	}
}

// WithIssuer provides an optional id_token issuer for the config
func WithIssuer(issuer string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withIssuer = issuer
		}
	}
}

// WithSubjectClaim provides an optional subject claim name for the config
func WithSubjectClaim(claim string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSubjectClaim = claim
		}
	}
}

// WithSupportedSigningAlgs provides optional id_token signing algorithms for
// the config
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithHttpTimeout provides an optional timeout for provider requests
func WithHttpTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHttpTimeout = d
		}
	}
}

// WithLogger provides an optional logger for: Config, Orchestrator
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withLogger = l
		case *orchestratorOptions:
			v.withLogger = l
		}
	}
}
