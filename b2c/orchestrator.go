package b2c

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Exchanger redeems an authorization code. *Provider is an Exchanger.
type Exchanger interface {
	Exchange(ctx context.Context, code string, claims Claims) (*Token, error)
}

// TokenCache stores the access token of each signed-in identity, keyed by
// its subject identifier. Implementations must be safe for concurrent use;
// concurrent writes for the same identity resolve last-write-wins.
type TokenCache interface {
	// Get returns the identity's access token. ok is false when there is no
	// entry or the entry is expired.
	Get(ctx context.Context, identityId string) (t AccessToken, ok bool, err error)

	// Set stores the identity's access token. A zero expiry never expires.
	Set(ctx context.Context, identityId string, t AccessToken, expiry time.Time) error
}

// FailureResponse is the host's response to a failed authentication round
// trip.
type FailureResponse interface {
	// HandleResponse marks the failure handled so the host doesn't
	// propagate it any further.
	HandleResponse()

	// Redirect sends the user agent to location.
	Redirect(location string)
}

// Routes are the local paths a RecoveryAction redirects to.
type Routes struct {
	ResetPassword string
	Cancelled     string
	GenericError  string
}

// DefaultRoutes returns the default recovery routes.
func DefaultRoutes() Routes {
	return Routes{
		ResetPassword: "/Account/ResetPassword",
		Cancelled:     "/",
		GenericError:  "/Home/Error",
	}
}

// For returns the route of action.
func (r Routes) For(action RecoveryAction) string {
	switch action {
	case RedirectToResetPassword:
		return r.ResetPassword
	case RedirectToCancelled:
		return r.Cancelled
	default:
		return r.GenericError
	}
}

func (r Routes) validate() error {
	const op = "Routes.validate"
	for _, p := range []string{r.ResetPassword, r.Cancelled, r.GenericError} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s: route %q is not a local path: %w", op, p, ErrInvalidParameter)
		}
	}
	return nil
}

// AttemptStatus is the state of one authentication attempt.
type AttemptStatus int

const (
	// Anonymous has no session; a protected resource issues a challenge.
	Anonymous AttemptStatus = iota

	// ChallengeIssued means the user was redirected to the provider.
	ChallengeIssued

	// CodeReceived means the provider returned an authorization code and a
	// validated id_token.
	CodeReceived

	// RemoteFailed means the provider, or the callback's validation,
	// reported an error instead of a code.
	RemoteFailed

	// Authenticated means the session was established.
	Authenticated

	// RedirectedForRecovery means the user was redirected to a recovery
	// route and the request cycle ended.
	RedirectedForRecovery
)

func (s AttemptStatus) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case ChallengeIssued:
		return "challenge_issued"
	case CodeReceived:
		return "code_received"
	case RemoteFailed:
		return "remote_failed"
	case Authenticated:
		return "authenticated"
	case RedirectedForRecovery:
		return "redirected_for_recovery"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transition follows s within the
// request cycle.
func (s AttemptStatus) Terminal() bool {
	return s == Authenticated || s == RedirectedForRecovery
}

// CanTransitionTo reports whether next may follow s.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	switch s {
	case Anonymous:
		return next == ChallengeIssued
	case ChallengeIssued:
		return next == CodeReceived || next == RemoteFailed || next == Authenticated
	case CodeReceived:
		return next == Authenticated || next == RemoteFailed
	case RemoteFailed:
		return next == RedirectedForRecovery
	default:
		return false
	}
}

// Orchestrator implements the three hooks a host authentication middleware
// invokes during an attempt: before redirecting to the provider, when an
// authorization code is received and when the round trip fails.
//
// An Orchestrator holds no per-attempt state and is safe for concurrent use.
type Orchestrator struct {
	config     *Config
	exchanger  Exchanger
	cache      TokenCache
	codec      *StateCodec
	classifier Classifier
	routes     Routes
	expiry     time.Duration
	metrics    *Metrics
	logger     hclog.Logger
	nowFunc    func() time.Time
}

// NewOrchestrator creates an Orchestrator.
// Supported options:
//
//	WithClassifier
//	WithRoutes
//	WithAttemptExpiry
//	WithMetrics
//	WithLogger
//	WithNow
func NewOrchestrator(c *Config, exchanger Exchanger, cache TokenCache, codec *StateCodec, opt ...Option) (*Orchestrator, error) {
	const op = "b2c.NewOrchestrator"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	case exchanger == nil:
		return nil, fmt.Errorf("%s: exchanger is nil: %w", op, ErrNilParameter)
	case cache == nil:
		return nil, fmt.Errorf("%s: token cache is nil: %w", op, ErrNilParameter)
	case codec == nil:
		return nil, fmt.Errorf("%s: state codec is nil: %w", op, ErrNilParameter)
	}
	opts := getOrchestratorOpts(opt...)
	if opts.withClassifier == nil {
		return nil, fmt.Errorf("%s: classifier is nil: %w", op, ErrNilParameter)
	}
	if opts.withAttemptExpiry <= 0 {
		return nil, fmt.Errorf("%s: attempt expiry not greater than zero: %w", op, ErrInvalidParameter)
	}
	if err := opts.withRoutes.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger := opts.withLogger
	if logger == nil {
		logger = c.logger()
	}
	return &Orchestrator{
		config:     c,
		exchanger:  exchanger,
		cache:      cache,
		codec:      codec,
		classifier: opts.withClassifier,
		routes:     opts.withRoutes,
		expiry:     opts.withAttemptExpiry,
		metrics:    opts.withMetrics,
		logger:     logger.Named("orchestrator"),
		nowFunc:    opts.withNowFunc,
	}, nil
}

// Config returns the orchestrator's tenant config.
func (o *Orchestrator) Config() *Config { return o.config }

// Routes returns the orchestrator's recovery routes.
func (o *Orchestrator) Routes() Routes { return o.routes }

// OnPreRedirect prepares req before the user is redirected to the provider.
// It records the requested policy and the props' return path in a new
// AttemptState, seals it into req.State, binds the state's nonce to req and
// then rewrites req for a non-default policy (see RewriteForPolicy).
func (o *Orchestrator) OnPreRedirect(_ context.Context, req *AuthRequest, props Properties) error {
	const op = "Orchestrator.OnPreRedirect"
	if req == nil {
		return fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	policy, err := o.config.RequestedPolicy(props)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	st, err := NewAttemptState(policy, props[RedirectUriProperty], o.expiry, WithNow(o.nowFunc))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	state, err := o.codec.Seal(st)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.State = state
	req.Nonce = st.Nonce()

	rewritten, err := RewriteForPolicy(o.config, props, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	o.logger.Debug("challenge issued", "attempt", st.ID(), "policy", policy, "rewritten", rewritten)
	return nil
}

// OpenState verifies a state returned by the provider and returns the
// attempt it carries.
func (o *Orchestrator) OpenState(raw string) (*AttemptState, error) {
	const op = "Orchestrator.OpenState"
	st, err := o.codec.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// OnCodeReceived redeems code for the identity described by claims and
// caches the resulting access token under the identity's subject. The cache
// is left untouched when the redemption fails.
//
// A failure to write the cache is logged but doesn't fail the attempt: the
// code is already spent, so the token is returned regardless.
func (o *Orchestrator) OnCodeReceived(ctx context.Context, code string, claims Claims) (*Token, error) {
	const op = "Orchestrator.OnCodeReceived"
	t, err := o.exchanger.Exchange(ctx, code, claims)
	if err != nil {
		switch {
		case errors.Is(err, ErrReauthRequired):
			o.metrics.codeRedemption(RedemptionReauthRequired)
			o.logger.Info("code redemption requires reauthentication", "error", err)
		default:
			o.metrics.codeRedemption(RedemptionError)
			o.logger.Error("code redemption failed", "error", err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := o.cache.Set(ctx, t.Subject, t.AccessToken, t.Expiry); err != nil {
		o.metrics.codeRedemption(RedemptionCacheError)
		o.logger.Warn("unable to cache access token", "subject", t.Subject, "error", err)
		return t, nil
	}
	o.metrics.codeRedemption(RedemptionSuccess)
	o.logger.Debug("code redeemed", "subject", t.Subject)
	return t, nil
}

// OnRemoteFailure classifies f, marks the failure handled and redirects
// resp to the route of the resulting RecoveryAction, which it returns.
func (o *Orchestrator) OnRemoteFailure(_ context.Context, f *RemoteFailure, resp FailureResponse) RecoveryAction {
	if f == nil {
		f = NewGenericFailure(nil)
	}
	action, matched := o.classifier.Classify(f)
	o.metrics.remoteFailure(action, matched)
	switch {
	case f.Kind == ProtocolFailure && !matched:
		o.logger.Warn("unrecognized provider error", "message", f.Message, "action", action.String())
	default:
		o.logger.Debug("remote failure", "kind", f.Kind.String(), "message", f.Message, "action", action.String())
	}
	if resp != nil {
		resp.HandleResponse()
		resp.Redirect(o.routes.For(action))
	}
	return action
}

// AccessToken returns the cached access token of identityId.
func (o *Orchestrator) AccessToken(ctx context.Context, identityId string) (AccessToken, bool, error) {
	const op = "Orchestrator.AccessToken"
	t, ok, err := o.cache.Get(ctx, identityId)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return t, ok, nil
}

// Messages shown to the user by DisplayMessage.
const (
	MessageReauthRequired = "Session has expired. Please sign in again."
	MessageSignInFailed   = "Unable to complete sign in. Please try again."
)

// DisplayMessage converts a code redemption failure into a message that can
// be shown to the user.
func DisplayMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReauthRequired):
		return MessageReauthRequired
	default:
		return MessageSignInFailed
	}
}

// orchestratorOptions is the set of available options for Orchestrator
type orchestratorOptions struct {
	withClassifier    Classifier
	withRoutes        Routes
	withAttemptExpiry time.Duration
	withMetrics       *Metrics
	withLogger        hclog.Logger
	withNowFunc       func() time.Time
}

func orchestratorDefaults() orchestratorOptions {
	return orchestratorOptions{
		withClassifier:    DefaultClassifier(),
		withRoutes:        DefaultRoutes(),
		withAttemptExpiry: DefaultAttemptExpiry,
	}
}

func getOrchestratorOpts(opt ...Option) orchestratorOptions {
	opts := orchestratorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClassifier provides an optional failure classifier for the
// Orchestrator
func WithClassifier(c Classifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*orchestratorOptions); ok {
			o.withClassifier = c
		}
	}
}

// WithRoutes provides optional recovery routes for the Orchestrator
func WithRoutes(r Routes) Option {
	return func(o interface{}) {
		if o, ok := o.(*orchestratorOptions); ok {
			o.withRoutes = r
		}
	}
}

// WithAttemptExpiry provides an optional expiry for the attempts an
// Orchestrator issues
func WithAttemptExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*orchestratorOptions); ok {
			o.withAttemptExpiry = d
		}
	}
}

// WithMetrics provides optional metrics for the Orchestrator
func WithMetrics(m *Metrics) Option {
	return func(o interface{}) {
		if o, ok := o.(*orchestratorOptions); ok {
			o.withMetrics = m
		}
	}
}
