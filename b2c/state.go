package b2c

import (
	"fmt"
	"time"

	"github.com/b2cauth/b2cauth/sdk/id"
)

// DefaultStateExpirySkew defines a default time skew when checking an
// AttemptState's expiration.
const DefaultStateExpirySkew = 1 * time.Second

// DefaultAttemptExpiry is how long a user has to complete an attempt at the
// provider before its state is rejected.
const DefaultAttemptExpiry = 10 * time.Minute

// AttemptState represents one authentication attempt. It records the policy
// the challenge was issued for, so the callback can tell which policy
// completed even though the challenge's property bag is gone by then. It is
// round-tripped through the provider's state parameter by a StateCodec
// rather than stored server side, since the request issuing the challenge
// and the request receiving the callback may be handled by different
// processes.
type AttemptState struct {
	// id is a unique identifier for the attempt
	id string

	// nonce is a unique nonce bound into the id_token issued for the attempt
	nonce string

	// policy is the canonical policy the challenge was issued for
	policy string

	// returnTo is the local path to send the user back to on success
	returnTo string

	// expiration is the expiration time for the attempt
	expiration time.Time

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// NewAttemptState creates a new AttemptState for policy.
// Supported options: WithNow
func NewAttemptState(policy, returnTo string, expireIn time.Duration, opt ...Option) (*AttemptState, error) {
	const op = "b2c.NewAttemptState"
	opts := getAttemptStateOpts(opt...)
	if policy == "" {
		return nil, fmt.Errorf("%s: policy is empty: %w", op, ErrInvalidParameter)
	}
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	nonce, err := id.New("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate an attempt's nonce: %w: %s", op, ErrIdGeneratorFailed, err)
	}
	stateId, err := id.New("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate an attempt's id: %w: %s", op, ErrIdGeneratorFailed, err)
	}
	s := &AttemptState{
		id:       stateId,
		nonce:    nonce,
		policy:   policy,
		returnTo: returnTo,
		nowFunc:  opts.withNowFunc,
	}
	s.expiration = s.now().Add(expireIn)
	return s, nil
}

func (s *AttemptState) ID() string            { return s.id }
func (s *AttemptState) Nonce() string         { return s.nonce }
func (s *AttemptState) Policy() string        { return s.policy }
func (s *AttemptState) ReturnTo() string      { return s.returnTo }
func (s *AttemptState) Expiration() time.Time { return s.expiration }

// IsExpired returns true if the attempt has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultStateExpirySkew.
func (s *AttemptState) IsExpired(opt ...Option) bool {
	opts := getAttemptStateOpts(opt...)
	return s.expiration.Before(s.now().Add(opts.withExpirySkew))
}

// now returns the current time using the optional nowFunc.
func (s *AttemptState) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now() // fallback to this default
}

// attemptStateOptions is the set of available options for AttemptState
// functions
type attemptStateOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// attemptStateDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func attemptStateDefaults() attemptStateOptions {
	return attemptStateOptions{
		withExpirySkew: DefaultStateExpirySkew,
	}
}

// getAttemptStateOpts gets the defaults and applies the opt overrides passed
// in
func getAttemptStateOpts(opt ...Option) attemptStateOptions {
	opts := attemptStateDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
