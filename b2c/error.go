package b2c

import (
	"errors"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrInvalidCACert        = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed    = errors.New("id generation failed")
	ErrUnknownPolicy        = errors.New("unknown policy")
	ErrDiscoveryFailed      = errors.New("provider discovery failed")
	ErrExpiredState         = errors.New("state is expired")
	ErrInvalidState         = errors.New("state is invalid")
	ErrMissingIdToken       = errors.New("id_token is missing")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrIdTokenVerification  = errors.New("id_token verification failed")
	ErrMissingIdentityClaim = errors.New("identity claim is missing")

	// ErrReauthRequired is returned when the provider rejects an
	// authorization code because the user must interactively sign in again
	// (stale, expired or already redeemed grant).
	ErrReauthRequired = errors.New("reauthentication required")

	// ErrTokenEndpoint is returned for every other token endpoint failure:
	// transport errors, timeouts, 5xx responses and malformed replies.
	ErrTokenEndpoint = errors.New("token endpoint error")
)
