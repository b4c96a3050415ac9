package b2c

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// MinStateKeyLength is the minimum length of a StateCodec signing key.
const MinStateKeyLength = 32

const stateIssuer = "b2cauth/attempt-state"

// stateClaims is the signed payload carried in the state parameter.
type stateClaims struct {
	jwt.Claims
	Nonce    string `json:"nonce"`
	Policy   string `json:"pol"`
	ReturnTo string `json:"ret,omitempty"`
}

// StateCodec seals an AttemptState into an opaque value suitable for the
// oidc state parameter and opens it again when the provider returns it. The
// value is a compact JWS (HS256), so a state can't be forged or altered
// without the key.
type StateCodec struct {
	key    []byte
	signer jose.Signer
	opts   stateCodecOptions
}

// NewStateCodec creates a StateCodec signing with key, which must be at
// least MinStateKeyLength bytes.
// Supported options: WithNow, WithExpirySkew
func NewStateCodec(key []byte, opt ...Option) (*StateCodec, error) {
	const op = "b2c.NewStateCodec"
	if len(key) < MinStateKeyLength {
		return nil, fmt.Errorf("%s: state key must be at least %d bytes: %w", op, MinStateKeyLength, ErrInvalidParameter)
	}
	k := append([]byte(nil), key...)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: k},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create state signer: %w", op, err)
	}
	return &StateCodec{
		key:    k,
		signer: signer,
		opts:   getStateCodecOpts(opt...),
	}, nil
}

// Seal encodes and signs s.
func (c *StateCodec) Seal(s *AttemptState) (string, error) {
	const op = "StateCodec.Seal"
	if s == nil {
		return "", fmt.Errorf("%s: attempt state is nil: %w", op, ErrNilParameter)
	}
	claims := stateClaims{
		Claims: jwt.Claims{
			Issuer:   stateIssuer,
			ID:       s.ID(),
			IssuedAt: jwt.NewNumericDate(c.now()),
			Expiry:   jwt.NewNumericDate(s.Expiration()),
		},
		Nonce:    s.Nonce(),
		Policy:   s.Policy(),
		ReturnTo: s.ReturnTo(),
	}
	raw, err := jwt.Signed(c.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign attempt state: %w", op, err)
	}
	return raw, nil
}

// Open verifies raw and decodes the AttemptState it carries. A state with a
// bad signature or malformed payload returns ErrInvalidState; an expired one
// returns ErrExpiredState.
func (c *StateCodec) Open(raw string) (*AttemptState, error) {
	const op = "StateCodec.Open"
	if raw == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrInvalidState)
	}
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse state: %w: %s", op, ErrInvalidState, err)
	}
	var claims stateClaims
	if err := tok.Claims(c.key, &claims); err != nil {
		return nil, fmt.Errorf("%s: state signature is invalid: %w: %s", op, ErrInvalidState, err)
	}
	err = claims.ValidateWithLeeway(jwt.Expected{Issuer: stateIssuer, Time: c.now()}, c.opts.withExpirySkew)
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredState)
	case err != nil:
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidState, err)
	}
	if claims.ID == "" || claims.Nonce == "" || claims.Policy == "" || claims.Expiry == nil {
		return nil, fmt.Errorf("%s: state is missing required fields: %w", op, ErrInvalidState)
	}
	return &AttemptState{
		id:         claims.ID,
		nonce:      claims.Nonce,
		policy:     claims.Policy,
		returnTo:   claims.ReturnTo,
		expiration: claims.Expiry.Time(),
		nowFunc:    c.opts.withNowFunc,
	}, nil
}

func (c *StateCodec) now() time.Time {
	if c.opts.withNowFunc != nil {
		return c.opts.withNowFunc()
	}
	return time.Now()
}

// stateCodecOptions is the set of available options for StateCodec
type stateCodecOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

func stateCodecDefaults() stateCodecOptions {
	return stateCodecOptions{
		withExpirySkew: DefaultStateExpirySkew,
	}
}

func getStateCodecOpts(opt ...Option) stateCodecOptions {
	opts := stateCodecDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
