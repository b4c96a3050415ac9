package b2c

import (
	"fmt"
	"time"
)

// Token is the result of redeeming an authorization code.
type Token struct {
	// Subject is the stable identifier of the identity the code was
	// redeemed for
	Subject string

	AccessToken AccessToken
	IdToken     IdToken

	// Expiry is when the access token expires. It is zero when the token
	// endpoint did not report a lifetime.
	Expiry time.Time
}

// Claims are the validated claims of an id_token.
type Claims map[string]interface{}

// Subject returns the value of the named identity claim.
func (c Claims) Subject(claim string) (string, error) {
	const op = "Claims.Subject"
	v, ok := c[claim]
	if !ok {
		return "", fmt.Errorf("%s: claim %q not found: %w", op, claim, ErrMissingIdentityClaim)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: claim %q is not a non-empty string: %w", op, claim, ErrMissingIdentityClaim)
	}
	return s, nil
}

// String returns the named claim if it is a string.
func (c Claims) String(claim string) string {
	s, _ := c[claim].(string)
	return s
}
