package b2c

import (
	"fmt"
	"strings"

	"github.com/b2cauth/b2cauth/b2c/internal/strutils"
)

// RewriteForPolicy rewrites an outgoing authorization request when props
// records a policy other than the tenant's default. The request is then
// downgraded to an id_token only, "openid profile" request, and every
// case-insensitive occurrence of the default policy in the issuer address is
// replaced with the lower-cased requested policy. The recorded policy is
// removed from props once consumed.
//
// It returns true if the request was rewritten. A request for the default
// policy, or with no policy recorded, is left unchanged.
func RewriteForPolicy(c *Config, props Properties, req *AuthRequest) (bool, error) {
	const op = "b2c.RewriteForPolicy"
	switch {
	case c == nil:
		return false, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	case req == nil:
		return false, fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	if props == nil {
		return false, nil
	}
	requested := props.Policy()
	if c.IsDefaultPolicy(requested) {
		return false, nil
	}
	policy, ok := c.CanonicalPolicy(requested)
	if !ok {
		return false, fmt.Errorf("%s: %q is not a policy of tenant %s: %w", op, requested, c.Domain, ErrUnknownPolicy)
	}

	req.Scope = ScopeOpenIdProfile
	req.ResponseType = ResponseTypeIdToken
	req.IssuerAddress = strutils.ReplaceAllFold(req.IssuerAddress, strings.ToLower(c.DefaultPolicy()), strings.ToLower(policy))
	props.ClearPolicy()
	return true, nil
}
