package callback

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/b2cauth/b2cauth/b2c"
	"golang.org/x/text/language"
)

// ReturnUrlParameter is the query parameter a challenge reads the local
// return path from.
const ReturnUrlParameter = "returnUrl"

// Authenticator is the part of a b2c.Provider the handlers use. *b2c.Provider
// is an Authenticator.
type Authenticator interface {
	AuthRequest() (*b2c.AuthRequest, error)
	VerifyIdToken(ctx context.Context, policy string, t b2c.IdToken, nonce string) (b2c.Claims, error)
}

// Challenge creates a handler which redirects the user agent to the provider.
// props are copied for every request; a policy recorded in them selects a
// non-default policy. The return path is taken from the returnUrl query
// parameter when it's a local path, then from props, and defaults to the
// root.
func Challenge(a Authenticator, o *b2c.Orchestrator, props b2c.Properties) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		p := make(b2c.Properties, len(props)+1)
		for k, v := range props {
			p[k] = v
		}
		switch rt := req.URL.Query().Get(ReturnUrlParameter); {
		case isLocalPath(rt):
			p[b2c.RedirectUriProperty] = rt
		case !isLocalPath(p[b2c.RedirectUriProperty]):
			p[b2c.RedirectUriProperty] = "/"
		}
		if err := challenge(w, req, a, o, p); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// SignIn creates a challenge under the default sign-up-sign-in policy.
func SignIn(a Authenticator, o *b2c.Orchestrator) http.HandlerFunc {
	return Challenge(a, o, b2c.Properties{})
}

// EditProfile creates a challenge under the edit-profile policy.
func EditProfile(a Authenticator, o *b2c.Orchestrator) http.HandlerFunc {
	return Challenge(a, o, policyProperties(o, func(p b2c.Policies) string { return p.EditProfile }))
}

// ResetPassword creates a challenge under the reset-password policy.
func ResetPassword(a Authenticator, o *b2c.Orchestrator) http.HandlerFunc {
	return Challenge(a, o, policyProperties(o, func(p b2c.Policies) string { return p.ResetPassword }))
}

func policyProperties(o *b2c.Orchestrator, pick func(b2c.Policies) string) b2c.Properties {
	p := b2c.Properties{}
	if o != nil {
		p.SetPolicy(pick(o.Config().Policies))
	}
	return p
}

// challenge runs the pre-redirect hook over a new authorization request and
// redirects to it.
func challenge(w http.ResponseWriter, req *http.Request, a Authenticator, o *b2c.Orchestrator, props b2c.Properties) error {
	const op = "callback.challenge"
	switch {
	case a == nil:
		return fmt.Errorf("%s: authenticator is nil: %w", op, b2c.ErrNilParameter)
	case o == nil:
		return fmt.Errorf("%s: orchestrator is nil: %w", op, b2c.ErrNilParameter)
	}
	authReq, err := a.AuthRequest()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tags, _, err := language.ParseAcceptLanguage(req.Header.Get("Accept-Language")); err == nil {
		authReq.UILocales = tags
	}
	if err := o.OnPreRedirect(req.Context(), authReq, props); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := authReq.URL()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	http.Redirect(w, req, u, http.StatusFound)
	return nil
}

// isLocalPath reports whether p is a path on this host, rejecting
// protocol-relative and backslash forms browsers treat as absolute.
func isLocalPath(p string) bool {
	switch {
	case p == "", !strings.HasPrefix(p, "/"):
		return false
	case strings.HasPrefix(p, "//"), strings.HasPrefix(p, "/\\"):
		return false
	default:
		return true
	}
}
