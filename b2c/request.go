package b2c

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

const (
	// PolicyAuthenticationProperty is the property bag key used to request a
	// non-default policy for a challenge. Its value must be one of the
	// tenant's policy ids.
	PolicyAuthenticationProperty = "Policy"

	// RedirectUriProperty is the property bag key holding the local path
	// to return to once the attempt completes.
	RedirectUriProperty = ".redirect"
)

const (
	ResponseTypeCodeIdToken = "code id_token"
	ResponseTypeIdToken     = "id_token"

	ResponseModeFormPost = "form_post"
	ResponseModeQuery    = "query"

	ScopeOpenId        = "openid"
	ScopeOpenIdProfile = "openid profile"
)

// Properties is the property bag attached to an outgoing authentication
// challenge.
type Properties map[string]string

// Policy returns the policy recorded in the bag, if any.
func (p Properties) Policy() string { return p[PolicyAuthenticationProperty] }

// SetPolicy records policy in the bag.
func (p Properties) SetPolicy(policy string) { p[PolicyAuthenticationProperty] = policy }

// ClearPolicy removes any recorded policy from the bag.
func (p Properties) ClearPolicy() { delete(p, PolicyAuthenticationProperty) }

// AuthRequest is an outgoing oidc authorization request. IssuerAddress is
// the authorization endpoint; the remaining fields become query parameters
// when the request is rendered with URL().
type AuthRequest struct {
	IssuerAddress string
	ClientId      string
	RedirectUri   string
	ResponseType  string
	ResponseMode  string
	Scope         string
	State         string
	Nonce         string

	// UILocales are the end-user's preferred languages for the provider's
	// pages, sent as ui_locales
	UILocales []language.Tag

	// Parameters holds additional query parameters
	Parameters map[string]string
}

// URL renders the request as the URL to redirect the user agent to.
func (r *AuthRequest) URL() (string, error) {
	const op = "AuthRequest.URL"
	if r == nil {
		return "", fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	switch {
	case r.IssuerAddress == "":
		return "", fmt.Errorf("%s: issuer address is empty: %w", op, ErrInvalidParameter)
	case r.ClientId == "":
		return "", fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	case r.State == "":
		return "", fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(r.IssuerAddress)
	if err != nil {
		return "", fmt.Errorf("%s: issuer address %s is invalid: %w", op, r.IssuerAddress, err)
	}
	q := u.Query()
	for k, v := range r.Parameters {
		q.Set(k, v)
	}
	q.Set("client_id", r.ClientId)
	q.Set("state", r.State)
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("redirect_uri", r.RedirectUri)
	set("response_type", r.ResponseType)
	set("response_mode", r.ResponseMode)
	set("scope", r.Scope)
	set("nonce", r.Nonce)
	if len(r.UILocales) > 0 {
		locales := make([]string, 0, len(r.UILocales))
		for _, l := range r.UILocales {
			locales = append(locales, l.String())
		}
		q.Set("ui_locales", strings.Join(locales, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
