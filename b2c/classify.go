package b2c

import (
	"fmt"
	"strings"
)

const (
	// PasswordResetNotSupportedCode is the provider's error code returned
	// when a user picks "forgot password" on the sign-up-sign-in policy.
	PasswordResetNotSupportedCode = "AADB2C90118"

	// AccessDeniedCode is returned when the user cancels at the provider.
	AccessDeniedCode = "access_denied"
)

// FailureKind is the origin of a RemoteFailure.
type FailureKind int

const (
	// GenericFailure is any failure not reported by the provider through the
	// protocol: a bad state, a failed id_token verification, a transport
	// problem.
	GenericFailure FailureKind = iota

	// ProtocolFailure is an error the provider returned through the
	// protocol's error, error_description and error_uri parameters.
	ProtocolFailure
)

func (k FailureKind) String() string {
	switch k {
	case ProtocolFailure:
		return "protocol"
	default:
		return "generic"
	}
}

// RemoteFailure is a failed authentication round trip as reported to the
// callback.
type RemoteFailure struct {
	Kind    FailureKind
	Message string
}

// NewProtocolFailure creates a ProtocolFailure from the error parameters of
// an authentication response.
func NewProtocolFailure(e, description, uri string) *RemoteFailure {
	return &RemoteFailure{
		Kind:    ProtocolFailure,
		Message: fmt.Sprintf("error: '%s', error_description: '%s', error_uri: '%s'", e, description, uri),
	}
}

// NewGenericFailure creates a GenericFailure from err.
func NewGenericFailure(err error) *RemoteFailure {
	f := &RemoteFailure{Kind: GenericFailure}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

func (f *RemoteFailure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

// RecoveryAction is where a user is sent after a remote failure.
type RecoveryAction int

const (
	RedirectToGenericError RecoveryAction = iota
	RedirectToResetPassword
	RedirectToCancelled
)

func (a RecoveryAction) String() string {
	switch a {
	case RedirectToResetPassword:
		return "reset_password"
	case RedirectToCancelled:
		return "cancelled"
	default:
		return "generic_error"
	}
}

// Classifier maps a RemoteFailure to a RecoveryAction. matched is false
// when no rule recognized the failure and the action is the generic
// fallback.
type Classifier interface {
	Classify(f *RemoteFailure) (action RecoveryAction, matched bool)
}

// ClassifierFunc adapts a function to a Classifier.
type ClassifierFunc func(f *RemoteFailure) (RecoveryAction, bool)

func (fn ClassifierFunc) Classify(f *RemoteFailure) (RecoveryAction, bool) {
	return fn(f)
}

// Rule selects Action for protocol failures whose message contains
// Contains.
type Rule struct {
	Contains string
	Action   RecoveryAction
}

// Match reports whether the rule applies to f. Only protocol failures are
// ever matched.
func (r Rule) Match(f *RemoteFailure) bool {
	if f == nil || f.Kind != ProtocolFailure || r.Contains == "" {
		return false
	}
	return strings.Contains(f.Message, r.Contains)
}

// RuleClassifier is a Classifier driven by an ordered rule table. The first
// matching rule wins.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier creates a RuleClassifier evaluating rules in order.
func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	return &RuleClassifier{rules: append([]Rule(nil), rules...)}
}

// DefaultRules is the provider's rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Contains: PasswordResetNotSupportedCode, Action: RedirectToResetPassword},
		{Contains: AccessDeniedCode, Action: RedirectToCancelled},
	}
}

// DefaultClassifier returns a RuleClassifier with DefaultRules.
func DefaultClassifier() *RuleClassifier {
	return NewRuleClassifier(DefaultRules()...)
}

// Classify returns the action of the first matching rule, or
// RedirectToGenericError when none match.
func (c *RuleClassifier) Classify(f *RemoteFailure) (RecoveryAction, bool) {
	for _, r := range c.rules {
		if r.Match(f) {
			return r.Action, true
		}
	}
	return RedirectToGenericError, false
}
