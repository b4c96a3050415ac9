package callback

import (
	"fmt"
	"net/http"

	"github.com/b2cauth/b2cauth/b2c"
)

// Callback creates a handler for the provider's authentication response,
// posted as a form or returned as query parameters.
//
// An error response is classified by the Orchestrator's OnRemoteFailure hook,
// which redirects to the matching recovery route. So is a response whose
// state or id_token doesn't verify. Otherwise the id_token's claims become
// the session. Under the default policy the authorization code is redeemed
// through OnCodeReceived first; a failed redemption is handed to eFn and
// no session is written. The other policies return an id_token only.
//
// The SuccessResponseFunc is used to create a response once the session was
// written. The ErrorResponseFunc is used to create a response when the
// code couldn't be redeemed or the session couldn't be written.
func Callback(a Authenticator, o *b2c.Orchestrator, sessions *SessionStore, sFn SuccessResponseFunc, eFn ErrorResponseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "callback.Callback"
		if eFn == nil {
			eFn = WriteError
		}
		switch {
		case a == nil, o == nil, sessions == nil, sFn == nil:
			err := fmt.Errorf("%s: authenticator, orchestrator, session store and success func are required: %w", op, b2c.ErrNilParameter)
			eFn(nil, b2c.MessageSignInFailed, err, w, req)
			return
		}
		ctx := req.Context()
		remoteFailure := func(f *b2c.RemoteFailure) {
			resp := &failureResponse{w: w, req: req}
			o.OnRemoteFailure(ctx, f, resp)
			if !resp.handled {
				eFn(nil, b2c.MessageSignInFailed, fmt.Errorf("%s: %w", op, f), w, req)
			}
		}
		genericFailure := func(err error) {
			remoteFailure(b2c.NewGenericFailure(fmt.Errorf("%s: %w", op, err)))
		}

		// FormValue prioritizes body values over query parameters.
		if e := req.FormValue("error"); e != "" {
			remoteFailure(b2c.NewProtocolFailure(e, req.FormValue("error_description"), req.FormValue("error_uri")))
			return
		}

		st, err := o.OpenState(req.FormValue("state"))
		if err != nil {
			genericFailure(err)
			return
		}
		claims, err := a.VerifyIdToken(ctx, st.Policy(), b2c.IdToken(req.FormValue("id_token")), st.Nonce())
		if err != nil {
			genericFailure(err)
			return
		}
		subject, err := claims.Subject(o.Config().SubjectClaim)
		if err != nil {
			genericFailure(err)
			return
		}

		code := req.FormValue("code")
		switch {
		case o.Config().IsDefaultPolicy(st.Policy()) && code == "":
			genericFailure(fmt.Errorf("authorization code is missing: %w", b2c.ErrInvalidParameter))
			return
		case o.Config().IsDefaultPolicy(st.Policy()):
			if _, err := o.OnCodeReceived(ctx, code, claims); err != nil {
				eFn(st, b2c.DisplayMessage(err), err, w, req)
				return
			}
		case code != "":
			genericFailure(fmt.Errorf("authorization code returned for policy %s: %w", st.Policy(), b2c.ErrInvalidParameter))
			return
		}

		sess := &Session{
			Subject: subject,
			Name:    claims.String("name"),
			Policy:  st.Policy(),
		}
		if err := sessions.Save(w, sess); err != nil {
			eFn(st, b2c.MessageSignInFailed, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(st, sess, w, req)
	}
}
