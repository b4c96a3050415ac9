package callback

import (
	"errors"
	"net/http"

	"github.com/b2cauth/b2cauth/b2c"
)

// SuccessResponseFunc is used by Callback to create a http response once the
// session was established.
//
// st is the attempt the provider responded to and s is the session that was
// just written to w.
type SuccessResponseFunc func(st *b2c.AttemptState, s *Session, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Callback to create a http response when the
// authorization code couldn't be redeemed or the session couldn't be written.
//
// message is suitable for showing to the user (see b2c.DisplayMessage) and e
// is the error raised while processing the request. st is nil when the
// failure happened before the attempt state was verified.
type ErrorResponseFunc func(st *b2c.AttemptState, message string, e error, w http.ResponseWriter, req *http.Request)

// RedirectToReturnTo is a SuccessResponseFunc which redirects to the
// attempt's return path, or to the root when it has none.
func RedirectToReturnTo(st *b2c.AttemptState, _ *Session, w http.ResponseWriter, req *http.Request) {
	to := "/"
	if st != nil && isLocalPath(st.ReturnTo()) {
		to = st.ReturnTo()
	}
	http.Redirect(w, req, to, http.StatusFound)
}

// WriteError is an ErrorResponseFunc which writes message as plain text:
// 401 when the user has to sign in again and 500 otherwise.
func WriteError(_ *b2c.AttemptState, message string, e error, w http.ResponseWriter, _ *http.Request) {
	status := http.StatusInternalServerError
	if errors.Is(e, b2c.ErrReauthRequired) {
		status = http.StatusUnauthorized
	}
	http.Error(w, message, status)
}

// failureResponse adapts a http response to a b2c.FailureResponse.
type failureResponse struct {
	w       http.ResponseWriter
	req     *http.Request
	handled bool
}

func (r *failureResponse) HandleResponse() { r.handled = true }

func (r *failureResponse) Redirect(location string) {
	http.Redirect(r.w, r.req, location, http.StatusFound)
}
