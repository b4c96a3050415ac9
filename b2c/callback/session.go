package callback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/gorilla/securecookie"
)

const (
	// DefaultSessionCookieName is the name of the session cookie.
	DefaultSessionCookieName = "b2c_session"

	// DefaultSessionMaxAge is how long a session cookie is valid.
	DefaultSessionMaxAge = 8 * time.Hour

	// MinSessionHashKeyLength is the minimum length of the key which signs
	// the session cookie.
	MinSessionHashKeyLength = 32
)

// Session is the signed-in identity carried by the session cookie.
type Session struct {
	// Subject is the identity's subject identifier; the token cache is keyed
	// by it.
	Subject string `json:"sub"`

	// Name is the identity's display name.
	Name string `json:"name,omitempty"`

	// Policy is the policy the session was last established under.
	Policy string `json:"pol,omitempty"`

	IssuedAt time.Time `json:"iat"`
}

// SessionStore reads and writes the session cookie. Cookies are signed and,
// when a block key is given, encrypted.
type SessionStore struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

// NewSessionStore creates a SessionStore. hashKey signs the cookie and must
// be at least 32 bytes. blockKey is optional; when set it must be 16, 24 or
// 32 bytes and the cookie is encrypted with AES.
// Supported options:
//
//	WithCookieName
//	WithMaxAge
//	WithSecureCookie
//	WithNow
func NewSessionStore(hashKey, blockKey []byte, opt ...b2c.Option) (*SessionStore, error) {
	const op = "callback.NewSessionStore"
	if len(hashKey) < MinSessionHashKeyLength {
		return nil, fmt.Errorf("%s: hash key is shorter than %d bytes: %w", op, MinSessionHashKeyLength, b2c.ErrInvalidParameter)
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: block key is not 16, 24 or 32 bytes: %w", op, b2c.ErrInvalidParameter)
	}
	opts := getSessionOpts(opt...)
	if opts.withCookieName == "" {
		return nil, fmt.Errorf("%s: cookie name is empty: %w", op, b2c.ErrInvalidParameter)
	}
	if opts.withMaxAge <= 0 {
		return nil, fmt.Errorf("%s: max age not greater than zero: %w", op, b2c.ErrInvalidParameter)
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(hashKey, blockKey).
		MaxAge(int(opts.withMaxAge.Seconds())).
		SetSerializer(securecookie.JSONEncoder{})
	return &SessionStore{
		codec:  codec,
		name:   opts.withCookieName,
		maxAge: opts.withMaxAge,
		secure: opts.withSecure,
		now:    opts.withNowFunc,
	}, nil
}

// Save writes s as the session cookie.
func (s *SessionStore) Save(w http.ResponseWriter, sess *Session) error {
	const op = "SessionStore.Save"
	if sess == nil {
		return fmt.Errorf("%s: session is nil: %w", op, b2c.ErrNilParameter)
	}
	if sess.Subject == "" {
		return fmt.Errorf("%s: session subject is empty: %w", op, b2c.ErrInvalidParameter)
	}
	if sess.IssuedAt.IsZero() {
		sess.IssuedAt = s.now()
	}
	v, err := s.codec.Encode(s.name, sess)
	if err != nil {
		return fmt.Errorf("%s: unable to encode session: %w", op, err)
	}
	http.SetCookie(w, s.cookie(v, int(s.maxAge.Seconds())))
	return nil
}

// Load returns the request's session. ok is false when there is no cookie or
// it doesn't verify.
func (s *SessionStore) Load(req *http.Request) (sess *Session, ok bool) {
	c, err := req.Cookie(s.name)
	if err != nil {
		return nil, false
	}
	var out Session
	if err := s.codec.Decode(s.name, c.Value, &out); err != nil || out.Subject == "" {
		return nil, false
	}
	return &out, true
}

// Clear removes the session cookie.
func (s *SessionStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", -1))
}

func (s *SessionStore) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type sessionContextKey struct{}

// ContextWithSession returns a copy of ctx carrying s.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session RequireSession stored in ctx.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// RequireSession returns a middleware which passes requests carrying a
// session on to next, with the session in their context. Anonymous requests
// are challenged under the default policy and return to the requested path.
func RequireSession(sessions *SessionStore, a Authenticator, o *b2c.Orchestrator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if s, ok := sessions.Load(req); ok {
				next.ServeHTTP(w, req.WithContext(ContextWithSession(req.Context(), s)))
				return
			}
			props := b2c.Properties{b2c.RedirectUriProperty: "/"}
			if rt := req.URL.RequestURI(); req.Method == http.MethodGet && isLocalPath(rt) {
				props[b2c.RedirectUriProperty] = rt
			}
			if err := challenge(w, req, a, o, props); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}
}

// SignOut creates a handler which clears the session cookie and redirects to
// redirectTo.
func SignOut(sessions *SessionStore, redirectTo string) http.HandlerFunc {
	if !isLocalPath(redirectTo) {
		redirectTo = "/"
	}
	return func(w http.ResponseWriter, req *http.Request) {
		sessions.Clear(w)
		http.Redirect(w, req, redirectTo, http.StatusFound)
	}
}

// sessionOptions is the set of available options for SessionStore
type sessionOptions struct {
	withCookieName string
	withMaxAge     time.Duration
	withSecure     bool
	withNowFunc    func() time.Time
}

func sessionDefaults() sessionOptions {
	return sessionOptions{
		withCookieName: DefaultSessionCookieName,
		withMaxAge:     DefaultSessionMaxAge,
		withSecure:     true,
		withNowFunc:    time.Now,
	}
}

func getSessionOpts(opt ...b2c.Option) sessionOptions {
	opts := sessionDefaults()
	b2c.ApplyOpts(&opts, opt...)
	return opts
}

// WithCookieName provides an optional session cookie name
func WithCookieName(name string) b2c.Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withCookieName = name
		}
	}
}

// WithMaxAge provides an optional session lifetime
func WithMaxAge(d time.Duration) b2c.Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withMaxAge = d
		}
	}
}

// WithSecureCookie sets whether the session cookie is only sent over https.
// It defaults to true.
func WithSecureCookie(secure bool) b2c.Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok {
			o.withSecure = secure
		}
	}
}

// WithNow provides an optional func for determining the time a session is
// issued at
func WithNow(now func() time.Time) b2c.Option {
	return func(o interface{}) {
		if o, ok := o.(*sessionOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
