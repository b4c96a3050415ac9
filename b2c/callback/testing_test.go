package callback

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/b2cauth/b2cauth/tokencache"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	testStateKey   = []byte("0123456789abcdef0123456789abcdef")
	testSessionKey = []byte("fedcba9876543210fedcba9876543210")
)

// testApp is a host wired to a TestProvider: the account routes, the
// callback and a protected /Home/Api page.
type testApp struct {
	tp       *b2c.TestProvider
	p        *b2c.Provider
	o        *b2c.Orchestrator
	cache    *tokencache.Memory
	sessions *SessionStore
	srv      *httptest.Server
	client   *http.Client
}

func startTestApp(t *testing.T) *testApp {
	t.Helper()
	require := require.New(t)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tp := b2c.StartTestProvider(t)
	tp.SetAllowedRedirectURIs([]string{srv.URL + b2c.DefaultCallbackPath})
	p, err := b2c.NewProvider(tp.TestConfig())
	require.NoError(err)
	t.Cleanup(p.Done)

	codec, err := b2c.NewStateCodec(testStateKey)
	require.NoError(err)
	cache := tokencache.NewMemory()
	o, err := b2c.NewOrchestrator(p.Config(), p, cache, codec)
	require.NoError(err)
	sessions, err := NewSessionStore(testSessionKey, nil, WithSecureCookie(false))
	require.NoError(err)

	mux.Handle("/Account/SignIn", SignIn(p, o))
	mux.Handle("/Account/EditProfile", EditProfile(p, o))
	mux.Handle("/Account/ResetPassword", ResetPassword(p, o))
	mux.Handle("/Account/SignOut", SignOut(sessions, "/"))
	mux.Handle(b2c.DefaultCallbackPath, Callback(p, o, sessions, RedirectToReturnTo, WriteError))
	mux.Handle("/Home/Api", RequireSession(sessions, p, o)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s, _ := SessionFromContext(req.Context())
		fmt.Fprintf(w, "hello %s (%s)", s.Name, s.Subject)
	})))

	client, err := p.Config().HttpClient()
	require.NoError(err)
	client.Jar, err = cookiejar.New(nil)
	require.NoError(err)
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	return &testApp{tp: tp, p: p, o: o, cache: cache, sessions: sessions, srv: srv, client: client}
}

// get requests the app path, or an absolute URL, without following
// redirects.
func (a *testApp) get(t *testing.T, target string, header ...string) *http.Response {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	if !u.IsAbs() {
		target = a.srv.URL + target
	}
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// authorize follows a challenge to the provider and submits the form_post
// response it returns to the callback, as a browser would.
func (a *testApp) authorize(t *testing.T, challenge *http.Response) (*http.Response, url.Values) {
	t.Helper()
	require := require.New(t)
	require.Equal(http.StatusFound, challenge.StatusCode)

	page := a.get(t, challenge.Header.Get("Location"))
	require.Equal(http.StatusOK, page.StatusCode)
	root, err := html.Parse(page.Body)
	require.NoError(err)
	form, ok := scrape.Find(root, scrape.ByTag(atom.Form))
	require.True(ok, "form_post response has no form")

	fields := url.Values{}
	for _, in := range scrape.FindAll(form, scrape.ByTag(atom.Input)) {
		fields.Set(scrape.Attr(in, "name"), scrape.Attr(in, "value"))
	}
	return a.post(t, scrape.Attr(form, "action"), fields), fields
}

func (a *testApp) post(t *testing.T, target string, fields url.Values) *http.Response {
	t.Helper()
	resp, err := a.client.PostForm(target, fields)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// sessionCookie returns the session cookie the client holds for the app.
func (a *testApp) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	u, err := url.Parse(a.srv.URL)
	require.NoError(t, err)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == DefaultSessionCookieName {
			return c
		}
	}
	return nil
}
