package main

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/b2cauth/b2cauth/b2c/callback"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<nav>
{{if .Session}}Hello {{.Session.Name}}!
<a href="/Home/Api">Api</a>
<a href="/Account/EditProfile">Edit profile</a>
<a href="/Account/ResetPassword">Reset password</a>
<a href="/Account/SignOut">Sign out</a>
{{else}}<a href="/Account/SignIn">Sign in</a>{{end}}
</nav>
<h2>{{.Title}}</h2>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .RequestId}}<p>Request ID: <code>{{.RequestId}}</code></p>{{end}}
</body>
</html>`))

type page struct {
	Title     string
	Message   string
	RequestId string
	Session   *callback.Session
}

func (a *app) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, p); err != nil {
		a.logger.Error("unable to render page", "title", p.Title, "error", err)
	}
}

// routes returns the web app's handler.
func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	c := a.o.Config()
	r.Get("/", a.home)
	r.Get("/Home/Error", a.errorPage)
	r.With(callback.RequireSession(a.sessions, a.provider, a.o)).Get("/Home/Api", a.callApi)

	r.Get("/Account/SignIn", callback.SignIn(a.provider, a.o))
	r.Get("/Account/EditProfile", callback.EditProfile(a.provider, a.o))
	r.Get("/Account/ResetPassword", callback.ResetPassword(a.provider, a.o))
	r.Get("/Account/SignOut", callback.SignOut(a.sessions, "/"))

	cb := callback.Callback(a.provider, a.o, a.sessions, callback.RedirectToReturnTo, a.signInFailed)
	r.Post(c.CallbackPath, cb)
	r.Get(c.CallbackPath, cb)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return r
}

func (a *app) home(w http.ResponseWriter, req *http.Request) {
	s, _ := a.sessions.Load(req)
	a.render(w, http.StatusOK, page{Title: "Home", Session: s})
}

func (a *app) errorPage(w http.ResponseWriter, req *http.Request) {
	s, _ := a.sessions.Load(req)
	a.render(w, http.StatusOK, page{
		Title:     "Error",
		Message:   "An error occurred while processing your request.",
		RequestId: middleware.GetReqID(req.Context()),
		Session:   s,
	})
}

func (a *app) callApi(w http.ResponseWriter, req *http.Request) {
	s, _ := callback.SessionFromContext(req.Context())
	if a.api == nil {
		a.render(w, http.StatusOK, page{Title: "Api", Message: "No API is configured.", Session: s})
		return
	}
	payload, err := a.api.Call(req.Context(), s.Subject)
	if err != nil {
		a.logger.Debug("api call failed", "subject", s.Subject, "error", err)
	}
	a.render(w, http.StatusOK, page{Title: "Api", Message: payload, Session: s})
}

// signInFailed is the callback's ErrorResponseFunc.
func (a *app) signInFailed(_ *b2c.AttemptState, message string, e error, w http.ResponseWriter, req *http.Request) {
	status := http.StatusInternalServerError
	if errors.Is(e, b2c.ErrReauthRequired) {
		status = http.StatusUnauthorized
	}
	a.logger.Warn("sign in failed", "error", e)
	a.render(w, status, page{
		Title:     "Sign in failed",
		Message:   message,
		RequestId: middleware.GetReqID(req.Context()),
	})
}

func (a *app) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)
		a.logger.Debug("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}
