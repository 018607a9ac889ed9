package controllers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"postingapp/app/middleware"
	"postingapp/app/models"
	"postingapp/app/repositories"
	"postingapp/app/services"
	"postingapp/app/session"
)

// page is the data every view is executed with.
type page struct {
	Title       string
	CurrentUser *models.User
	Flash       map[string]string

	Posts   []*models.Post
	Post    *models.Post
	IsOwner bool
	Form    models.PostForm
	Errors  models.FieldErrors

	Username string
}

// Every view is layout.html plus the files listed here.
var viewFiles = map[string][]string{
	"posts/index":    {"posts/index.html"},
	"posts/show":     {"posts/show.html"},
	"posts/register": {"posts/register.html", "posts/fields.html"},
	"posts/edit":     {"posts/edit.html", "posts/fields.html"},
	"auth/login":     {"auth/login.html"},
}

var templateFuncs = template.FuncMap{
	"formatTime": formatTime,
}

func formatTime(t time.Time) string {
	return t.Format("2006/01/02 15:04")
}

// Views holds the parsed page templates.
type Views struct {
	templates map[string]*template.Template
}

// LoadViews parses every page from fsys, normally views.FS.
func LoadViews(fsys fs.FS) (*Views, error) {
	templates := make(map[string]*template.Template, len(viewFiles))
	for name, files := range viewFiles {
		patterns := append([]string{"layout.html"}, files...)
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(fsys, patterns...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse view %s: %w", name, err)
		}
		templates[name] = t
	}
	return &Views{templates: templates}, nil
}

// Render executes the named view into a buffer first, so a template error
// never leaves a half written page behind.
func (v *Views) Render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := v.templates[name]
	if !ok {
		return fmt.Errorf("unknown view %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}

// UserHandlerFunc is a handler that runs for a signed-in user.
type UserHandlerFunc func(w http.ResponseWriter, r *http.Request, user *models.User)

// base carries what every HTML controller needs.
type base struct {
	users    *services.UserService
	sessions *session.Manager
	views    *Views
	log      *zap.Logger
}

// currentUser returns session.ErrNoSession when nobody is signed in, including
// when the session points at a user that no longer exists.
func (b *base) currentUser(r *http.Request) (*models.User, error) {
	s, err := b.sessions.Current(r)
	if err != nil {
		return nil, err
	}
	user, err := b.users.FindUserByID(r.Context(), s.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, session.ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authed resolves the current user once and hands it to h. Anonymous
// requests are sent to the login page.
func (b *base) Authed(h UserHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := b.currentUser(r)
		if errors.Is(err, session.ErrNoSession) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if err != nil {
			b.serverError(w, r, err)
			return
		}
		middleware.SetUserID(r.Context(), user.ID)
		h(w, r, user)
	}
}

// render attaches the user and any pending flash messages to p.
// render writes the named view. Pending flash messages are consumed only by
// a plain page view; form re-renders and inline messages leave them queued.
func (b *base) render(w http.ResponseWriter, r *http.Request, user *models.User, status int, name string, p page) {
	p.CurrentUser = user
	if p.Flash == nil && status == http.StatusOK {
		flash, err := b.sessions.PopFlash(w, r)
		if err != nil {
			b.log.Warn("failed to read flash messages", zap.Error(err))
		}
		p.Flash = flash
	}

	if err := b.views.Render(w, status, name, p); err != nil {
		b.serverError(w, r, err)
	}
}

func (b *base) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, key, message string) {
	if err := b.sessions.AddFlash(w, r, key, message); err != nil {
		b.log.Warn("failed to store flash message", zap.String("key", key), zap.Error(err))
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (b *base) serverError(w http.ResponseWriter, r *http.Request, err error) {
	b.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// postID reads the {id} route variable. Ids that do not fit an int are
// treated like any other unknown id.
func postID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
