// Package session keeps the signed-in user and the one-shot flash messages
// of a browser session. Sessions are gorilla/sessions sessions whose values
// live in a server-side Store; the cookie carries only a signed id.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"postingapp/app/config"
)

var (
	// ErrNotFound is returned by a Store for unknown or expired ids.
	ErrNotFound = errors.New("session not found")
	// ErrNoSession is returned when the request carries no live session.
	ErrNoSession = errors.New("no session")
)

// Flash keys understood by the views.
const (
	FlashError   = "errorMessage"
	FlashSuccess = "successMessage"
)

var flashKeys = []string{FlashError, FlashSuccess}

const userIDKey = "user_id"

// Data is what a session remembers between requests.
type Data struct {
	UserID int                 `json:"user_id,omitempty"`
	Flash  map[string][]string `json:"flash,omitempty"`
}

// Store persists session data with an expiry.
type Store interface {
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Session is the signed-in part of a live session.
type Session struct {
	ID     string
	UserID int
}

// Manager ties sessions to HTTP cookies.
type Manager struct {
	store *serverStore
	name  string
}

// NewManager signs cookies with cfg.Secret, or with a random key when no
// secret is configured.
func NewManager(store Store, cfg config.SessionConfig) (*Manager, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		if secret == nil {
			return nil, errors.New("failed to generate session secret")
		}
	}

	ss := newServerStore(store, secret, &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.TTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return &Manager{store: ss, name: cfg.CookieName}, nil
}

// get returns the request's session, loading it once per request.
func (m *Manager) get(r *http.Request) (*sessions.Session, error) {
	s, err := sessions.GetRegistry(r).Get(m.store, m.name)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// Current returns the signed-in session of the request.
func (m *Manager) Current(r *http.Request) (*Session, error) {
	s, err := m.get(r)
	if err != nil {
		return nil, err
	}
	userID, ok := s.Values[userIDKey].(int)
	if !ok || s.Options.MaxAge < 0 {
		return nil, ErrNoSession
	}
	return &Session{ID: s.ID, UserID: userID}, nil
}

// Start signs userID in under a fresh session id. Any session the request
// already carried is discarded.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, userID int) (*Session, error) {
	s, err := m.get(r)
	if err != nil {
		return nil, err
	}
	if s.ID != "" {
		if err := m.store.backend.Delete(r.Context(), s.ID); err != nil {
			return nil, fmt.Errorf("failed to drop previous session: %w", err)
		}
	}

	s.ID = ""
	s.Values = map[interface{}]interface{}{userIDKey: userID}
	s.Options.MaxAge = m.store.options.MaxAge
	if err := s.Save(r, w); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.IsNew = false
	return &Session{ID: s.ID, UserID: userID}, nil
}

// Destroy removes the session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	s, err := m.get(r)
	if err != nil {
		return err
	}
	s.Values = make(map[interface{}]interface{})
	s.Options.MaxAge = -1
	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AddFlash stores a message for the next rendered page.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, key, message string) error {
	if _, err := m.Current(r); err != nil {
		return err
	}
	s, err := m.get(r)
	if err != nil {
		return err
	}
	s.AddFlash(message, key)
	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// PopFlash returns the pending flash messages and clears them, so each
// message is shown exactly once. When a key was flashed more than once the
// latest message wins. A request without a session has none.
func (m *Manager) PopFlash(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	if _, err := m.Current(r); err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	s, err := m.get(r)
	if err != nil {
		return nil, err
	}

	var flash map[string]string
	for _, key := range flashKeys {
		messages := s.Flashes(key)
		if len(messages) == 0 {
			continue
		}
		if msg, ok := messages[len(messages)-1].(string); ok {
			if flash == nil {
				flash = make(map[string]string)
			}
			flash[key] = msg
		}
	}
	if flash == nil {
		return nil, nil
	}

	if err := s.Save(r, w); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return flash, nil
}
