package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// serverStore is a sessions.Store that keeps values in a Store and puts
// only the signed session id in the cookie.
type serverStore struct {
	backend Store
	codecs  []securecookie.Codec
	options *sessions.Options
}

var _ sessions.Store = (*serverStore)(nil)

func newServerStore(backend Store, hashKey []byte, options *sessions.Options) *serverStore {
	codecs := securecookie.CodecsFromPairs(hashKey)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(options.MaxAge)
		}
	}
	return &serverStore{backend: backend, codecs: codecs, options: options}
}

func (s *serverStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A cookie that fails
// verification or names an expired session yields a fresh session.
func (s *serverStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.codecs...); err != nil {
		session.ID = ""
		return session, nil
	}

	data, err := s.backend.Load(r.Context(), session.ID)
	if errors.Is(err, ErrNotFound) {
		session.ID = ""
		return session, nil
	}
	if err != nil {
		return session, err
	}
	session.Values = data.values()
	session.IsNew = false
	return session, nil
}

// Save writes the session back and slides its expiry forward. A negative
// MaxAge deletes it.
func (s *serverStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(r.Context(), session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.backend.Save(r.Context(), session.ID, dataFromValues(session.Values), ttl); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func dataFromValues(values map[interface{}]interface{}) *Data {
	data := &Data{}
	for k, v := range values {
		key, ok := k.(string)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case int:
			if key == userIDKey {
				data.UserID = val
			}
		case []interface{}:
			for _, f := range val {
				msg, ok := f.(string)
				if !ok {
					continue
				}
				if data.Flash == nil {
					data.Flash = make(map[string][]string)
				}
				data.Flash[key] = append(data.Flash[key], msg)
			}
		}
	}
	return data
}

func (d *Data) values() map[interface{}]interface{} {
	values := make(map[interface{}]interface{})
	if d.UserID != 0 {
		values[userIDKey] = d.UserID
	}
	for key, messages := range d.Flash {
		flashes := make([]interface{}, 0, len(messages))
		for _, msg := range messages {
			flashes = append(flashes, msg)
		}
		values[key] = flashes
	}
	return values
}
