package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postingapp/app/config"
)

func setupManager(t *testing.T) (*Manager, *BadgerStore) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewBadgerStore(db)
	m, err := NewManager(store, config.Default().Session)
	require.NoError(t, err)
	return m, store
}

// requestWith builds a request that carries the cookies set on w.
func requestWith(w *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManagerStartAndCurrent(t *testing.T) {
	m, _ := setupManager(t)

	_, err := m.Current(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	w := httptest.NewRecorder()
	s, err := m.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 42)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "postingapp_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.NotEmpty(t, cookies[0].Value)
	assert.NotContains(t, cookies[0].Value, s.ID, "the cookie carries a signed id")

	current, err := m.Current(requestWith(w))
	require.NoError(t, err)
	assert.Equal(t, 42, current.UserID)
	assert.Equal(t, s.ID, current.ID)
}

func TestManagerStartRotatesSession(t *testing.T) {
	m, store := setupManager(t)

	first := httptest.NewRecorder()
	old, err := m.Start(first, httptest.NewRequest(http.MethodPost, "/login", nil), 1)
	require.NoError(t, err)

	second := httptest.NewRecorder()
	fresh, err := m.Start(second, requestWith(first), 2)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	_, err = store.Load(context.Background(), old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerUnknownCookie(t *testing.T) {
	m, _ := setupManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "postingapp_session", Value: "forged"})
	_, err := m.Current(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManagerRejectsTamperedCookie(t *testing.T) {
	m, _ := setupManager(t)

	w := httptest.NewRecorder()
	s, err := m.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 5)
	require.NoError(t, err)
	signed := w.Result().Cookies()[0]

	// the bare id is not accepted without its signature
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: signed.Name, Value: s.ID})
	_, err = m.Current(req)
	assert.ErrorIs(t, err, ErrNoSession)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: signed.Name, Value: signed.Value[:len(signed.Value)-2] + "xx"})
	_, err = m.Current(req)
	assert.ErrorIs(t, err, ErrNoSession)

	// a manager with another secret does not trust the cookie either
	other, err := NewManager(m.store.backend, config.Default().Session)
	require.NoError(t, err)
	_, err = other.Current(requestWith(w))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManagerSharedSecret(t *testing.T) {
	_, store := setupManager(t)
	cfg := config.Default().Session
	cfg.Secret = "0123456789abcdef0123456789abcdef"

	first, err := NewManager(store, cfg)
	require.NoError(t, err)
	second, err := NewManager(store, cfg)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	_, err = first.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 9)
	require.NoError(t, err)

	current, err := second.Current(requestWith(w))
	require.NoError(t, err)
	assert.Equal(t, 9, current.UserID)
}

func TestManagerDestroy(t *testing.T) {
	m, _ := setupManager(t)

	w := httptest.NewRecorder()
	_, err := m.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 7)
	require.NoError(t, err)

	out := httptest.NewRecorder()
	require.NoError(t, m.Destroy(out, requestWith(w)))

	cookies := out.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)

	// the old cookie no longer names a session
	_, err = m.Current(requestWith(w))
	assert.ErrorIs(t, err, ErrNoSession)

	assert.NoError(t, m.Destroy(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestFlashIsShownOnce(t *testing.T) {
	m, _ := setupManager(t)

	w := httptest.NewRecorder()
	_, err := m.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 1)
	require.NoError(t, err)
	req := requestWith(w)

	require.NoError(t, m.AddFlash(httptest.NewRecorder(), req, FlashSuccess, "投稿が完了しました。"))

	// the next request sees the flash once
	next := requestWith(w)
	flash, err := m.PopFlash(httptest.NewRecorder(), next)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{FlashSuccess: "投稿が完了しました。"}, flash)

	flash, err = m.PopFlash(httptest.NewRecorder(), requestWith(w))
	require.NoError(t, err)
	assert.Empty(t, flash)

	current, err := m.Current(requestWith(w))
	require.NoError(t, err)
	assert.Equal(t, 1, current.UserID, "popping a flash keeps the sign-in")
}

func TestFlashLatestMessageWins(t *testing.T) {
	m, _ := setupManager(t)

	w := httptest.NewRecorder()
	_, err := m.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 1)
	require.NoError(t, err)

	require.NoError(t, m.AddFlash(httptest.NewRecorder(), requestWith(w), FlashError, "first"))
	require.NoError(t, m.AddFlash(httptest.NewRecorder(), requestWith(w), FlashError, "second"))
	require.NoError(t, m.AddFlash(httptest.NewRecorder(), requestWith(w), FlashSuccess, "done"))

	flash, err := m.PopFlash(httptest.NewRecorder(), requestWith(w))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{FlashError: "second", FlashSuccess: "done"}, flash)
}

func TestFlashWithoutSession(t *testing.T) {
	m, _ := setupManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := m.AddFlash(httptest.NewRecorder(), req, FlashError, "x")
	assert.ErrorIs(t, err, ErrNoSession)

	flash, err := m.PopFlash(httptest.NewRecorder(), req)
	assert.NoError(t, err)
	assert.Nil(t, flash)
}

func TestBadgerStore(t *testing.T) {
	_, store := setupManager(t)
	runStoreTests(t, store)
}

func TestDataRoundTripsThroughValues(t *testing.T) {
	data := &Data{UserID: 4, Flash: map[string][]string{FlashSuccess: {"a", "b"}}}
	assert.Equal(t, data, dataFromValues(data.values()))
	assert.Equal(t, &Data{}, dataFromValues((&Data{}).values()))
}

func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	data := &Data{UserID: 3, Flash: map[string][]string{FlashError: {"不正なアクセスです。"}}}
	require.NoError(t, store.Save(ctx, "abc", data, time.Hour))

	got, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, "abc"))
	_, err = store.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}
