package controllers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postingapp/app/config"
	"postingapp/app/controllers"
	"postingapp/app/models"
	"postingapp/app/repositories/mock"
	"postingapp/app/routes"
	"postingapp/app/services"
	"postingapp/app/session"
)

type testApp struct {
	router   *mux.Router
	postRepo *mock.PostRepository
	userRepo *mock.UserRepository
	users    *services.UserService
	sessions *session.Manager
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	postRepo := mock.NewPostRepository()
	postRepo.Now = stepClock()
	userRepo := mock.NewUserRepository()
	sessions, err := session.NewManager(session.NewBadgerStore(db), config.Default().Session)
	require.NoError(t, err)
	userService := services.NewUserService(userRepo)

	router, err := routes.SetupRoutes(routes.Dependencies{
		Posts:    services.NewPostService(postRepo),
		Users:    userService,
		Sessions: sessions,
		Log:      zap.NewNop(),
	})
	require.NoError(t, err)

	return &testApp{
		router:   router,
		postRepo: postRepo,
		userRepo: userRepo,
		users:    userService,
		sessions: sessions,
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// browser replays the cookies it was given, like a real client would.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (a *testApp) newBrowser(t *testing.T) *browser {
	return &browser{t: t, handler: a.router, cookies: make(map[string]*http.Cookie)}
}

// signedIn returns a browser with a live session for a freshly created user.
func (a *testApp) signedIn(t *testing.T, username string) (*browser, *models.User) {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: []byte("unused")}
	require.NoError(t, a.userRepo.Create(context.Background(), user))

	w := httptest.NewRecorder()
	_, err := a.sessions.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), user.ID)
	require.NoError(t, err)

	b := a.newBrowser(t)
	b.keep(w)
	return b, user
}

func (b *browser) keep(w *httptest.ResponseRecorder) {
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, req)
	b.keep(w)
	return w
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func postForm(title, content string) url.Values {
	return url.Values{"title": {title}, "content": {content}}
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, location, w.Header().Get("Location"))
}

func TestAnonymousRequestsAreSentToLogin(t *testing.T) {
	app := setupTestApp(t)
	b := app.newBrowser(t)

	for _, path := range []string{"/posts", "/posts/1", "/posts/register", "/posts/1/edit"} {
		assertRedirect(t, b.get(path), "/login")
	}
	for _, path := range []string{"/posts/create", "/posts/1/update", "/posts/1/delete"} {
		assertRedirect(t, b.post(path, postForm("x", "y")), "/login")
	}
	assert.Zero(t, app.postRepo.Count())
}

func TestSessionOfDeletedUserIsAnonymous(t *testing.T) {
	app := setupTestApp(t)
	b := app.newBrowser(t)

	w := httptest.NewRecorder()
	_, err := app.sessions.Start(w, httptest.NewRequest(http.MethodPost, "/login", nil), 42)
	require.NoError(t, err)
	b.keep(w)

	assertRedirect(t, b.get("/posts"), "/login")
}

// Alice creates a post, Bob may read but not edit it, Alice edits it.
func TestOwnershipScenario(t *testing.T) {
	app := setupTestApp(t)
	alice, aliceUser := app.signedIn(t, "alice")
	bob, _ := app.signedIn(t, "bob")

	w := alice.post("/posts/create", postForm("Hello", "World"))
	assertRedirect(t, w, "/posts")

	post, err := app.postRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "World", post.Content)
	assert.Equal(t, aliceUser.ID, post.UserID)

	w = bob.get("/posts/1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>Hello</h1>")
	assert.NotContains(t, w.Body.String(), "/posts/1/edit")

	w = bob.get("/posts/1/edit")
	assertRedirect(t, w, "/posts")
	assert.Contains(t, bob.get("/posts").Body.String(), controllers.MsgInvalidAccess)

	w = alice.post("/posts/1/update", postForm("Hi", "World"))
	assertRedirect(t, w, "/posts/1")

	w = alice.get("/posts/1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>Hi</h1>")
	assert.Contains(t, w.Body.String(), controllers.MsgPostUpdated)
	assert.Contains(t, w.Body.String(), "/posts/1/edit")
}

func TestNonOwnerCannotMutate(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	bob, _ := app.signedIn(t, "bob")

	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")
	before, err := app.postRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		do   func() *httptest.ResponseRecorder
	}{
		{"edit", func() *httptest.ResponseRecorder { return bob.get("/posts/1/edit") }},
		{"update", func() *httptest.ResponseRecorder { return bob.post("/posts/1/update", postForm("Hacked", "!")) }},
		{"delete", func() *httptest.ResponseRecorder { return bob.post("/posts/1/delete", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRedirect(t, tt.do(), "/posts")
			assert.Contains(t, bob.get("/posts").Body.String(), controllers.MsgInvalidAccess)

			after, err := app.postRepo.GetByID(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestMissingPosts(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")

	t.Run("show", func(t *testing.T) {
		assertRedirect(t, alice.get("/posts/999"), "/posts")
		assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgPostNotFound)
	})

	t.Run("id overflowing int", func(t *testing.T) {
		assertRedirect(t, alice.get("/posts/99999999999999999999999"), "/posts")
		assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgPostNotFound)
	})

	// a missing post looks exactly like someone else's
	for _, tc := range []struct {
		name string
		do   func() *httptest.ResponseRecorder
	}{
		{"edit", func() *httptest.ResponseRecorder { return alice.get("/posts/999/edit") }},
		{"update", func() *httptest.ResponseRecorder { return alice.post("/posts/999/update", postForm("a", "b")) }},
		{"delete", func() *httptest.ResponseRecorder { return alice.post("/posts/999/delete", nil) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assertRedirect(t, tc.do(), "/posts")
			assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgInvalidAccess)
		})
	}

	assert.Zero(t, app.postRepo.Count())
}

func TestCreateValidation(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")

	w := alice.post("/posts/create", postForm("", "World"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "タイトルを入力してください。")
	assert.NotContains(t, body, "本文を入力してください。")
	assert.Contains(t, body, ">World</textarea>", "entered content is kept")
	assert.Zero(t, app.postRepo.Count())

	w = alice.post("/posts/create", postForm("   ", "  "))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "本文を入力してください。")
	assert.Zero(t, app.postRepo.Count())
}

func TestUpdateValidation(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")

	w := alice.post("/posts/1/update", postForm("Hi", ""))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "本文を入力してください。")
	assert.Contains(t, w.Body.String(), `action="/posts/1/update"`)
	assert.Contains(t, w.Body.String(), `value="Hi"`)

	post, err := app.postRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "World", post.Content)
}

func TestRepeatedUpdate(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")

	assertRedirect(t, alice.post("/posts/1/update", postForm("Hi", "There")), "/posts/1")
	first, err := app.postRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)

	assertRedirect(t, alice.post("/posts/1/update", postForm("Hi", "There")), "/posts/1")
	second, err := app.postRepo.GetByID(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestEditFormIsPrefilled(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")

	w := alice.get("/posts/1/edit")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="Hello"`)
	assert.Contains(t, w.Body.String(), ">World</textarea>")
}

func TestDelete(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")

	assertRedirect(t, alice.post("/posts/1/delete", nil), "/posts")
	assert.Zero(t, app.postRepo.Count())
	assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgPostDeleted)

	assertRedirect(t, alice.post("/posts/1/delete", nil), "/posts")
	assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgInvalidAccess)
}

func TestIndexListsOwnPostsInUpdateOrder(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	bob, _ := app.signedIn(t, "bob")

	for _, title := range []string{"first", "second", "third"} {
		assertRedirect(t, alice.post("/posts/create", postForm(title, "body")), "/posts")
	}
	assertRedirect(t, bob.post("/posts/create", postForm("not mine", "body")), "/posts")
	assertRedirect(t, alice.post("/posts/1/update", postForm("first edited", "body")), "/posts/1")

	w := alice.get("/posts")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.NotContains(t, body, "not mine")
	second := strings.Index(body, ">second<")
	third := strings.Index(body, ">third<")
	first := strings.Index(body, ">first edited<")
	require.True(t, second >= 0 && third >= 0 && first >= 0)
	assert.Less(t, second, third)
	assert.Less(t, third, first)
}

func TestFlashIsShownOnce(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")

	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")

	assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgPostCreated)
	assert.NotContains(t, alice.get("/posts").Body.String(), controllers.MsgPostCreated)
}

func TestFlashSurvivesFormRerender(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")

	assertRedirect(t, alice.post("/posts/create", postForm("Hello", "World")), "/posts")

	// a failed submit before the redirect target is viewed keeps the message queued
	w := alice.post("/posts/create", postForm("", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), controllers.MsgPostCreated)

	w = alice.post("/posts/1/update", postForm("Hi", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), controllers.MsgPostCreated)

	assert.Contains(t, alice.get("/posts").Body.String(), controllers.MsgPostCreated)
	assert.NotContains(t, alice.get("/posts").Body.String(), controllers.MsgPostCreated)
}

func TestRegisterForm(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")

	w := alice.get("/posts/register")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/posts/create"`)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"), "served through the application router")

	assertRedirect(t, alice.get("/"), "/posts")
}

func TestStoreFailureIsServerError(t *testing.T) {
	app := setupTestApp(t)
	alice, _ := app.signedIn(t, "alice")
	app.postRepo.Err = assert.AnError

	assert.Equal(t, http.StatusInternalServerError, alice.get("/posts").Code)
	assert.Equal(t, http.StatusInternalServerError, alice.get("/posts/1").Code)
	assert.Equal(t, http.StatusInternalServerError, alice.post("/posts/create", postForm("a", "b")).Code)
}
