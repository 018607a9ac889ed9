package routes

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"postingapp/app/controllers"
	"postingapp/app/middleware"
	"postingapp/app/services"
	"postingapp/app/session"
	"postingapp/app/views"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Posts    *services.PostService
	Users    *services.UserService
	Sessions *session.Manager
	Log      *zap.Logger
}

// SetupRoutes defines the application's routes and returns a router.
func SetupRoutes(deps Dependencies) (*mux.Router, error) {
	v, err := controllers.LoadViews(views.FS)
	if err != nil {
		return nil, fmt.Errorf("failed to load views: %w", err)
	}

	router := mux.NewRouter()

	// Apply global middleware
	router.Use(middleware.Logger(deps.Log))
	router.Use(middleware.Recoverer(deps.Log))
	router.Use(middleware.SecurityHeaders)

	postController := controllers.NewPostController(deps.Posts, deps.Users, deps.Sessions, v, deps.Log)
	authController := controllers.NewAuthController(deps.Users, deps.Sessions, v, deps.Log)

	router.HandleFunc("/healthz", healthz).Methods("GET")
	router.Handle("/", http.RedirectHandler("/posts", http.StatusSeeOther)).Methods("GET")

	router.HandleFunc("/login", authController.LoginForm).Methods("GET")
	router.HandleFunc("/login", authController.Login).Methods("POST")
	router.HandleFunc("/logout", authController.Logout).Methods("POST")

	authed := postController.Authed
	posts := router.PathPrefix("/posts").Subrouter()
	posts.HandleFunc("", authed(postController.Index)).Methods("GET")
	posts.HandleFunc("/register", authed(postController.Register)).Methods("GET")
	posts.HandleFunc("/create", authed(postController.Create)).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}", authed(postController.Show)).Methods("GET")
	posts.HandleFunc("/{id:[0-9]+}/edit", authed(postController.Edit)).Methods("GET")
	posts.HandleFunc("/{id:[0-9]+}/update", authed(postController.Update)).Methods("POST")
	posts.HandleFunc("/{id:[0-9]+}/delete", authed(postController.Delete)).Methods("POST")

	return router, nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
