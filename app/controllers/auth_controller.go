package controllers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"postingapp/app/models"
	"postingapp/app/services"
	"postingapp/app/session"
)

// MsgLoginFailed is shown for an unknown user and a wrong password alike.
const MsgLoginFailed = "ユーザー名またはパスワードが正しくありません。"

// AuthController signs users in and out.
type AuthController struct {
	base
}

func NewAuthController(userService *services.UserService, sessions *session.Manager, views *Views, log *zap.Logger) *AuthController {
	return &AuthController{base: base{
		users:    userService,
		sessions: sessions,
		views:    views,
		log:      log,
	}}
}

// LoginForm shows the sign-in page, or skips it when already signed in.
func (ac *AuthController) LoginForm(w http.ResponseWriter, r *http.Request) {
	if _, err := ac.currentUser(r); err == nil {
		http.Redirect(w, r, "/posts", http.StatusSeeOther)
		return
	}
	ac.render(w, r, nil, http.StatusOK, "auth/login", page{Title: "ログイン"})
}

func (ac *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	form := models.LoginFormFromValues(r.PostForm)
	if errs := form.Validate(); len(errs) > 0 {
		ac.render(w, r, nil, http.StatusUnprocessableEntity, "auth/login", page{
			Title:    "ログイン",
			Username: form.Username,
			Errors:   errs,
		})
		return
	}

	user, err := ac.users.Authenticate(r.Context(), form.Credentials())
	if errors.Is(err, services.ErrInvalidCredentials) {
		ac.log.Info("login failed", zap.String("username", form.Username))
		ac.render(w, r, nil, http.StatusUnauthorized, "auth/login", page{
			Title:    "ログイン",
			Flash:    map[string]string{session.FlashError: MsgLoginFailed},
			Username: form.Username,
		})
		return
	}
	if err != nil {
		ac.serverError(w, r, err)
		return
	}

	if _, err := ac.sessions.Start(w, r, user.ID); err != nil {
		ac.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

func (ac *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	if err := ac.sessions.Destroy(w, r); err != nil {
		ac.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
