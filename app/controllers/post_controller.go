package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"postingapp/app/models"
	"postingapp/app/repositories"
	"postingapp/app/services"
	"postingapp/app/session"
)

// Flash messages shown after post actions.
const (
	MsgPostNotFound  = "投稿が存在しません。"
	MsgInvalidAccess = "不正なアクセスです。"
	MsgPostCreated   = "投稿が完了しました。"
	MsgPostUpdated   = "投稿を編集しました。"
	MsgPostDeleted   = "投稿を削除しました。"
)

// PostController serves the post pages of the signed-in user.
type PostController struct {
	base
	postService *services.PostService
}

// NewPostController creates a new PostController
func NewPostController(postService *services.PostService, userService *services.UserService, sessions *session.Manager, views *Views, log *zap.Logger) *PostController {
	return &PostController{
		base: base{
			users:    userService,
			sessions: sessions,
			views:    views,
			log:      log,
		},
		postService: postService,
	}
}

// Index lists the user's own posts.
func (pc *PostController) Index(w http.ResponseWriter, r *http.Request, user *models.User) {
	posts, err := pc.postService.FindPostsByUser(r.Context(), user)
	if err != nil {
		pc.serverError(w, r, err)
		return
	}
	pc.render(w, r, user, http.StatusOK, "posts/index", page{Title: "投稿一覧", Posts: posts})
}

// Show displays a single post. Any signed-in user may read any post; only
// the owner is offered the edit and delete actions.
func (pc *PostController) Show(w http.ResponseWriter, r *http.Request, user *models.User) {
	id, ok := postID(r)
	if !ok {
		pc.redirectWithFlash(w, r, "/posts", session.FlashError, MsgPostNotFound)
		return
	}

	post, err := pc.postService.FindPostByID(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		pc.redirectWithFlash(w, r, "/posts", session.FlashError, MsgPostNotFound)
		return
	}
	if err != nil {
		pc.serverError(w, r, err)
		return
	}

	pc.render(w, r, user, http.StatusOK, "posts/show", page{
		Title:   post.Title,
		Post:    post,
		IsOwner: post.OwnedBy(user),
	})
}

// Register displays the empty form for a new post.
func (pc *PostController) Register(w http.ResponseWriter, r *http.Request, user *models.User) {
	pc.render(w, r, user, http.StatusOK, "posts/register", page{Title: "新規投稿"})
}

// Create stores a new post owned by user.
func (pc *PostController) Create(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	form := models.PostFormFromValues(r.PostForm)
	if errs := form.Validate(); len(errs) > 0 {
		pc.render(w, r, user, http.StatusUnprocessableEntity, "posts/register", page{
			Title:  "新規投稿",
			Form:   form,
			Errors: errs,
		})
		return
	}

	if _, err := pc.postService.CreatePost(r.Context(), form, user); err != nil {
		pc.serverError(w, r, err)
		return
	}
	pc.redirectWithFlash(w, r, "/posts", session.FlashSuccess, MsgPostCreated)
}

// Edit displays the form pre-filled with the post's current values.
func (pc *PostController) Edit(w http.ResponseWriter, r *http.Request, user *models.User) {
	post, ok := pc.ownedPost(w, r, user)
	if !ok {
		return
	}
	pc.render(w, r, user, http.StatusOK, "posts/edit", page{
		Title: "投稿編集",
		Post:  post,
		Form:  models.PostFormFromPost(post),
	})
}

// Update replaces the title and content of one of the user's posts.
func (pc *PostController) Update(w http.ResponseWriter, r *http.Request, user *models.User) {
	post, ok := pc.ownedPost(w, r, user)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	form := models.PostFormFromValues(r.PostForm)
	if errs := form.Validate(); len(errs) > 0 {
		pc.render(w, r, user, http.StatusUnprocessableEntity, "posts/edit", page{
			Title:  "投稿編集",
			Post:   post,
			Form:   form,
			Errors: errs,
		})
		return
	}

	_, err := pc.postService.UpdatePost(r.Context(), form, post)
	if errors.Is(err, repositories.ErrNotFound) {
		// deleted between the ownership check and the write
		pc.redirectWithFlash(w, r, "/posts", session.FlashError, MsgInvalidAccess)
		return
	}
	if err != nil {
		pc.serverError(w, r, err)
		return
	}
	pc.redirectWithFlash(w, r, "/posts/"+strconv.Itoa(post.ID), session.FlashSuccess, MsgPostUpdated)
}

// Delete removes one of the user's posts.
func (pc *PostController) Delete(w http.ResponseWriter, r *http.Request, user *models.User) {
	post, ok := pc.ownedPost(w, r, user)
	if !ok {
		return
	}

	err := pc.postService.DeletePost(r.Context(), post)
	if errors.Is(err, repositories.ErrNotFound) {
		pc.redirectWithFlash(w, r, "/posts", session.FlashError, MsgInvalidAccess)
		return
	}
	if err != nil {
		pc.serverError(w, r, err)
		return
	}
	pc.redirectWithFlash(w, r, "/posts", session.FlashSuccess, MsgPostDeleted)
}

// ownedPost loads the post named in the URL and checks that user owns it.
// A missing post and someone else's post get the same answer, so ids of
// other users' posts cannot be probed. When ok is false the response has
// already been written.
func (pc *PostController) ownedPost(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Post, bool) {
	id, ok := postID(r)
	if !ok {
		pc.redirectWithFlash(w, r, "/posts", session.FlashError, MsgInvalidAccess)
		return nil, false
	}

	post, err := pc.postService.FindPostByID(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && !post.OwnedBy(user)) {
		pc.redirectWithFlash(w, r, "/posts", session.FlashError, MsgInvalidAccess)
		return nil, false
	}
	if err != nil {
		pc.serverError(w, r, err)
		return nil, false
	}
	return post, true
}
