package models

import "net/url"

// PostForm carries the user-editable fields of a post. It backs both the
// register and the edit form.
type PostForm struct {
	Title   string `form:"title" validate:"notblank"`
	Content string `form:"content" validate:"notblank"`
}

var postFormMessages = map[string]string{
	"title":   "タイトルを入力してください。",
	"content": "本文を入力してください。",
}

// PostFormFromValues binds submitted form values. Values are kept as entered
// so a failed submission can be re-rendered unchanged.
func PostFormFromValues(values url.Values) PostForm {
	return PostForm{
		Title:   values.Get("title"),
		Content: values.Get("content"),
	}
}

// PostFormFromPost pre-fills a form with the current state of post.
func PostFormFromPost(post *Post) PostForm {
	return PostForm{Title: post.Title, Content: post.Content}
}

// Validate returns nil when the form is acceptable, otherwise one message per
// offending field.
func (f PostForm) Validate() FieldErrors {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	fe, err := fieldErrors(err, postFormMessages)
	if err != nil {
		return FieldErrors{"": err.Error()}
	}
	return fe
}

// Credentials is the username/password pair used for sign-in and account creation.
type Credentials struct {
	Username string `form:"username" validate:"required,min=3,max=32,username"`
	Password string `form:"password" validate:"required,min=8,max=72"`
}

var credentialMessages = map[string]string{
	"username.required": "ユーザー名を入力してください。",
	"username":          "ユーザー名は3〜32文字の英数字とアンダースコアで入力してください。",
	"password.required": "パスワードを入力してください。",
	"password":          "パスワードは8〜72文字で入力してください。",
}

// Validate checks the credential shape, not whether they are correct.
func (c Credentials) Validate() FieldErrors {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	fe, err := fieldErrors(err, credentialMessages)
	if err != nil {
		return FieldErrors{"": err.Error()}
	}
	return fe
}

// LoginForm only checks that both fields were filled in. Whether they match
// an account is decided by the user service.
type LoginForm struct {
	Username string `form:"username" validate:"notblank"`
	Password string `form:"password" validate:"required"`
}

var loginFormMessages = map[string]string{
	"username": "ユーザー名を入力してください。",
	"password": "パスワードを入力してください。",
}

// LoginFormFromValues binds a login form.
func LoginFormFromValues(values url.Values) LoginForm {
	return LoginForm{
		Username: values.Get("username"),
		Password: values.Get("password"),
	}
}

func (f LoginForm) Validate() FieldErrors {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	fe, err := fieldErrors(err, loginFormMessages)
	if err != nil {
		return FieldErrors{"": err.Error()}
	}
	return fe
}

// Credentials converts the form for authentication.
func (f LoginForm) Credentials() Credentials {
	return Credentials{Username: f.Username, Password: f.Password}
}
