package models

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostFormValidate(t *testing.T) {
	tests := []struct {
		name       string
		form       PostForm
		wantFields []string
	}{
		{
			name: "valid form",
			form: PostForm{Title: "Hello", Content: "World"},
		},
		{
			name:       "empty title",
			form:       PostForm{Title: "", Content: "World"},
			wantFields: []string{"title"},
		},
		{
			name:       "blank content",
			form:       PostForm{Title: "Hello", Content: "  \n\t "},
			wantFields: []string{"content"},
		},
		{
			name:       "both blank",
			form:       PostForm{Title: " ", Content: ""},
			wantFields: []string{"title", "content"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.form.Validate()
			if len(tt.wantFields) == 0 {
				assert.Empty(t, errs)
				return
			}
			assert.Len(t, errs, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.True(t, errs.Has(f), "expected error on %s", f)
			}
		})
	}
}

func TestPostFormMessages(t *testing.T) {
	errs := PostForm{}.Validate()
	assert.Equal(t, "タイトルを入力してください。", errs["title"])
	assert.Equal(t, "本文を入力してください。", errs["content"])
}

func TestPostFormBinding(t *testing.T) {
	values := url.Values{"title": {"  Hi "}, "content": {"World"}}
	form := PostFormFromValues(values)
	assert.Equal(t, "  Hi ", form.Title, "entered values are kept verbatim")
	assert.Equal(t, "World", form.Content)

	post := &Post{Title: "T", Content: "C"}
	assert.Equal(t, PostForm{Title: "T", Content: "C"}, PostFormFromPost(post))
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name       string
		creds      Credentials
		wantFields []string
	}{
		{name: "valid", creds: Credentials{Username: "alice_01", Password: "s3cretpass"}},
		{name: "missing username", creds: Credentials{Password: "s3cretpass"}, wantFields: []string{"username"}},
		{name: "short username", creds: Credentials{Username: "al", Password: "s3cretpass"}, wantFields: []string{"username"}},
		{name: "bad characters", creds: Credentials{Username: "al ice", Password: "s3cretpass"}, wantFields: []string{"username"}},
		{name: "short password", creds: Credentials{Username: "alice", Password: "short"}, wantFields: []string{"password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.creds.Validate()
			if len(tt.wantFields) == 0 {
				assert.Empty(t, errs)
				return
			}
			for _, f := range tt.wantFields {
				assert.True(t, errs.Has(f), "expected error on %s, got %v", f, errs)
			}
		})
	}

	errs := Credentials{}.Validate()
	assert.Equal(t, "ユーザー名を入力してください。", errs["username"])
	assert.Equal(t, "パスワードを入力してください。", errs["password"])
}

func TestLoginFormValidate(t *testing.T) {
	errs := LoginForm{}.Validate()
	assert.Equal(t, "ユーザー名を入力してください。", errs["username"])
	assert.Equal(t, "パスワードを入力してください。", errs["password"])

	form := LoginFormFromValues(url.Values{"username": {"al"}, "password": {"x"}})
	assert.Empty(t, form.Validate(), "login does not enforce registration rules")
	assert.Equal(t, Credentials{Username: "al", Password: "x"}, form.Credentials())
}
