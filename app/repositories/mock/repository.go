package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"postingapp/app/models"
	"postingapp/app/repositories"
)

type PostRepository struct {
	posts  map[int]*models.Post
	nextID int
	mutex  sync.RWMutex

	// Now stamps timestamps. Tests may replace it to control ordering.
	Now func() time.Time
	// Err, when set, is returned by every method.
	Err error
}

type UserRepository struct {
	users  map[int]*models.User
	nextID int
	mutex  sync.RWMutex
}

func NewPostRepository() *PostRepository {
	return &PostRepository{
		posts:  make(map[int]*models.Post),
		nextID: 1,
		Now:    time.Now,
	}
}

func (m *PostRepository) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.posts = make(map[int]*models.Post)
	m.nextID = 1
}

// Count returns the number of stored posts.
func (m *PostRepository) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.posts)
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:  make(map[int]*models.User),
		nextID: 1,
	}
}

// PostRepository implementation

// Stored posts are copies so callers cannot mutate the store behind its back.
func clonePost(p *models.Post) *models.Post {
	c := *p
	return &c
}

func (m *PostRepository) Create(_ context.Context, post *models.Post) error {
	if m.Err != nil {
		return m.Err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	post.ID = m.nextID
	m.nextID++
	post.BeforeCreate(m.Now())
	m.posts[post.ID] = clonePost(post)
	return nil
}

func (m *PostRepository) GetByID(_ context.Context, id int) (*models.Post, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	post, exists := m.posts[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return clonePost(post), nil
}

func (m *PostRepository) ListByUser(_ context.Context, userID int) ([]*models.Post, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	posts := []*models.Post{}
	for _, post := range m.posts {
		if post.UserID == userID {
			posts = append(posts, clonePost(post))
		}
	}
	repositories.SortByUpdatedAt(posts)
	return posts, nil
}

func (m *PostRepository) Latest(_ context.Context) (*models.Post, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var latest *models.Post
	for _, post := range m.posts {
		if latest == nil || post.ID > latest.ID {
			latest = post
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	return clonePost(latest), nil
}

func (m *PostRepository) Update(_ context.Context, post *models.Post) error {
	if m.Err != nil {
		return m.Err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	existing, exists := m.posts[post.ID]
	if !exists {
		return repositories.ErrNotFound
	}
	post.UserID = existing.UserID
	post.CreatedAt = existing.CreatedAt
	post.BeforeSave(m.Now())
	m.posts[post.ID] = clonePost(post)
	return nil
}

func (m *PostRepository) Delete(_ context.Context, id int) error {
	if m.Err != nil {
		return m.Err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.posts[id]; !exists {
		return repositories.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

// UserRepository implementation

func (m *UserRepository) Create(_ context.Context, user *models.User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Username, user.Username) {
			return repositories.ErrDuplicate
		}
	}
	user.ID = m.nextID
	m.nextID++
	user.BeforeCreate(time.Now())
	c := *user
	m.users[user.ID] = &c
	return nil
}

func (m *UserRepository) GetByID(_ context.Context, id int) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	user, exists := m.users[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	c := *user
	return &c, nil
}

func (m *UserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Username, username) {
			c := *user
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}
