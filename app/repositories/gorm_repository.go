package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"postingapp/app/models"
)

type postRecord struct {
	ID        int       `gorm:"primaryKey;autoIncrement"`
	UserID    int       `gorm:"not null;index:idx_posts_user_updated,priority:1"`
	Title     string    `gorm:"size:255;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index:idx_posts_user_updated,priority:2"`
}

func (postRecord) TableName() string { return "posts" }

// userRecord keeps the username as entered for display and a lowercased
// copy that carries the unique index.
type userRecord struct {
	ID           int       `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"size:32;not null"`
	UsernameKey  string    `gorm:"size:32;not null;uniqueIndex"`
	PasswordHash []byte    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

func postFromRecord(rec *postRecord) *models.Post {
	return &models.Post{
		ID:        rec.ID,
		Title:     rec.Title,
		Content:   rec.Content,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func userFromRecord(rec *userRecord) *models.User {
	return &models.User{
		ID:           rec.ID,
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}
}

// autoMigrate creates or updates the posts and users tables.
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&userRecord{}, &postRecord{})
}

func mapGormErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// GormPostRepository implements PostRepository over a relational database.
type GormPostRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db, now: time.Now}
}

func (r *GormPostRepository) Create(ctx context.Context, post *models.Post) error {
	post.BeforeCreate(r.now())
	rec := postRecord{
		UserID:    post.UserID,
		Title:     post.Title,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return mapGormErr(err)
	}
	post.ID = rec.ID
	return nil
}

func (r *GormPostRepository) GetByID(ctx context.Context, id int) (*models.Post, error) {
	var rec postRecord
	if err := r.db.WithContext(ctx).Take(&rec, id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return postFromRecord(&rec), nil
}

func (r *GormPostRepository) ListByUser(ctx context.Context, userID int) ([]*models.Post, error) {
	var recs []postRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at ASC").
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, mapGormErr(err)
	}

	posts := make([]*models.Post, 0, len(recs))
	for i := range recs {
		posts = append(posts, postFromRecord(&recs[i]))
	}
	return posts, nil
}

func (r *GormPostRepository) Latest(ctx context.Context) (*models.Post, error) {
	var rec postRecord
	if err := r.db.WithContext(ctx).Order("id DESC").Take(&rec).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return postFromRecord(&rec), nil
}

// Update writes title, content and updated_at only, so the owner and the
// creation time can never be changed through it.
func (r *GormPostRepository) Update(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec postRecord
		if err := tx.Take(&rec, post.ID).Error; err != nil {
			return mapGormErr(err)
		}

		rec.Title = post.Title
		rec.Content = post.Content
		rec.UpdatedAt = r.now()
		err := tx.Model(&rec).
			Select("title", "content", "updated_at").
			Updates(map[string]interface{}{
				"title":      rec.Title,
				"content":    rec.Content,
				"updated_at": rec.UpdatedAt,
			}).Error
		if err != nil {
			return mapGormErr(err)
		}

		post.UserID = rec.UserID
		post.CreatedAt = rec.CreatedAt
		post.UpdatedAt = rec.UpdatedAt
		return nil
	})
}

func (r *GormPostRepository) Delete(ctx context.Context, id int) error {
	res := r.db.WithContext(ctx).Delete(&postRecord{}, id)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GormUserRepository implements UserRepository over a relational database.
type GormUserRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db, now: time.Now}
}

// Create relies on the unique index on username_key, so two registrations
// differing only in case cannot both succeed.
func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	user.BeforeCreate(r.now())
	rec := userRecord{
		Username:     user.Username,
		UsernameKey:  strings.ToLower(user.Username),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return mapGormErr(err)
	}
	user.ID = rec.ID
	return nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Take(&rec, id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return userFromRecord(&rec), nil
}

func (r *GormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var rec userRecord
	err := r.db.WithContext(ctx).
		Where("username_key = ?", strings.ToLower(username)).
		Take(&rec).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return userFromRecord(&rec), nil
}
