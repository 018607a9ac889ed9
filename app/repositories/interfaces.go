package repositories

import (
	"context"

	"postingapp/app/models"
)

// PostRepository defines the interface for post data access
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id int) (*models.Post, error)
	// ListByUser returns the user's posts, least recently updated first.
	ListByUser(ctx context.Context, userID int) ([]*models.Post, error)
	// Latest returns the post with the highest ID.
	Latest(ctx context.Context) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id int) error
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
