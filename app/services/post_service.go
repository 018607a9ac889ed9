package services

import (
	"context"
	"fmt"

	"postingapp/app/models"
	"postingapp/app/repositories"
)

// PostService handles the post workflow on top of a PostRepository.
//
// None of its methods check ownership. Callers load the post, compare its
// owner with the current user, and only then ask for a mutation.
type PostService struct {
	postRepo repositories.PostRepository
}

// NewPostService creates a new PostService
func NewPostService(postRepo repositories.PostRepository) *PostService {
	return &PostService{postRepo: postRepo}
}

// FindPostsByUser returns the user's posts, least recently updated first.
func (s *PostService) FindPostsByUser(ctx context.Context, user *models.User) ([]*models.Post, error) {
	posts, err := s.postRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts of user %d: %w", user.ID, err)
	}
	return posts, nil
}

// FindPostByID returns repositories.ErrNotFound (wrapped) when there is no such post.
func (s *PostService) FindPostByID(ctx context.Context, id int) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	return post, nil
}

// FindLatestPost returns the post with the highest ID.
func (s *PostService) FindLatestPost(ctx context.Context) (*models.Post, error) {
	post, err := s.postRepo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest post: %w", err)
	}
	return post, nil
}

// CreatePost stores a new post authored by user.
func (s *PostService) CreatePost(ctx context.Context, form models.PostForm, user *models.User) (*models.Post, error) {
	post := &models.Post{
		Title:   form.Title,
		Content: form.Content,
		UserID:  user.ID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

// UpdatePost replaces the title and content of an existing post.
func (s *PostService) UpdatePost(ctx context.Context, form models.PostForm, post *models.Post) (*models.Post, error) {
	post.Title = form.Title
	post.Content = form.Content
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post %d: %w", post.ID, err)
	}
	return post, nil
}

// DeletePost removes post.
func (s *PostService) DeletePost(ctx context.Context, post *models.Post) error {
	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return fmt.Errorf("failed to delete post %d: %w", post.ID, err)
	}
	return nil
}
