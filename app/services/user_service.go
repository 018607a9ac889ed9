package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"postingapp/app/models"
	"postingapp/app/repositories"
)

var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// InvalidCredentialsError reports which credential fields failed validation.
type InvalidCredentialsError struct {
	Fields models.FieldErrors
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials: %v", e.Fields)
}

// UserService registers and authenticates users.
type UserService struct {
	userRepo repositories.UserRepository
	cost     int
}

func NewUserService(userRepo repositories.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, cost: bcrypt.DefaultCost}
}

// Register creates a user with a bcrypt hash of password.
func (s *UserService) Register(ctx context.Context, creds models.Credentials) (*models.User, error) {
	if fe := creds.Validate(); len(fe) > 0 {
		return nil, &InvalidCredentialsError{Fields: fe}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: creds.Username, PasswordHash: hash}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate returns ErrInvalidCredentials for an unknown user and for a
// wrong password alike.
func (s *UserService) Authenticate(ctx context.Context, creds models.Credentials) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, creds.Username)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindUserByID returns repositories.ErrNotFound (wrapped) for unknown ids.
func (s *UserService) FindUserByID(ctx context.Context, id int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}
