// Package users persists the User resource.
package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"userapi/internal/core"
)

// ErrNotFound is returned when no user has the requested id.
var ErrNotFound = errors.New("user not found")

// Store is the persistence contract used by the HTTP handlers.
// Implementations must be safe for concurrent use.
type Store interface {
	// List returns every user ordered by id. It never returns a nil slice.
	List(ctx context.Context) ([]core.User, error)

	// Get returns the user with the given id or ErrNotFound.
	Get(ctx context.Context, id uint) (*core.User, error)

	// Create inserts u and fills in its server-assigned id.
	Create(ctx context.Context, u *core.User) error
}

// GormStore implements Store on top of a gorm session.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store bound to db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) List(ctx context.Context) ([]core.User, error) {
	users := make([]core.User, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *GormStore) Get(ctx context.Context, id uint) (*core.User, error) {
	var u core.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

func (s *GormStore) Create(ctx context.Context, u *core.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
