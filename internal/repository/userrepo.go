// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/avolkov87/mailhub/internal/model"
)

// UserRepository provides access to local user records.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists when the
	// ID is taken; a concurrent first-contact upsert treats that as success.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by identity-provider ID.
	GetByID(ctx context.Context, id string) (*model.User, error)
}
