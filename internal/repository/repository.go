// Package repository declares the persistence contracts used by the service
// layer. Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/account-portal/internal/model"
)

// UserRepository is the credential store.
//
// Create fails with apperror.ErrConflict when the username is taken and
// with a wrapped driver error for any other fault. GetByUsername returns
// apperror.ErrNotFound when no row matches. There is no update or delete:
// a user row is written once at registration and only read afterwards.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}
