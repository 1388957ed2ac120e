package users

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	UpdateDirectoryAttributes(ctx context.Context, userID string, displayName string, email string) error
	TouchLastLogin(ctx context.Context, userID string) error
	SaveUnlockKey(ctx context.Context, userID string, key []byte, securedKey []byte) error
	SetPasswordJustChanged(ctx context.Context, userID string, flag bool) error
	UpdatePassword(ctx context.Context, userID string, salt []byte, verifier []byte) error
}
