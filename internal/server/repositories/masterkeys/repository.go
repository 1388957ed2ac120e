package masterkeys

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context) (*models.MasterKeyRecord, error)
	Save(ctx context.Context, rec *models.MasterKeyRecord) error
}
