// Package masterkeys persists the single installation-wide escrow record for
// the vault master secret.
package masterkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the escrow record. The table holds at most one row.
// If the vault secret was never provisioned, it returns common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context) (*models.MasterKeyRecord, error) {
	query :=
		`SELECT id, verifier, rotation_wrapped, rotation_secured_key, rotated_at, created_at
		 FROM master_key
		 WHERE id = 1
		 `

	rec := &models.MasterKeyRecord{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&rec.ID, &rec.Verifier, &rec.RotationWrapped, &rec.RotationSecuredKey,
		&rec.RotatedAt, &rec.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

// Save upserts the escrow record and stamps the rotation time.
func (r *PostgresRepository) Save(ctx context.Context, rec *models.MasterKeyRecord) error {
	query :=
		`INSERT INTO master_key (id, verifier, rotation_wrapped, rotation_secured_key, rotated_at)
		 VALUES (1, $1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET verifier = EXCLUDED.verifier,
		     rotation_wrapped = EXCLUDED.rotation_wrapped,
		     rotation_secured_key = EXCLUDED.rotation_secured_key,
		     rotated_at = EXCLUDED.rotated_at
		 `

	if _, err := r.db.ExecContext(ctx, query,
		rec.Verifier, rec.RotationWrapped, rec.RotationSecuredKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
