package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (login, display_name, email, auth_source, group_id, profile_id, salt, verifier)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Login, user.DisplayName, user.Email, user.AuthSource,
		user.GroupID, user.ProfileID, user.Salt, user.Verifier).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query :=
		`SELECT id, login, display_name, email, auth_source, group_id, profile_id,
		        salt, verifier, unlock_key, unlock_secured_key, unlock_updated_at,
		        password_just_changed, last_login_at
		 FROM users
		 WHERE login = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, login).Scan(
		&user.ID, &user.Login, &user.DisplayName, &user.Email, &user.AuthSource,
		&user.GroupID, &user.ProfileID, &user.Salt, &user.Verifier,
		&user.UnlockKey, &user.UnlockSecuredKey, &user.UnlockUpdatedAt,
		&user.PasswordJustChanged, &user.LastLoginAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) UpdateDirectoryAttributes(ctx context.Context, userID string, displayName string, email string) error {
	query :=
		`UPDATE users SET display_name = $2, email = $3
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, displayName, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, userID string) error {
	query :=
		`UPDATE users SET last_login_at = now()
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SaveUnlockKey replaces the user's wrapped vault-secret copy and clears the
// password-just-changed flag, since the new copy is bound to the current
// password by construction.
func (r *PostgresRepository) SaveUnlockKey(ctx context.Context, userID string, key []byte, securedKey []byte) error {
	query :=
		`UPDATE users SET unlock_key = $2, unlock_secured_key = $3,
		        unlock_updated_at = now(), password_just_changed = FALSE
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, key, securedKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetPasswordJustChanged(ctx context.Context, userID string, flag bool) error {
	query :=
		`UPDATE users SET password_just_changed = $2
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, flag); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdatePassword stores a new local password verifier. The flag forces the
// unlock key to be re-wrapped from the old password on the next unlock.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID string, salt []byte, verifier []byte) error {
	query :=
		`UPDATE users SET salt = $2, verifier = $3, password_just_changed = TRUE
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, salt, verifier); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
