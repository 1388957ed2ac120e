package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/masterkeys"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	MasterKeys(db dbx.DBTX) masterkeys.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
