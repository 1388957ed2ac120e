// Package services contains server-side business logic. This file implements
// LoginService, which authenticates users against the directory or the local
// verifier store, auto-provisions directory accounts, unlocks the vault
// master secret and issues session tokens.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/directory"
	"github.com/dmitrijs2005/passvault/internal/events"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/auth"
	"github.com/dmitrijs2005/passvault/internal/server/config"
	"github.com/dmitrijs2005/passvault/internal/server/escrow"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is the outcome of a successful authentication: the resolved
// user, fresh session tokens and the escrow outcome for the vault secret.
// Escrow.Secret is request-scoped; callers pass it into session
// establishment and drop it.
type LoginResult struct {
	User   *models.User
	Tokens *TokenPair
	Escrow *escrow.Result
}

// DirectoryAuthenticator is the subset of the directory authenticator used
// by the services, extracted for substitution in tests.
type DirectoryAuthenticator interface {
	CheckConnection(ctx context.Context) (int, error)
	Authenticate(ctx context.Context, login, password string) (*directory.AuthResult, error)
	FindObjects(ctx context.Context) ([]*directory.AuthResult, error)
}

// LoginService verifies credentials, provisions directory users on first
// login and mints token pairs.
type LoginService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	engine                       *escrow.Engine
	dirAuth                      DirectoryAuthenticator
	dirEnabled                   bool
	defaultGroupID               int64
	defaultProfileID             int64
	jwtSecret                    []byte
	installSalt                  []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	sink                         events.Sink
	log                          logging.Logger
}

type LoginOption func(*LoginService)

// WithAuthenticator replaces the directory authenticator, used in tests.
func WithAuthenticator(a DirectoryAuthenticator) LoginOption {
	return func(s *LoginService) { s.dirAuth = a }
}

// WithLoginSink routes audit events to the given sink.
func WithLoginSink(sink events.Sink) LoginOption {
	return func(s *LoginService) { s.sink = sink }
}

// NewLoginService constructs a LoginService using repositories and server config.
func NewLoginService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger, opts ...LoginOption) *LoginService {
	s := &LoginService{
		db:                           db,
		repomanager:                  m,
		dirEnabled:                   cfg.DirectoryEnabled,
		defaultGroupID:               cfg.DefaultGroupID,
		defaultProfileID:             cfg.DefaultProfileID,
		jwtSecret:                    []byte(cfg.SecretKey),
		installSalt:                  []byte(cfg.InstallSalt),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		sink:                         events.NopSink{},
		log:                          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dirEnabled && s.dirAuth == nil {
		s.dirAuth = directory.NewAuthenticator(cfg.DirectoryParams(), log, directory.WithSink(s.sink))
	}
	s.engine = escrow.NewEngine(m.Users(db), m.MasterKeys(db), s.installSalt, log, escrow.WithSink(s.sink))
	return s
}

// Engine exposes the escrow engine so administrative commands can provision
// and rotate the vault secret through the same code path.
func (s *LoginService) Engine() *escrow.Engine { return s.engine }

// Login authenticates login/password and, on success, returns the user, a
// token pair and the escrow outcome for the vault master secret.
//
// Every authentication failure the user can cause surfaces as
// common.ErrorUnauthorized regardless of whether the account is unknown, the
// password wrong or group membership missing, so callers cannot enumerate
// accounts. Configuration and connectivity problems surface as
// common.ErrorInternal with the detail kept in the server log.
func (s *LoginService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	var user *models.User
	var err error

	if s.dirEnabled {
		user, err = s.directoryLogin(ctx, login, password)
	} else {
		user, err = s.localLogin(ctx, login, password)
	}
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, common.ErrorInternal
	}

	escrowRes, err := s.engine.Load(ctx, user, password)
	if err != nil {
		s.log.Error(ctx, "vault unlock failed", "error", err)
		return nil, common.ErrorInternal
	}

	pair, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: user, Tokens: pair, Escrow: escrowRes}, nil
}

// directoryLogin verifies credentials against the directory and provisions
// or refreshes the matching vault account.
func (s *LoginService) directoryLogin(ctx context.Context, login, password string) (*models.User, error) {
	res, err := s.dirAuth.Authenticate(ctx, login, password)
	if err != nil {
		switch {
		case directory.IsKind(err, directory.KindInvalidCredentials),
			directory.IsKind(err, directory.KindUserNotFound),
			directory.IsKind(err, directory.KindAmbiguousUser),
			directory.IsKind(err, directory.KindNotInGroup):
			return nil, common.ErrorUnauthorized
		default:
			s.log.Error(ctx, "directory authentication failed", "error", err)
			return nil, common.ErrorInternal
		}
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByLogin(ctx, res.Login)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInternal
		}
		user, err = repo.Create(ctx, &models.User{
			Login:       res.Login,
			DisplayName: res.DisplayName,
			Email:       res.Email,
			AuthSource:  models.AuthSourceDirectory,
			GroupID:     s.defaultGroupID,
			ProfileID:   s.defaultProfileID,
		})
		if err != nil {
			return nil, common.ErrorInternal
		}
		s.sink.Emit(ctx, events.New(events.TypeUserResolved,
			"login", res.Login, "dn", res.DN, "provisioned", true))
		return user, nil
	}

	if user.DisplayName != res.DisplayName || user.Email != res.Email {
		if err := repo.UpdateDirectoryAttributes(ctx, user.ID, res.DisplayName, res.Email); err != nil {
			return nil, common.ErrorInternal
		}
		user.DisplayName = res.DisplayName
		user.Email = res.Email
	}
	return user, nil
}

// localLogin verifies the password against the stored argon2 verifier.
func (s *LoginService) localLogin(ctx context.Context, login, password string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	candidate := cryptox.DeriveKey([]byte(password), login, user.Salt)
	defer common.WipeByteArray(candidate)
	if subtle.ConstantTimeCompare(user.Verifier, candidate) != 1 {
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

// Register creates a local account with a fresh per-user salt.
func (s *LoginService) Register(ctx context.Context, login, password string) (*models.User, error) {
	salt := common.GenerateRandByteArray(32)
	verifier := cryptox.DeriveKey([]byte(password), login, salt)

	user := &models.User{
		Login:      login,
		AuthSource: models.AuthSourceLocal,
		GroupID:    s.defaultGroupID,
		ProfileID:  s.defaultProfileID,
		Salt:       salt,
		Verifier:   verifier,
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %v", err)
	}
	return user, nil
}

// ChangePassword replaces a local user's password and immediately re-wraps
// their vault-secret copy from the old password, so no CheckOld round trip
// is needed on the next login. Revokes outstanding refresh tokens.
func (s *LoginService) ChangePassword(ctx context.Context, login, oldPassword, newPassword string) error {
	user, err := s.localLogin(ctx, login, oldPassword)
	if err != nil {
		return err
	}

	salt := common.GenerateRandByteArray(32)
	verifier := cryptox.DeriveKey([]byte(newPassword), login, salt)

	repo := s.repomanager.Users(s.db)
	if err := repo.UpdatePassword(ctx, user.ID, salt, verifier); err != nil {
		return common.ErrorInternal
	}
	user.Salt = salt
	user.Verifier = verifier
	user.PasswordJustChanged = true

	if user.HasUnlockKey() {
		if _, err := s.engine.UpdateFromOldPass(ctx, user, oldPassword, newPassword); err != nil {
			s.log.Error(ctx, "unlock key re-wrap failed", "error", err)
			return common.ErrorInternal
		}
	}

	if err := s.repomanager.RefreshTokens(s.db).DeleteForUser(ctx, user.ID); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *LoginService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("error searching refresh token: %v", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.RefreshTokens(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %v", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, token.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *LoginService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *LoginService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *LoginService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
