package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/events"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/config"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/users"
)

// SyncReport aggregates the outcome of one bulk synchronization run.
type SyncReport struct {
	RunID      string
	Attempted  int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// SyncService pulls every directory entry matching the configured group and
// provisions or refreshes the corresponding vault accounts.
type SyncService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	dirAuth          DirectoryAuthenticator
	defaultGroupID   int64
	defaultProfileID int64
	sink             events.Sink
	log              logging.Logger
}

type SyncOption func(*SyncService)

// WithSyncSink routes audit events to the given sink.
func WithSyncSink(sink events.Sink) SyncOption {
	return func(s *SyncService) { s.sink = sink }
}

// NewSyncService constructs a SyncService. The authenticator is passed in
// rather than built here so login and sync share one configuration.
func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, dirAuth DirectoryAuthenticator, log logging.Logger, opts ...SyncOption) *SyncService {
	s := &SyncService{
		db:               db,
		repomanager:      m,
		dirAuth:          dirAuth,
		defaultGroupID:   cfg.DefaultGroupID,
		defaultProfileID: cfg.DefaultProfileID,
		sink:             events.NopSink{},
		log:              log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one synchronization pass. Entries are processed sequentially
// and a failure on one entry is recorded and skipped, so a single bad
// directory object cannot abort the run.
func (s *SyncService) Sync(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	results, err := s.dirAuth.FindObjects(ctx)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	for _, res := range results {
		if res.Login == "" {
			continue
		}
		report.Attempted++

		if err := s.syncOne(ctx, repo, res.Login, res.DisplayName, res.Email); err != nil {
			report.Failed++
			s.log.Warn(ctx, "sync entry failed", "run_id", report.RunID, "login", res.Login, "error", err)
			continue
		}
		report.Succeeded++
	}

	report.FinishedAt = time.Now()
	s.sink.Emit(ctx, events.New(events.TypeSyncRun,
		"run_id", report.RunID,
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed))
	return report, nil
}

func (s *SyncService) syncOne(ctx context.Context, repo users.Repository, login, displayName, email string) error {
	user, err := repo.GetByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		_, err = repo.Create(ctx, &models.User{
			Login:       login,
			DisplayName: displayName,
			Email:       email,
			AuthSource:  models.AuthSourceDirectory,
			GroupID:     s.defaultGroupID,
			ProfileID:   s.defaultProfileID,
		})
		return err
	}

	if user.DisplayName == displayName && user.Email == email {
		return nil
	}
	return repo.UpdateDirectoryAttributes(ctx, user.ID, displayName, email)
}
