// Package server initializes and runs the vault server: it opens the
// database, applies migrations, wires the login and sync services and keeps
// a periodic directory synchronization loop running until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/passvault/internal/directory"
	"github.com/dmitrijs2005/passvault/internal/events"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/config"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/passvault/internal/server/services"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	loginService *services.LoginService
	syncService  *services.SyncService
}

func NewApp(cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	sink := events.NewLogSink(logger)
	ls := services.NewLoginService(db, m, cfg, logger, services.WithLoginSink(sink))

	var ss *services.SyncService
	if cfg.DirectoryEnabled {
		auth := directory.NewAuthenticator(cfg.DirectoryParams(), logger, directory.WithSink(sink))
		ss = services.NewSyncService(db, m, cfg, auth, logger, services.WithSyncSink(sink))
	}

	return &App{config: cfg, logger: logger, db: db, loginService: ls, syncService: ss}, nil
}

// LoginService exposes the wired login service for transports built on top
// of the app.
func (app *App) LoginService() *services.LoginService { return app.loginService }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSyncLoop performs one synchronization pass immediately and then one per
// configured interval until the context is cancelled.
func (app *App) runSyncLoop(ctx context.Context) {
	interval := app.config.SyncInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := app.syncService.Sync(ctx)
		if err != nil {
			app.logger.Error(ctx, "directory sync failed", "error", err)
		} else {
			app.logger.Info(ctx, "directory sync finished",
				"run_id", report.RunID,
				"attempted", report.Attempted,
				"succeeded", report.Succeeded,
				"failed", report.Failed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if app.syncService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.runSyncLoop(ctx)
		}()
	} else {
		app.logger.Info(ctx, "directory disabled, sync loop not started")
		<-ctx.Done()
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
