package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/directory"
	"github.com/dmitrijs2005/passvault/internal/events"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/config"
	"github.com/dmitrijs2005/passvault/internal/server/escrow"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/passvault/internal/server/services"
)

var rootCmd = &cobra.Command{
	Use:           "vaultctl",
	Short:         "administrative commands for the vault server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(checkConnCmd, provisionCmd, rotateCmd, syncCmd)
	provisionCmd.Flags().String("login", "", "login of the provisioning user")
	provisionCmd.MarkFlagRequired("login")
	rotateCmd.Flags().String("login", "", "login of a user able to unlock the current secret")
	rotateCmd.MarkFlagRequired("login")
}

// env bundles everything a subcommand needs. Each invocation builds one and
// closes the database when done.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	m      repomanager.RepositoryManager
	log    logging.Logger
	engine *escrow.Engine
}

func newEnv(ctx context.Context) (*env, error) {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	sink := events.NewLogSink(logger)
	engine := escrow.NewEngine(m.Users(db), m.MasterKeys(db), []byte(cfg.InstallSalt), logger, escrow.WithSink(sink))

	return &env{cfg: cfg, db: db, m: m, log: logger, engine: engine}, nil
}

func (e *env) close() { e.db.Close() }

func (e *env) authenticator() *directory.Authenticator {
	return directory.NewAuthenticator(e.cfg.DirectoryParams(), e.log,
		directory.WithSink(events.NewLogSink(e.log)))
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var checkConnCmd = &cobra.Command{
	Use:   "check-conn",
	Short: "verify directory connectivity and group configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

		auth := directory.NewAuthenticator(cfg.DirectoryParams(), logger)
		count, err := auth.CheckConnection(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "directory reachable, group filter matched %d base entries\n", count)
		return nil
	},
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "create the vault master secret and the first unlock key",
	Long: "Generates a fresh random vault master secret, records its verifier " +
		"and wraps the first copy under the given user's login password. " +
		"Replaces any existing secret, abandoning all other unlock keys.",
	RunE: func(cmd *cobra.Command, args []string) error {
		login, _ := cmd.Flags().GetString("login")

		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		user, err := e.m.Users(e.db).GetByLogin(cmd.Context(), login)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("user %q not found", login)
			}
			return err
		}

		password, err := promptPassword("login password: ")
		if err != nil {
			return err
		}

		secret := common.GenerateRandByteArray(32)
		defer common.WipeByteArray(secret)

		if err := e.engine.Create(cmd.Context(), user, secret, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "vault secret provisioned")
		return nil
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "rotate the vault master secret",
	Long: "Generates a fresh random vault master secret and records a rotation " +
		"chain, so other users can re-provision their unlock keys with their " +
		"own passwords on next login. The given user must be able to unlock " +
		"the current secret. Run only one rotation at a time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		login, _ := cmd.Flags().GetString("login")

		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		user, err := e.m.Users(e.db).GetByLogin(cmd.Context(), login)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("user %q not found", login)
			}
			return err
		}

		password, err := promptPassword("login password: ")
		if err != nil {
			return err
		}

		newSecret := common.GenerateRandByteArray(32)
		defer common.WipeByteArray(newSecret)

		res, err := e.engine.Rotate(cmd.Context(), user, password, newSecret)
		if err != nil {
			return err
		}
		if res.Status != escrow.StatusOK {
			return fmt.Errorf("cannot unlock current secret: %s", res.Status)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "vault secret rotated")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "run one directory synchronization pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		if !e.cfg.DirectoryEnabled {
			return errors.New("directory authentication is disabled")
		}

		ss := services.NewSyncService(e.db, e.m, e.cfg, e.authenticator(), e.log,
			services.WithSyncSink(events.NewLogSink(e.log)))

		report, err := ss.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync %s: attempted %d, succeeded %d, failed %d\n",
			report.RunID, report.Attempted, report.Succeeded, report.Failed)
		return nil
	},
}
