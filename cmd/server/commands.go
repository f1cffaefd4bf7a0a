package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vdavid/outreach/backend/internal/config"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/logging"
	"github.com/vdavid/outreach/backend/internal/mailsync"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "outreach",
		Short:         "Outreach mailbox sync backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newSyncCmd(), newMigrateCmd())
	return root
}

// loadConfig reads the config and sets up logging before anything else runs.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var migrate, schedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if migrate {
				if err := db.Migrate(ctx, a.pool); err != nil {
					return err
				}
			}

			if schedule {
				go mailsync.NewScheduler(a.service, a.store, cfg.SyncInterval).Run(ctx)
			}

			server := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           NewServer(cfg, a),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errChan := make(chan error, 1)
			go func() {
				log.WithFields(log.Fields{"address": server.Addr, "environment": cfg.Environment}).Info("Outreach backend server starting")
				errChan <- server.ListenAndServe()
			}()

			select {
			case err := <-errChan:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("Shutting down gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations on startup")
	cmd.Flags().BoolVar(&schedule, "schedule", true, "run the periodic sync scheduler")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var accountID string
	var initial bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass for an account, or for every account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initial && accountID == "" {
				return errors.New("--initial requires --account")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			switch {
			case initial:
				return a.service.PerformInitialSync(ctx, accountID)
			case accountID != "":
				return a.service.Sync(ctx, accountID)
			}

			if failed := mailsync.NewScheduler(a.service, a.store, cfg.SyncInterval).RunOnce(ctx); failed > 0 {
				return fmt.Errorf("%d account(s) failed to sync", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id to sync (default: all accounts)")
	cmd.Flags().BoolVar(&initial, "initial", false, "force a full sync of --account")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := db.NewConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.CloseConnection(pool)

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info("Migrations applied")
			return nil
		},
	}
}
