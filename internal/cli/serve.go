package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lectern-ai/lectern/internal/channels"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/ingest"
	"github.com/lectern-ai/lectern/internal/logging"
	"github.com/lectern-ai/lectern/internal/mcpserver"
	"github.com/lectern-ai/lectern/internal/scheduler"
	"github.com/lectern-ai/lectern/internal/server"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/usage"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, maintenance jobs, and enabled channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := config.ValidateStartup(cfg)
			if err != nil {
				return err
			}
			for _, warning := range report.Warnings {
				logging.Logger().Warn(warning)
			}

			llmCfg := cfg.DefaultLLM()
			logging.Logger().Info(
				"starting server",
				"provider", llmCfg.Provider,
				"model", llmCfg.Model,
				"addr", cfg.Server.Addr,
				"home", cfg.HomeDir,
			)

			pidFilePath := filepath.Join(cfg.DataDir(), "lectern.pid")
			if err := os.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
				return fmt.Errorf("write pid file %q: %w", pidFilePath, err)
			}
			defer func() {
				os.Remove(pidFilePath)
			}()

			store, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			tracker := usage.New(cfg.UsagePath())

			apiSessions := newSessionManager(cfg, cfg.APISessionsDir())
			apiEngine, err := newEngine(cfg, store, apiSessions, tracker)
			if err != nil {
				return err
			}
			httpServer := server.New(apiEngine, cfg.Server)

			sessionManagers := map[string]*session.Manager{"api": apiSessions}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(signalCtx)
			defer cancel()

			// One slot per possible component so exiting goroutines never block.
			errCh := make(chan error, 3)
			components := 1
			go func() { errCh <- httpServer.Run(runCtx) }()

			if telegram := cfg.TelegramChannel(); telegram.Enabled {
				telegramSessions := newSessionManager(cfg, cfg.TelegramSessionsDir())
				sessionManagers["telegram"] = telegramSessions
				telegramEngine, err := newEngine(cfg, store, telegramSessions, tracker)
				if err != nil {
					return err
				}
				listener := channels.NewTelegram(telegram.Token)
				handler := channels.NewQueryHandler(telegramEngine)
				components++
				go func() { errCh <- listener.Listen(runCtx, handler) }()
			}

			if cfg.MCP.Enabled {
				manager, err := newToolManager(store, cfg)
				if err != nil {
					return err
				}
				mcpServer := mcpserver.New(manager, Version)
				components++
				go func() { errCh <- mcpServer.Run(runCtx, cfg.MCP.Addr) }()
			}

			service := scheduler.NewService(
				scheduler.NewRescanJob(ingest.New(store, cfg.Ingest), cfg.Scheduler.Rescan),
				scheduler.NewCleanupJob(sessionManagers, cfg.Session.IdleTTL, cfg.Scheduler.Cleanup),
			)
			if err := service.Start(runCtx); err != nil {
				return err
			}

			// The first component to exit takes the rest down with it.
			var runErr error
			for i := 0; i < components; i++ {
				err := <-errCh
				cancel()
				if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
					runErr = err
				}
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			stopErr := service.Stop(shutdownCtx)
			if runErr != nil {
				return runErr
			}
			if stopErr != nil {
				return stopErr
			}
			logging.Logger().Info("server stopped")
			return nil
		},
	}
}
