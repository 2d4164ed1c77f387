package cmd

import (
	"context"
	"os/signal"
	"reposync/internal/auth"
	"reposync/internal/config"
	"reposync/internal/daemon"
	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/monitor"
	"reposync/internal/registry"
	"reposync/internal/repository"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the daemon and keep the stored repository in sync",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	nodeID, err := model.LoadOrCreateNodeID(dir)
	if err != nil {
		return err
	}

	entries := repository.NewEntryRepository(gdb)
	history := repository.NewHistoryRepository(gdb)

	creds, err := auth.NewCredentialStore(entries, nodeID)
	if err != nil {
		return err
	}

	reg := registry.New(entries)
	session := daemon.NewSession(cfg, creds, reg, history)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Restore(ctx); err != nil {
		logger.Log.Warn("failed to restore connection",
			zap.Error(err))
	}

	mon := monitor.New(ctx, entries, reg.WatchedKeys(), session, monitor.Config{
		PollInterval: cfg.PollInterval,
		Debounce:     cfg.Debounce,
		Cooldown:     cfg.Cooldown,
		RemoteCheck:  cfg.RemoteCheckInterval,
	})
	entries.OnChange(func(string) { mon.Nudge() })
	mon.Start()
	defer mon.Stop()

	config.Watch(func(c *config.Config, err error) {
		if err != nil {
			logger.Log.Warn("failed to reload config",
				zap.Error(err))
			return
		}
		session.SetAutoSync(c.AutoSync)
	})

	srv := daemon.NewServer(session, reg, history, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("reposync daemon started",
		zap.Bool("connected", session.Connected()),
		zap.Strings("modules", reg.Names()),
		zap.Int("port", cfg.DaemonPort))

	select {
	case <-ctx.Done():
		logger.Log.Info("shutting down",
			zap.Error(context.Cause(ctx)))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
