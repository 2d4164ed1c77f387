package cmd

import (
	"fmt"
	"os"
	"reposync/internal/config"
	"reposync/internal/db"
	"reposync/internal/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfg   *config.Config
	gdb   *gorm.DB
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "reposync",
	Short: "Sync local app data to a GitHub or Gitee repository",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		logFile := ""
		if cmd.Name() == "watch" {
			logFile = cfg.LogFile
		}
		logger.Init(debug, logFile)

		clientCmds := map[string]bool{
			"status": true, "stop": true, "history": true,
			"connect": true, "disconnect": true, "sync": true,
			"files": true, "modules": true, "auto-sync": true,
			"install": true, "uninstall": true,
		}
		if !clientCmds[cmd.Name()] {
			gdb, err = db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
}
