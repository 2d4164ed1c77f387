package cmd

import (
	"fmt"
	"os"
	"reposync/internal/autostart"

	"github.com/spf13/cobra"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the sync daemon automatically at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		as := autostart.New()

		installed, err := as.IsInstalled()
		if err != nil {
			return err
		}
		if installed && !installForce {
			fmt.Println("autostart already registered, use --force to rewrite it")
			return nil
		}

		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		if err := as.Install(execPath); err != nil {
			return err
		}

		fmt.Printf("reposync daemon will start at login (%s watch)\n", execPath)
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "rewrite an existing registration")
	rootCmd.AddCommand(installCmd)
}
