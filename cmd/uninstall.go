package cmd

import (
	"fmt"
	"reposync/internal/autostart"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop starting the sync daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		as := autostart.New()

		installed, err := as.IsInstalled()
		if err != nil {
			return err
		}
		if !installed {
			fmt.Println("autostart is not registered")
			return nil
		}

		if err := as.Uninstall(); err != nil {
			return err
		}

		fmt.Println("reposync autostart removed; the stored connection is kept")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
