package cmd

import (
	"fmt"
	"net/http"
	"reposync/internal/model"
	"sort"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:       "sync [auto|push|pull]",
	Short:     "Sync all modules once",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"auto", "push", "pull"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/sync"
		if len(args) == 1 {
			path += "/" + args[0]
		}

		var report model.SyncReport
		if err := call(http.MethodPost, path, nil, &report); err != nil {
			return err
		}

		names := make([]string, 0, len(report.Results))
		for name := range report.Results {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			mark := "✓"
			if !report.Results[name] {
				mark = "✗"
			}
			fmt.Printf("%s %s\n", mark, name)
		}

		fmt.Println(report.Message)
		return nil
	},
}

var autoSyncCmd = &cobra.Command{
	Use:       "auto-sync [on|off]",
	Short:     "Turn automatic sync on or off until the daemon restarts",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]bool{"enabled": args[0] == "on"}
		if err := call(http.MethodPut, "/settings/auto-sync", body, nil); err != nil {
			return err
		}

		fmt.Printf("auto sync %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, autoSyncCmd)
}
