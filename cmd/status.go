package cmd

import (
	"fmt"
	"net/http"
	"reposync/internal/model"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap model.SessionSnapshot
		if err := call(http.MethodGet, "/status", nil, &snap); err != nil {
			return err
		}

		if !snap.Connected {
			if snap.Reconnecting {
				p := snap.Profile
				fmt.Printf("waiting to reach %s %s/%s@%s\n", p.Provider, p.Owner, p.Repo, p.Branch)
				return nil
			}
			fmt.Println("not connected, use 'reposync connect' to set up a repository")
			return nil
		}

		p := snap.Profile
		fmt.Printf("remote:    %s %s/%s@%s\n", p.Provider, p.Owner, p.Repo, p.Branch)
		if snap.ConnectedAt != nil {
			fmt.Printf("uptime:    %s\n", time.Since(*snap.ConnectedAt).Round(time.Second))
		}
		fmt.Printf("auto sync: %t (syncing: %t)\n\n", snap.AutoSync, snap.Syncing)

		fmt.Printf("%-16s %-6s %-8s %-8s %-20s %s\n",
			"MODULE", "LAST", "SYNCED", "FAILED", "LAST SYNC", "ERROR")

		for _, m := range snap.Modules {
			lastSync := "-"
			if m.LastSync != nil {
				lastSync = m.LastSync.Format("2006-01-02 15:04:05")
			}

			dir := string(m.LastDirection)
			if dir == "" {
				dir = "-"
			}

			fmt.Printf("%-16s %-6s %-8d %-8d %-20s %s\n",
				m.Name, dir, m.Synced, m.Failed, lastSync, m.LastError)
		}

		return nil
	},
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Compare each module with its remote copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		var statuses []model.SyncStatus
		if err := call(http.MethodGet, "/modules", nil, &statuses); err != nil {
			return err
		}

		fmt.Printf("%-16s %-13s %-34s %s\n", "MODULE", "STATE", "LOCAL", "REMOTE")
		for _, st := range statuses {
			remoteFP := st.RemoteFingerprint
			if remoteFP == "" {
				remoteFP = "-"
			}
			fmt.Printf("%-16s %-13s %-34s %s\n", st.Module, st.State, st.LocalFingerprint, remoteFP)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, modulesCmd)
}
