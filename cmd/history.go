package cmd

import (
	"fmt"
	"net/http"
	"reposync/internal/model"
	"reposync/internal/remote"
	"reposync/internal/repository"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
	historyStats  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyStats {
			var stats repository.Stats
			if err := call(http.MethodGet, "/history/stats", nil, &stats); err != nil {
				return err
			}

			fmt.Printf("total: %d, success: %d, failed: %d\n", stats.Total, stats.Success, stats.Failed)
			return nil
		}

		path := fmt.Sprintf("/history?n=%d", historyN)
		if historyFailed {
			path += "&failed=1"
		}

		var histories []model.History
		if err := call(http.MethodGet, path, nil, &histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			fmt.Printf("%s [%s] %-4s %-16s %s\n",
				status,
				h.SyncedAt.Format("2006-01-02 15:04:05"),
				h.Direction,
				h.Module,
				h.ErrMsg,
			)
		}

		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the files stored in the remote repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []remote.Entry
		if err := call(http.MethodGet, "/files", nil, &files); err != nil {
			return err
		}

		if len(files) == 0 {
			fmt.Println("repository has no files yet")
			return nil
		}

		for _, f := range files {
			fmt.Printf("%-40s %8d  %s\n", f.Path, f.Size, f.Version)
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show failed attempts only")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show totals instead of entries")
	rootCmd.AddCommand(historyCmd, filesCmd)
}
