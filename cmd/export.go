package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reposync/internal/registry"
	"reposync/internal/repository"
	"reposync/internal/util"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [dir]",
	Short: "Write every module's local data to dir as sync-<module>.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New(repository.NewEntryRepository(gdb))

		for _, m := range reg.Modules() {
			data, err := m.ReadLocal()
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := json.Indent(&buf, data, "", "  "); err != nil {
				return fmt.Errorf("failed to format %s: %w", m.Name, err)
			}

			dst := filepath.Join(args[0], m.RemoteFile)
			if err := util.AtomicWrite(dst, &buf); err != nil {
				return err
			}

			fmt.Printf("%-16s -> %s\n", m.Name, dst)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
