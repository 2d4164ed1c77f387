package cmd

import (
	"fmt"
	"net/http"
	"reposync/internal/model"

	"github.com/spf13/cobra"
)

var profileFlags model.ConnectionProfile

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the daemon to a GitHub or Gitee repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Session model.SessionSnapshot `json:"session"`
		}

		if err := call(http.MethodPost, "/connect", profileFlags, &result); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		p := result.Session.Profile
		fmt.Printf("connected to %s %s/%s@%s (token %s)\n", p.Provider, p.Owner, p.Repo, p.Branch, p.Token)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the stored connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/disconnect", nil, nil); err != nil {
			return err
		}

		fmt.Println("disconnected")
		return nil
	},
}

func init() {
	f := connectCmd.Flags()
	f.StringVar((*string)(&profileFlags.Provider), "provider", string(model.ProviderGitHub), "github or gitee")
	f.StringVar(&profileFlags.Token, "token", "", "personal access token")
	f.StringVar(&profileFlags.Owner, "owner", "", "repository owner")
	f.StringVar(&profileFlags.Repo, "repo", "", "repository name")
	f.StringVar(&profileFlags.Branch, "branch", "", "branch (defaults to main, or master on gitee)")
	_ = connectCmd.MarkFlagRequired("token")
	_ = connectCmd.MarkFlagRequired("owner")
	_ = connectCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(connectCmd, disconnectCmd)
}
