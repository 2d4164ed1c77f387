package model

import (
	"errors"
	"fmt"
	"strings"
)

type ProviderKind string

const (
	ProviderGitHub ProviderKind = "github"
	ProviderGitee  ProviderKind = "gitee"
)

func (k ProviderKind) Valid() bool {
	return k == ProviderGitHub || k == ProviderGitee
}

func (k ProviderKind) DefaultBranch() string {
	if k == ProviderGitee {
		return "master"
	}

	return "main"
}

// ConnectionProfile identifies the repository used as the remote store.
type ConnectionProfile struct {
	Provider ProviderKind `json:"provider"`
	Token    string       `json:"token"`
	Owner    string       `json:"owner"`
	Repo     string       `json:"repo"`
	Branch   string       `json:"branch"`
}

func (p ConnectionProfile) WithDefaults() ConnectionProfile {
	p.Provider = ProviderKind(strings.ToLower(string(p.Provider)))
	if p.Branch == "" {
		p.Branch = p.Provider.DefaultBranch()
	}

	return p
}

func (p ConnectionProfile) Validate() error {
	switch {
	case !p.Provider.Valid():
		return errors.New("provider must be github or gitee")
	case p.Token == "":
		return errors.New("token is required")
	case p.Owner == "" || p.Repo == "":
		return errors.New("owner and repo are required")
	}

	return nil
}

// Key identifies the remote location, used to scope sync history.
func (p ConnectionProfile) Key() string {
	return fmt.Sprintf("%s:%s/%s@%s", p.Provider, p.Owner, p.Repo, p.Branch)
}

// Redacted masks the token for display.
func (p ConnectionProfile) Redacted() ConnectionProfile {
	if len(p.Token) > 4 {
		p.Token = strings.Repeat("*", len(p.Token)-4) + p.Token[len(p.Token)-4:]
	} else if p.Token != "" {
		p.Token = "****"
	}

	return p
}
