package remote

import (
	"fmt"
	"net/http"
	"reposync/internal/model"
	"strings"

	"golang.org/x/oauth2"
)

// Dialect holds what differs between providers speaking the contents API.
type Dialect interface {
	Kind() model.ProviderKind
	BaseURL() string
	// CreateMethod is the HTTP method used to create a file that does not exist yet.
	CreateMethod() string
	Authorize(base http.RoundTripper, token string) http.RoundTripper
	CanPush(info RepoInfo) bool
}

func NewDialect(kind model.ProviderKind, baseURL string) (Dialect, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	switch kind {
	case model.ProviderGitHub:
		if baseURL == "" {
			baseURL = "https://api.github.com"
		}
		return &gitHub{baseURL: baseURL}, nil
	case model.ProviderGitee:
		if baseURL == "" {
			baseURL = "https://gitee.com/api/v5"
		}
		return &gitee{baseURL: baseURL}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", kind)
	}
}

type gitHub struct {
	baseURL string
}

func (g *gitHub) Kind() model.ProviderKind { return model.ProviderGitHub }
func (g *gitHub) BaseURL() string          { return g.baseURL }
func (g *gitHub) CreateMethod() string     { return http.MethodPut }

func (g *gitHub) Authorize(base http.RoundTripper, token string) http.RoundTripper {
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   base,
	}
}

func (g *gitHub) CanPush(info RepoInfo) bool {
	return hasAny(info.Permissions, "push", "admin", "maintain")
}

type gitee struct {
	baseURL string
}

func (g *gitee) Kind() model.ProviderKind { return model.ProviderGitee }
func (g *gitee) BaseURL() string          { return g.baseURL }
func (g *gitee) CreateMethod() string     { return http.MethodPost }

func (g *gitee) Authorize(base http.RoundTripper, token string) http.RoundTripper {
	return &queryTokenTransport{transport: base, token: token}
}

func (g *gitee) CanPush(info RepoInfo) bool {
	return hasAny(info.Permission, "push", "admin")
}

// hasAny treats missing permission data as allowed; the write itself will fail if not.
func hasAny(perms map[string]bool, aliases ...string) bool {
	if perms == nil {
		return true
	}

	for _, a := range aliases {
		if perms[a] {
			return true
		}
	}

	return false
}
