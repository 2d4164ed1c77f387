package remote

type File struct {
	Path    string
	Version string
	Content []byte
}

type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Version     string `json:"sha"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

type AccessResult struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// RepoInfo is the subset of repository metadata used to check write access.
// GitHub reports "permissions", Gitee reports "permission".
type RepoInfo struct {
	FullName      string          `json:"full_name"`
	DefaultBranch string          `json:"default_branch"`
	Permissions   map[string]bool `json:"permissions"`
	Permission    map[string]bool `json:"permission"`
}

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type writeRequest struct {
	Message string  `json:"message"`
	Content string  `json:"content"`
	Branch  string  `json:"branch,omitempty"`
	SHA     *string `json:"sha,omitempty"`
}

type writeResponse struct {
	Content struct {
		SHA  string `json:"sha"`
		Path string `json:"path"`
	} `json:"content"`
}

type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}
