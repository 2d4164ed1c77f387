// Package remote stores files in a GitHub or Gitee repository through the
// contents API, using each file's blob sha as its version token.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reposync/internal/logger"
	"reposync/internal/model"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Client struct {
	profile    model.ConnectionProfile
	dialect    Dialect
	httpClient *http.Client
}

type Option func(*options)

type options struct {
	baseURL   string
	timeout   time.Duration
	perSecond float64
	transport http.RoundTripper
}

func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithRateLimit(perSecond float64) Option {
	return func(o *options) { o.perSecond = perSecond }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func New(profile model.ConnectionProfile, opts ...Option) (*Client, error) {
	o := options{
		timeout:   30 * time.Second,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}

	profile = profile.WithDefaults()
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	dialect, err := NewDialect(profile.Provider, o.baseURL)
	if err != nil {
		return nil, err
	}

	rt := newRateLimitedTransport(o.transport, o.perSecond)
	rt = dialect.Authorize(rt, profile.Token)

	return &Client{
		profile: profile,
		dialect: dialect,
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   o.timeout,
		},
	}, nil
}

func (c *Client) Profile() model.ConnectionProfile {
	return c.profile
}

func (c *Client) CheckAccess(ctx context.Context) (AccessResult, error) {
	var info RepoInfo
	err := c.do(ctx, http.MethodGet, c.repoURL(), nil, &info)
	if err == nil {
		if !c.dialect.CanPush(info) {
			return AccessResult{OK: false, StatusCode: http.StatusOK, Message: "token has no write access"}, nil
		}
		return AccessResult{OK: true, StatusCode: http.StatusOK, Message: "ok"}, nil
	}

	apiErr, ok := errors.AsType[*APIError](err)
	if !ok {
		return AccessResult{}, fmt.Errorf("failed to reach %s: %w", c.dialect.Kind(), err)
	}

	result := AccessResult{StatusCode: apiErr.StatusCode}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		result.Message = "token invalid"
	case http.StatusNotFound:
		result.Message = "repository not found or no access"
	default:
		result.Message = fmt.Sprintf("unexpected response (status %d)", apiErr.StatusCode)
	}

	return result, nil
}

// GetFile returns nil when the file does not exist.
func (c *Client) GetFile(ctx context.Context, path string) (*File, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, c.contentsURL(path)+"?ref="+url.QueryEscape(c.profile.Branch), nil, &raw)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	// Gitee answers a missing path with an empty listing.
	if trimmed[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if len(entries) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: path is a directory", path)
	}

	var resp contentResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if resp.SHA == "" {
		return nil, nil
	}

	content, err := decodeContent(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &File{Path: path, Version: resp.SHA, Content: content}, nil
}

// PutFile writes content and returns the new version token.
//
// With a version, the write is a single update and a rejected token yields
// ErrStaleVersion. Without one, the current token is looked up first; if the
// file is missing it is created.
func (c *Client) PutFile(ctx context.Context, path string, content []byte, message, version string) (string, error) {
	if version != "" {
		sha, err := c.write(ctx, http.MethodPut, path, content, message, &version)
		if isConflict(err) {
			return "", fmt.Errorf("failed to update %s: %w: %w", path, ErrStaleVersion, err)
		}
		if err != nil {
			return "", fmt.Errorf("failed to update %s: %w", path, err)
		}
		return sha, nil
	}

	existing, err := c.GetFile(ctx, path)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return c.create(ctx, path, content, message)
	}

	sha, err := c.write(ctx, http.MethodPut, path, content, message, &existing.Version)
	if err == nil {
		return sha, nil
	}
	if !isConflict(err) {
		return "", fmt.Errorf("failed to update %s: %w", path, err)
	}

	logger.Log.Debug("version conflict, refetching",
		zap.String("path", path),
		zap.Error(err))

	fresh, err := c.GetFile(ctx, path)
	if err != nil {
		return "", err
	}
	if fresh == nil {
		return c.create(ctx, path, content, message)
	}

	sha, err = c.write(ctx, http.MethodPut, path, content, message, &fresh.Version)
	if isConflict(err) {
		return "", fmt.Errorf("failed to update %s: %w: %w", path, ErrStaleVersion, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", path, err)
	}

	return sha, nil
}

// create tries each creation strategy in order. Providers disagree on which
// request shape creates a file, so the first accepted one wins.
func (c *Client) create(ctx context.Context, path string, content []byte, message string) (string, error) {
	strategies := []struct {
		name string
		fn   func() (string, error)
	}{
		{"direct", func() (string, error) {
			return c.write(ctx, c.dialect.CreateMethod(), path, content, message, nil)
		}},
		{"empty-then-update", func() (string, error) {
			sha, err := c.write(ctx, c.dialect.CreateMethod(), path, nil, message, nil)
			if err != nil {
				return "", err
			}
			return c.write(ctx, http.MethodPut, path, content, message, &sha)
		}},
		{"explicit-empty-sha", func() (string, error) {
			return c.write(ctx, http.MethodPut, path, content, message, new(""))
		}},
	}

	var lastErr error
	for _, s := range strategies {
		sha, err := s.fn()
		if err == nil {
			logger.Log.Debug("file created",
				zap.String("path", path),
				zap.String("strategy", s.name))
			return sha, nil
		}

		lastErr = err
		logger.Log.Debug("create strategy rejected",
			zap.String("path", path),
			zap.String("strategy", s.name),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("%w %s: %w", ErrCreateFailed, path, lastErr)
}

// DeleteFile removes path. A file that is already gone counts as deleted.
func (c *Client) DeleteFile(ctx context.Context, path, message string) error {
	existing, err := c.GetFile(ctx, path)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	body := deleteRequest{Message: message, SHA: existing.Version, Branch: c.profile.Branch}
	err = c.do(ctx, http.MethodDelete, c.contentsURL(path), body, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	return nil
}

// ListFiles returns the files (not directories) directly under dir.
func (c *Client) ListFiles(ctx context.Context, dir string) ([]Entry, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, c.contentsURL(dir)+"?ref="+url.QueryEscape(c.profile.Branch), nil, &raw)
	if isNotFound(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", dir, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("failed to list %q: not a directory", dir)
	}

	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	files := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type == "file" {
			files = append(files, e)
		}
	}

	return files, nil
}

func (c *Client) write(ctx context.Context, method, path string, content []byte, message string, sha *string) (string, error) {
	body := writeRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.profile.Branch,
		SHA:     sha,
	}

	var resp writeResponse
	if err := c.do(ctx, method, c.contentsURL(path), body, &resp); err != nil {
		return "", err
	}

	return resp.Content.SHA, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	logger.Log.Debug("remote request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &payload) != nil || payload.Message == "" {
			payload.Message = strings.TrimSpace(string(data))
		}

		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       req.URL.Path,
			Message:    payload.Message,
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) repoURL() string {
	return fmt.Sprintf("%s/repos/%s/%s", c.dialect.BaseURL(),
		url.PathEscape(c.profile.Owner), url.PathEscape(c.profile.Repo))
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return c.repoURL() + "/contents/" + strings.Join(segments, "/")
}

func decodeContent(s string) ([]byte, error) {
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	return base64.StdEncoding.DecodeString(s)
}
