package remote

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reposync/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorsAs(err error) (*APIError, bool) {
	return errors.AsType[*APIError](err)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func capture(t *testing.T, kind model.ProviderKind) *http.Request {
	t.Helper()

	var got *http.Request
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		got = r
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusNotFound)
		return rec.Result(), nil
	})

	c, err := New(model.ConnectionProfile{Provider: kind, Token: "tok", Owner: "o", Repo: "r"},
		WithTransport(rt), WithRateLimit(100))
	require.NoError(t, err)

	f, err := c.GetFile(t.Context(), "dir/sync-tasks.json")
	require.NoError(t, err)
	assert.Nil(t, f)
	require.NotNil(t, got)

	return got
}

func TestGitHubDialectRequest(t *testing.T) {
	req := capture(t, model.ProviderGitHub)

	assert.Equal(t, "api.github.com", req.URL.Host)
	assert.Equal(t, "/repos/o/r/contents/dir/sync-tasks.json", req.URL.Path)
	assert.Equal(t, "main", req.URL.Query().Get("ref"))
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	assert.Empty(t, req.URL.Query().Get("access_token"))
}

func TestGiteeDialectRequest(t *testing.T) {
	req := capture(t, model.ProviderGitee)

	assert.Equal(t, "gitee.com", req.URL.Host)
	assert.Equal(t, "/api/v5/repos/o/r/contents/dir/sync-tasks.json", req.URL.Path)
	assert.Equal(t, "master", req.URL.Query().Get("ref"))
	assert.Equal(t, "tok", req.URL.Query().Get("access_token"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestCanPush(t *testing.T) {
	gh, err := NewDialect(model.ProviderGitHub, "")
	require.NoError(t, err)
	gt, err := NewDialect(model.ProviderGitee, "")
	require.NoError(t, err)

	assert.True(t, gh.CanPush(RepoInfo{Permissions: map[string]bool{"maintain": true}}))
	assert.False(t, gh.CanPush(RepoInfo{Permissions: map[string]bool{"pull": true}}))
	assert.True(t, gh.CanPush(RepoInfo{}))

	assert.True(t, gt.CanPush(RepoInfo{Permission: map[string]bool{"push": true}}))
	assert.False(t, gt.CanPush(RepoInfo{Permission: map[string]bool{"pull": true}}))
	// gitee reports "permission", not "permissions"
	assert.True(t, gt.CanPush(RepoInfo{Permissions: map[string]bool{"pull": true}}))

	_, err = NewDialect("svn", "")
	assert.Error(t, err)
}
