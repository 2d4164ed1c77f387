package auth

import (
	"errors"
	"path/filepath"
	"reposync/internal/db"
	"reposync/internal/model"
	"reposync/internal/repository"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *repository.EntryRepository {
	t.Helper()

	gdb, err := db.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)

	return repository.NewEntryRepository(gdb)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	creds, err := NewCredentialStore(store, "node-a")
	require.NoError(t, err)

	saved, err := creds.Save(model.ConnectionProfile{
		Provider: model.ProviderGitHub,
		Token:    "ghp_secret",
		Owner:    "me",
		Repo:     "data",
	})
	require.NoError(t, err)
	assert.Equal(t, "main", saved.Branch)

	blob, ok, err := store.Get(profileKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, blob, "ghp_secret")

	// a fresh store over the same database reads it back
	reopened, err := NewCredentialStore(store, "node-a")
	require.NoError(t, err)
	loaded := reopened.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, saved, *loaded)
	assert.Equal(t, saved, *reopened.Active())
}

func TestSaveGiteeDefaultBranch(t *testing.T) {
	creds, err := NewCredentialStore(newTestStore(t), "node-a")
	require.NoError(t, err)

	saved, err := creds.Save(model.ConnectionProfile{
		Provider: "Gitee",
		Token:    "t",
		Owner:    "me",
		Repo:     "data",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGitee, saved.Provider)
	assert.Equal(t, "master", saved.Branch)
}

func TestSaveRejectsIncomplete(t *testing.T) {
	creds, err := NewCredentialStore(newTestStore(t), "node-a")
	require.NoError(t, err)

	_, err = creds.Save(model.ConnectionProfile{Provider: "bitbucket", Token: "t", Owner: "o", Repo: "r"})
	assert.Error(t, err)

	_, err = creds.Save(model.ConnectionProfile{Provider: model.ProviderGitHub, Owner: "o", Repo: "r"})
	assert.Error(t, err)
	assert.Nil(t, creds.Active())
}

func TestLoadAbsent(t *testing.T) {
	creds, err := NewCredentialStore(newTestStore(t), "node-a")
	require.NoError(t, err)

	assert.Nil(t, creds.Load())
}

func TestLoadCorruptedBlob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set(profileKey, "not-base64!!"))

	creds, err := NewCredentialStore(store, "node-a")
	require.NoError(t, err)
	assert.Nil(t, creds.Load())

	require.NoError(t, store.Set(profileKey, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.Nil(t, creds.Load())
}

func TestLoadWithDifferentInstallKey(t *testing.T) {
	store := newTestStore(t)

	a, err := NewCredentialStore(store, "node-a")
	require.NoError(t, err)
	_, err = a.Save(model.ConnectionProfile{Provider: model.ProviderGitHub, Token: "t", Owner: "o", Repo: "r"})
	require.NoError(t, err)

	b, err := NewCredentialStore(store, "node-b")
	require.NoError(t, err)
	assert.Nil(t, b.Load())
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	creds, err := NewCredentialStore(store, "node-a")
	require.NoError(t, err)

	_, err = creds.Save(model.ConnectionProfile{Provider: model.ProviderGitHub, Token: "t", Owner: "o", Repo: "r"})
	require.NoError(t, err)

	require.NoError(t, creds.Clear())
	assert.Nil(t, creds.Active())
	assert.Nil(t, creds.Load())
}

type failingStore struct{}

func (failingStore) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }
func (failingStore) Set(string, string) error         { return errors.New("disk gone") }
func (failingStore) Delete(string) error              { return errors.New("disk gone") }

func TestStoreFailures(t *testing.T) {
	creds, err := NewCredentialStore(failingStore{}, "node-a")
	require.NoError(t, err)

	_, err = creds.Save(model.ConnectionProfile{Provider: model.ProviderGitHub, Token: "t", Owner: "o", Repo: "r"})
	assert.Error(t, err)
	assert.Nil(t, creds.Load())
	assert.Error(t, creds.Clear())
}
