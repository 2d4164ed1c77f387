package util

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "export", "sync-tasks.json")

	require.NoError(t, AtomicWrite(dst, strings.NewReader(`[1]`)))
	require.NoError(t, AtomicWrite(dst, strings.NewReader(`[1,2]`)))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriteKeepsOldContentOnFailure(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "sync-habits.json")
	require.NoError(t, AtomicWrite(dst, strings.NewReader(`["read"]`)))

	err := AtomicWrite(dst, iotest.ErrReader(errors.New("disk gone")))
	require.Error(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `["read"]`, string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemoveIfExists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, RemoveIfExists(p))

	require.NoError(t, os.WriteFile(p, nil, 0600))
	require.NoError(t, RemoveIfExists(p))
	assert.NoFileExists(t, p)
}
