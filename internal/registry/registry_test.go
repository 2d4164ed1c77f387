package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (s mapStore) Get(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func (s mapStore) Set(key, value string) error {
	s[key] = value
	return nil
}

func TestNewRegistry(t *testing.T) {
	r := New(mapStore{})

	assert.Equal(t, []string{"tasks", "habits", "bookmarks", "calendarEvents"}, r.Names())

	m, ok := r.Get("calendarEvents")
	require.True(t, ok)
	assert.Equal(t, "sync-calendarEvents.json", m.RemoteFile)

	_, ok = r.Get("notes")
	assert.False(t, ok)

	assert.Len(t, r.WatchedKeys(), 4+len(AuxiliaryKeys))
}

func TestReadLocalDefaultsToEmpty(t *testing.T) {
	r := New(mapStore{})
	m, _ := r.Get(Tasks)

	v, err := m.ReadLocal()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(v))
}

func TestWriteThenRead(t *testing.T) {
	store := mapStore{}
	m, _ := New(store).Get(Habits)

	require.NoError(t, m.WriteLocal(json.RawMessage(`[{"name":"run"}]`)))
	assert.Equal(t, `[{"name":"run"}]`, store["habits"])

	v, err := m.ReadLocal()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"run"}]`, string(v))

	assert.Error(t, m.WriteLocal(json.RawMessage(`{oops`)))
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errors.New("locked") }
func (brokenStore) Set(string, string) error         { return errors.New("locked") }

func TestStoreErrorsPropagate(t *testing.T) {
	m, _ := New(brokenStore{}).Get(Bookmarks)

	_, err := m.ReadLocal()
	assert.ErrorContains(t, err, "bookmarks")
	assert.Error(t, m.WriteLocal(json.RawMessage(`[]`)))
}
