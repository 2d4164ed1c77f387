// Package registry lists the data modules that take part in sync.
package registry

import (
	"encoding/json"
	"fmt"
)

const (
	Tasks          = "tasks"
	Habits         = "habits"
	Bookmarks      = "bookmarks"
	CalendarEvents = "calendarEvents"
)

// AuxiliaryKeys are settings watched for changes alongside module data.
var AuxiliaryKeys = []string{"settings.theme", "settings.pomodoro", "settings.autoSync"}

type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type Module struct {
	Name       string
	RemoteFile string
	LocalKey   string
	empty      json.RawMessage
	store      Store
}

// ReadLocal returns the module's current local payload. A missing key reads
// as the module's empty value.
func (m Module) ReadLocal() (json.RawMessage, error) {
	v, ok, err := m.store.Get(m.LocalKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.Name, err)
	}
	if !ok || v == "" {
		return m.empty, nil
	}

	return json.RawMessage(v), nil
}

func (m Module) WriteLocal(payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("invalid payload for %s", m.Name)
	}

	if err := m.store.Set(m.LocalKey, string(payload)); err != nil {
		return fmt.Errorf("failed to write %s: %w", m.Name, err)
	}

	return nil
}

type Registry struct {
	modules []Module
	byName  map[string]Module
}

func New(store Store) *Registry {
	r := &Registry{byName: make(map[string]Module)}

	for _, name := range []string{Tasks, Habits, Bookmarks, CalendarEvents} {
		m := Module{
			Name:       name,
			RemoteFile: RemoteFileName(name),
			LocalKey:   name,
			empty:      json.RawMessage("[]"),
			store:      store,
		}
		r.modules = append(r.modules, m)
		r.byName[name] = m
	}

	return r
}

func RemoteFileName(name string) string {
	return "sync-" + name + ".json"
}

func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.byName[name]
	return m, ok
}

func (r *Registry) Modules() []Module {
	return append([]Module(nil), r.modules...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.Name
	}

	return names
}

// WatchedKeys is every local key the change monitor snapshots.
func (r *Registry) WatchedKeys() []string {
	keys := make([]string, 0, len(r.modules)+len(AuxiliaryKeys))
	for _, m := range r.modules {
		keys = append(keys, m.LocalKey)
	}

	return append(keys, AuxiliaryKeys...)
}
