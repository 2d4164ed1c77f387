package daemon

import (
	"reposync/internal/model"
	"sync"
	"time"
)

// State keeps per-module counters for the lifetime of the daemon.
type State struct {
	mu      sync.RWMutex
	order   []string
	modules map[string]*model.ModuleSnapshot
}

func NewState(names []string) *State {
	s := &State{
		order:   append([]string(nil), names...),
		modules: make(map[string]*model.ModuleSnapshot, len(names)),
	}
	for _, n := range names {
		s.modules[n] = &model.ModuleSnapshot{Name: n}
	}

	return s
}

func (s *State) RecordSync(module string, dir model.Direction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.modules[module]
	if !ok {
		return
	}

	snap.LastDirection = dir
	if err != nil {
		snap.Failed++
		snap.LastError = err.Error()
		return
	}

	snap.Synced++
	snap.LastError = ""
	snap.LastSync = new(time.Now())
}

func (s *State) Snapshot() []model.ModuleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]model.ModuleSnapshot, 0, len(s.order))
	for _, n := range s.order {
		snaps = append(snaps, *s.modules[n])
	}

	return snaps
}
