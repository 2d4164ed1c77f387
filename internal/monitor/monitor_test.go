package monitor

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Snapshot(keys []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *memStore) set(k, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k] = v
}

type fakeTarget struct {
	connected atomic.Bool
	enabled   atomic.Bool
	syncing   atomic.Bool
	syncs     atomic.Int32
	remote    atomic.Int32

	// refuse makes the next n cycles report that they did not run.
	refuse      atomic.Int32
	reconnects  atomic.Int32
	reconnectOK atomic.Bool
}

func newTarget() *fakeTarget {
	t := &fakeTarget{}
	t.connected.Store(true)
	t.enabled.Store(true)
	return t
}

func (t *fakeTarget) Connected() bool       { return t.connected.Load() }
func (t *fakeTarget) AutoSyncEnabled() bool { return t.enabled.Load() }
func (t *fakeTarget) Syncing() bool         { return t.syncing.Load() }

func (t *fakeTarget) AutoSync(_ context.Context, checkRemote bool) bool {
	if t.refuse.Add(-1) >= 0 {
		return false
	}
	t.syncs.Add(1)
	if checkRemote {
		t.remote.Add(1)
	}
	return true
}

func (t *fakeTarget) Reconnect(context.Context) bool {
	t.reconnects.Add(1)
	if t.reconnectOK.Load() {
		t.connected.Store(true)
	}
	return t.connected.Load()
}

var fast = Config{
	PollInterval: 5 * time.Millisecond,
	Debounce:     40 * time.Millisecond,
}

func newMonitor(t *testing.T, target Target, cfg Config) (*Monitor, *memStore) {
	t.Helper()

	store := &memStore{data: map[string]string{"tasks": "[]"}}
	m := New(context.Background(), store, []string{"tasks", "habits", "settings.theme"}, target, cfg)
	t.Cleanup(m.Stop)

	return m, store
}

func TestChangeTriggersOneSyncAfterDebounce(t *testing.T) {
	target := newTarget()
	m, store := newMonitor(t, target, fast)
	m.Start()

	for i := range 5 {
		store.set("tasks", string(rune('0'+i)))
		time.Sleep(10 * time.Millisecond)
	}

	assert.True(t, m.Pending())
	assert.Zero(t, target.syncs.Load())

	require.Eventually(t, func() bool { return target.syncs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), target.syncs.Load())
	assert.False(t, m.Pending())
	assert.Zero(t, target.remote.Load())
}

func TestNoChangeNoSync(t *testing.T) {
	target := newTarget()
	m, _ := newMonitor(t, target, fast)
	m.Start()

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, target.syncs.Load())
}

func TestUnwatchedKeyIgnored(t *testing.T) {
	target := newTarget()
	m, store := newMonitor(t, target, fast)
	m.Start()

	store.set("scratch", "x")
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, target.syncs.Load())
}

func TestGates(t *testing.T) {
	cases := map[string]func(*fakeTarget){
		"disconnected": func(ft *fakeTarget) { ft.connected.Store(false) },
		"disabled":     func(ft *fakeTarget) { ft.enabled.Store(false) },
		"in flight":    func(ft *fakeTarget) { ft.syncing.Store(true) },
	}

	for name, block := range cases {
		t.Run(name, func(t *testing.T) {
			target := newTarget()
			block(target)
			m, store := newMonitor(t, target, fast)
			m.Start()

			store.set("habits", `[1]`)
			time.Sleep(150 * time.Millisecond)
			assert.Zero(t, target.syncs.Load())
			assert.True(t, m.Pending())

			// once the gate opens the pending change is synced
			target.connected.Store(true)
			target.enabled.Store(true)
			target.syncing.Store(false)
			require.Eventually(t, func() bool { return target.syncs.Load() == 1 }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestCooldown(t *testing.T) {
	cfg := fast
	cfg.Cooldown = 300 * time.Millisecond

	target := newTarget()
	m, store := newMonitor(t, target, cfg)
	m.Start()

	store.set("tasks", "a")
	require.Eventually(t, func() bool { return target.syncs.Load() == 1 }, time.Second, 5*time.Millisecond)
	first := time.Now()

	store.set("tasks", "b")
	require.Eventually(t, func() bool { return target.syncs.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(first), 250*time.Millisecond)
}

func TestRemoteCheck(t *testing.T) {
	cfg := fast
	cfg.RemoteCheck = 30 * time.Millisecond

	target := newTarget()
	m, _ := newMonitor(t, target, cfg)
	m.Start()

	require.Eventually(t, func() bool { return target.remote.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestRefusedCycleKeepsChangePending(t *testing.T) {
	target := newTarget()
	target.refuse.Store(1)
	m, store := newMonitor(t, target, fast)
	m.Start()

	store.set("tasks", `[1]`)

	require.Eventually(t, func() bool { return target.syncs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, target.refuse.Load(), int32(-1))
	assert.False(t, m.Pending())
}

func TestRemoteCheckReconnects(t *testing.T) {
	cfg := fast
	cfg.RemoteCheck = 30 * time.Millisecond

	target := newTarget()
	target.connected.Store(false)
	m, _ := newMonitor(t, target, cfg)
	m.Start()

	require.Eventually(t, func() bool { return target.reconnects.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, target.syncs.Load())

	target.reconnectOK.Store(true)
	require.Eventually(t, func() bool { return target.remote.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, target.Connected())
}

func TestNudge(t *testing.T) {
	cfg := Config{PollInterval: time.Hour}

	target := newTarget()
	m, store := newMonitor(t, target, cfg)
	m.Start()

	store.set("settings.theme", "dark")
	m.Nudge()

	require.Eventually(t, func() bool { return target.syncs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStartStopIdempotent(t *testing.T) {
	target := newTarget()
	m, store := newMonitor(t, target, fast)

	m.Stop()
	assert.False(t, m.Running())

	m.Start()
	m.Start()
	assert.True(t, m.Running())

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())

	store.set("tasks", "changed while stopped")
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, target.syncs.Load())

	// restarting takes a fresh snapshot, so earlier edits are not replayed
	m.Start()
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, target.syncs.Load())
}

func TestChangedKeys(t *testing.T) {
	before := map[string]string{"a": "1", "b": "2"}
	after := maps.Clone(before)
	after["b"] = "3"
	after["c"] = "4"
	delete(after, "a")

	assert.ElementsMatch(t, []string{"a", "b", "c"}, changedKeys(before, after))
}
