// Package monitor watches the local store for changes and triggers automatic
// syncs once the changes settle.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"reposync/internal/logger"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Snapshotter interface {
	Snapshot(keys []string) (map[string]string, error)
}

// Target is what the monitor drives. checkRemote asks AutoSync to consult
// the remote even for unchanged modules; it reports false when the cycle was
// refused without running. Reconnect retries a stored connection and reports
// whether the target is connected afterwards.
type Target interface {
	Connected() bool
	AutoSyncEnabled() bool
	Syncing() bool
	AutoSync(ctx context.Context, checkRemote bool) bool
	Reconnect(ctx context.Context) bool
}

type Config struct {
	PollInterval time.Duration
	Debounce     time.Duration
	Cooldown     time.Duration
	// RemoteCheck triggers a gated sync periodically even without local
	// changes so remote edits get pulled. Zero disables it.
	RemoteCheck time.Duration
}

type Monitor struct {
	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	done        chan struct{}
	nudgeCh     chan struct{}
	last        []byte
	lastValues  map[string]string
	pending     bool
	changedAt   time.Time
	lastAttempt time.Time

	ctx    context.Context
	store  Snapshotter
	keys   []string
	target Target
	cfg    Config
	now    func() time.Time
}

func New(ctx context.Context, store Snapshotter, keys []string, target Target, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Monitor{
		ctx:     ctx,
		store:   store,
		keys:    append([]string(nil), keys...),
		target:  target,
		cfg:     cfg,
		now:     time.Now,
		nudgeCh: make(chan struct{}, 1),
	}
}

// Start begins polling. Starting a running monitor restarts it.
func (m *Monitor) Start() {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	raw, values, err := m.snapshot()
	if err != nil {
		logger.Log.Warn("failed to take initial snapshot", zap.Error(err))
	}
	m.last, m.lastValues = raw, values
	m.pending = false

	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go m.loop(m.stopCh, m.done)

	logger.Log.Debug("change monitor started",
		zap.Duration("poll", m.cfg.PollInterval),
		zap.Duration("debounce", m.cfg.Debounce))
}

// Stop halts polling. Stopping an idle monitor does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, done := m.stopCh, m.done
	m.mu.Unlock()

	close(stopCh)
	<-done

	logger.Log.Debug("change monitor stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Nudge asks for an immediate check instead of waiting for the next poll.
func (m *Monitor) Nudge() {
	select {
	case m.nudgeCh <- struct{}{}:
	default:
	}
}

func (m *Monitor) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	var refresh <-chan time.Time
	if m.cfg.RemoteCheck > 0 {
		t := time.NewTicker(m.cfg.RemoteCheck)
		defer t.Stop()
		refresh = t.C
	}

	for {
		select {
		case <-stopCh:
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		case <-m.nudgeCh:
			m.tick()
		case <-refresh:
			if !m.target.Connected() {
				go m.reconnect()
				continue
			}
			m.mu.Lock()
			m.tryTrigger(true)
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, values, err := m.snapshot()
	if err != nil {
		logger.Log.Warn("failed to snapshot local store", zap.Error(err))
		return
	}

	if !bytes.Equal(raw, m.last) {
		logger.Log.Debug("local changes detected",
			zap.Strings("keys", changedKeys(m.lastValues, values)))

		m.last, m.lastValues = raw, values
		m.pending = true
		m.changedAt = m.now()
	}

	if m.pending && m.now().Sub(m.changedAt) >= m.cfg.Debounce {
		m.tryTrigger(false)
	}
}

// tryTrigger starts a sync when every gate passes. Must be called with mu held.
func (m *Monitor) tryTrigger(checkRemote bool) {
	now := m.now()

	var reason string
	switch {
	case !m.target.Connected():
		reason = "not connected"
	case !m.target.AutoSyncEnabled():
		reason = "auto sync disabled"
	case m.target.Syncing():
		reason = "sync in flight"
	case !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < m.cfg.Cooldown:
		reason = "cooling down"
	}

	if reason != "" {
		logger.Log.Debug("auto sync skipped", zap.String("reason", reason))
		return
	}

	m.lastAttempt = now
	wasPending := m.pending
	m.pending = false

	go func() {
		if m.target.AutoSync(m.ctx, checkRemote) || !wasPending {
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		logger.Log.Debug("auto sync refused, keeping change pending")
		m.pending = true
	}()
}

func (m *Monitor) reconnect() {
	if !m.target.Reconnect(m.ctx) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.tryTrigger(true)
	}
}

func (m *Monitor) snapshot() ([]byte, map[string]string, error) {
	values, err := m.store.Snapshot(m.keys)
	if err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return nil, nil, err
	}

	return raw, values, nil
}

func changedKeys(before, after map[string]string) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}

	return keys
}
