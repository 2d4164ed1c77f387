package daemon

import (
	"context"
	"errors"
	"fmt"
	"reposync/internal/auth"
	"reposync/internal/config"
	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/registry"
	"reposync/internal/remote"
	"reposync/internal/repository"
	"reposync/internal/syncer"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrBusy         = errors.New("sync already in progress")
	ErrAccessDenied = errors.New("repository access check failed")
)

type Direction string

const (
	DirectionAuto Direction = "auto"
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case "", DirectionAuto:
		return DirectionAuto, nil
	case DirectionPush, DirectionPull:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Session owns the active connection. It replaces process-wide state: the
// client and orchestrator live here between Connect and Disconnect.
type Session struct {
	mu          sync.RWMutex
	client      *remote.Client
	orch        *syncer.Orchestrator
	connectedAt *time.Time

	autoSync atomic.Bool
	syncing  atomic.Bool
	// denied is set when the stored profile was rejected by the provider;
	// Reconnect leaves it alone until the next Connect.
	denied    atomic.Bool
	restoring atomic.Bool

	cfg        *config.Config
	creds      *auth.CredentialStore
	registry   *registry.Registry
	history    *repository.HistoryRepository
	state      *State
	clientOpts []remote.Option
}

func NewSession(cfg *config.Config, creds *auth.CredentialStore, reg *registry.Registry, history *repository.HistoryRepository, opts ...remote.Option) *Session {
	clientOpts := []remote.Option{
		remote.WithTimeout(cfg.HTTPTimeout),
		remote.WithRateLimit(cfg.RequestsPerSecond),
	}
	if cfg.APIBaseURL != "" {
		clientOpts = append(clientOpts, remote.WithBaseURL(cfg.APIBaseURL))
	}

	s := &Session{
		cfg:        cfg,
		creds:      creds,
		registry:   reg,
		history:    history,
		state:      NewState(reg.Names()),
		clientOpts: append(clientOpts, opts...),
	}
	s.autoSync.Store(cfg.AutoSync)

	return s
}

// Connect verifies access with profile, stores it and starts a fresh session.
// A failed access check leaves the session disconnected and returns the
// classified result with ErrAccessDenied.
func (s *Session) Connect(ctx context.Context, profile model.ConnectionProfile) (remote.AccessResult, error) {
	client, err := remote.New(profile, s.clientOpts...)
	if err != nil {
		return remote.AccessResult{}, err
	}

	res, err := client.CheckAccess(ctx)
	if err != nil {
		return res, err
	}
	if !res.OK {
		return res, fmt.Errorf("%w: %s", ErrAccessDenied, res.Message)
	}

	if _, err := s.creds.Save(client.Profile()); err != nil {
		return res, err
	}

	if err := s.attach(client); err != nil {
		return res, err
	}

	return res, nil
}

// Restore reconnects with the stored profile, if any.
func (s *Session) Restore(ctx context.Context) error {
	profile := s.creds.Load()
	if profile == nil {
		logger.Log.Info("no stored connection, use 'reposync connect' to set one up")
		return nil
	}

	client, err := remote.New(*profile, s.clientOpts...)
	if err != nil {
		return err
	}

	res, err := client.CheckAccess(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		s.denied.Store(true)
		return fmt.Errorf("%w: %s", ErrAccessDenied, res.Message)
	}

	return s.attach(client)
}

// Reconnect retries the stored profile after Restore failed to reach the
// provider. It reports whether the session is connected afterwards.
func (s *Session) Reconnect(ctx context.Context) bool {
	if s.Connected() {
		return true
	}
	if s.denied.Load() || s.creds.Active() == nil {
		return false
	}
	if !s.restoring.CompareAndSwap(false, true) {
		return false
	}
	defer s.restoring.Store(false)

	if err := s.Restore(ctx); err != nil {
		logger.Log.Warn("failed to reconnect",
			zap.Error(err))
		return false
	}

	return s.Connected()
}

func (s *Session) attach(client *remote.Client) error {
	profile := client.Profile()

	seed, err := s.history.LastFingerprints(profile.Key(), s.registry.Names())
	if err != nil {
		return err
	}

	orch := syncer.New(s.registry, client,
		syncer.WithRemoteDir(s.cfg.RemoteDir),
		syncer.WithRemoteCheckInterval(s.cfg.RemoteCheckInterval),
		syncer.WithRecorder(&recorder{
			history: s.history,
			state:   s.state,
			remote:  profile.Key(),
		}),
	)
	orch.Prime(seed)
	s.denied.Store(false)

	s.mu.Lock()
	s.client = client
	s.orch = orch
	s.connectedAt = new(time.Now())
	s.mu.Unlock()

	logger.Log.Info("connected",
		zap.String("provider", string(profile.Provider)),
		zap.String("repo", profile.Owner+"/"+profile.Repo),
		zap.String("branch", profile.Branch))

	return nil
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.client = nil
	s.orch = nil
	s.connectedAt = nil
	s.mu.Unlock()

	if err := s.creds.Clear(); err != nil {
		return err
	}

	logger.Log.Info("disconnected")
	return nil
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orch != nil
}

func (s *Session) AutoSyncEnabled() bool {
	return s.autoSync.Load()
}

func (s *Session) SetAutoSync(enabled bool) {
	if s.autoSync.Swap(enabled) != enabled {
		logger.Log.Info("auto sync toggled", zap.Bool("enabled", enabled))
	}
}

func (s *Session) Syncing() bool {
	return s.syncing.Load()
}

// AutoSync runs one automatic cycle; the change monitor calls it. It reports
// false when the cycle was refused because the session was busy or offline.
func (s *Session) AutoSync(ctx context.Context, checkRemote bool) bool {
	report, err := s.sync(ctx, DirectionAuto, checkRemote)
	if err != nil {
		logger.Log.Debug("auto sync not run", zap.Error(err))
		return false
	}

	logger.Log.Info("auto sync finished",
		zap.String("run_id", report.RunID),
		zap.Bool("success", report.Success),
		zap.String("message", report.Message))

	return true
}

// Sync runs a user-requested sync. Auto syncs also consult the remote.
func (s *Session) Sync(ctx context.Context, dir Direction) (model.SyncReport, error) {
	return s.sync(ctx, dir, true)
}

func (s *Session) sync(ctx context.Context, dir Direction, checkRemote bool) (model.SyncReport, error) {
	orch := s.orchestrator()
	if orch == nil {
		return model.SyncReport{}, ErrNotConnected
	}

	if !s.syncing.CompareAndSwap(false, true) {
		return model.SyncReport{}, ErrBusy
	}
	defer s.syncing.Store(false)

	switch dir {
	case DirectionPush:
		return orch.SyncAllToCloud(ctx), nil
	case DirectionPull:
		return orch.SyncAllFromCloud(ctx), nil
	default:
		if checkRemote {
			orch.RequestRemoteCheck()
		}
		return orch.AutoSync(ctx), nil
	}
}

// Statuses compares every module with its remote copy.
func (s *Session) Statuses(ctx context.Context) ([]model.SyncStatus, error) {
	orch := s.orchestrator()
	if orch == nil {
		return nil, ErrNotConnected
	}

	names := s.registry.Names()
	statuses := make([]model.SyncStatus, 0, len(names))
	for _, name := range names {
		st, err := orch.StatusOf(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get status of %s: %w", name, err)
		}
		if st.LastSyncTime == nil {
			st.LastSyncTime = orch.LastSyncTime(name)
		}
		statuses = append(statuses, st)
	}

	return statuses, nil
}

func (s *Session) Files(ctx context.Context) ([]remote.Entry, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil {
		return nil, ErrNotConnected
	}

	return client.ListFiles(ctx, s.cfg.RemoteDir)
}

func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.SessionSnapshot{
		Connected:   s.orch != nil,
		AutoSync:    s.autoSync.Load(),
		Syncing:     s.syncing.Load(),
		ConnectedAt: s.connectedAt,
		Modules:     s.state.Snapshot(),
	}
	if s.client != nil {
		snap.Profile = s.client.Profile().Redacted()
	} else if p := s.creds.Active(); p != nil {
		snap.Profile = p.Redacted()
		snap.Reconnecting = !s.denied.Load()
	}

	return snap
}

func (s *Session) orchestrator() *syncer.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orch
}

// recorder writes sync attempts to the history table and the in-memory state.
type recorder struct {
	history *repository.HistoryRepository
	state   *State
	remote  string
}

func (r *recorder) Record(runID, module string, dir model.Direction, fingerprint string, err error) error {
	r.state.RecordSync(module, dir, err)

	h := model.History{
		RunID:       runID,
		Remote:      r.remote,
		Module:      module,
		Direction:   dir,
		Status:      model.StatusSuccess,
		Fingerprint: fingerprint,
	}
	if err != nil {
		h.Status = model.StatusFailed
		h.ErrMsg = err.Error()
	}

	return r.history.Save(h)
}
