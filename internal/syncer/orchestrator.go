package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"reposync/internal/hasher"
	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/registry"
	"reposync/internal/remote"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errUnknownModule = errors.New("unknown module")
	errNothingToPull = errors.New("remote file does not exist")
)

type Orchestrator struct {
	// run serializes batches so modules are never pushed or pulled concurrently.
	run sync.Mutex

	mu       sync.Mutex
	baseline map[string]string
	// settled is the fingerprint stored in the remote record at the last
	// push or pull, which can differ from the payload's own fingerprint.
	settled         map[string]string
	versions        map[string]string
	lastSync        map[string]time.Time
	nextRemoteCheck time.Time

	registry    *registry.Registry
	remote      Remote
	recorder    Recorder
	remoteDir   string
	remoteCheck time.Duration
	now         func() time.Time
}

type Option func(*Orchestrator)

func WithRemoteDir(dir string) Option {
	return func(o *Orchestrator) { o.remoteDir = dir }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithRemoteCheckInterval sets how often AutoSync consults the remote for
// modules whose local data is unchanged. Zero means every time.
func WithRemoteCheckInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.remoteCheck = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(reg *registry.Registry, r Remote, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		baseline: make(map[string]string),
		settled:  make(map[string]string),
		versions: make(map[string]string),
		lastSync: make(map[string]time.Time),
		registry: reg,
		remote:   r,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Prime sets each module's baseline fingerprint. Modules missing from seed
// take their current local fingerprint, so a differing remote is pulled
// rather than overwritten. The next AutoSync consults the remote.
func (o *Orchestrator) Prime(seed map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, m := range o.registry.Modules() {
		if fp := seed[m.Name]; fp != "" {
			o.baseline[m.Name] = fp
			continue
		}

		fp, err := localFingerprint(m)
		if err != nil {
			logger.Log.Warn("failed to fingerprint local data",
				zap.String("module", m.Name),
				zap.Error(err))
			continue
		}
		o.baseline[m.Name] = fp
	}

	o.nextRemoteCheck = time.Time{}
}

// RequestRemoteCheck makes the next AutoSync consult the remote for every module.
func (o *Orchestrator) RequestRemoteCheck() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextRemoteCheck = time.Time{}
}

func (o *Orchestrator) LastSyncTime(name string) *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.lastSync[name]; ok {
		return new(t)
	}

	return nil
}

func (o *Orchestrator) RemotePath(m registry.Module) string {
	if o.remoteDir == "" {
		return m.RemoteFile
	}

	return path.Join(o.remoteDir, m.RemoteFile)
}

func (o *Orchestrator) StatusOf(ctx context.Context, name string) (model.SyncStatus, error) {
	m, ok := o.registry.Get(name)
	if !ok {
		return model.SyncStatus{}, fmt.Errorf("%w: %s", errUnknownModule, name)
	}

	return o.statusOf(ctx, m)
}

func (o *Orchestrator) statusOf(ctx context.Context, m registry.Module) (model.SyncStatus, error) {
	st := model.SyncStatus{Module: m.Name, State: model.StateUnknown}

	lfp, err := localFingerprint(m)
	if err != nil {
		return st, err
	}
	st.LocalFingerprint = lfp

	f, err := o.remote.GetFile(ctx, o.RemotePath(m))
	if err != nil {
		return st, err
	}

	o.mu.Lock()
	base, hasBase := o.baseline[m.Name]
	settled, hasSettled := o.settled[m.Name]
	o.mu.Unlock()

	if f == nil {
		st.NeedsSync = true
		st.State = model.StateLocalAhead
		return st, nil
	}

	var rec model.RemoteRecord
	if err := json.Unmarshal(f.Content, &rec); err != nil {
		return st, fmt.Errorf("failed to decode remote %s: %w", m.Name, err)
	}

	o.mu.Lock()
	o.versions[m.Name] = f.Version
	o.mu.Unlock()

	st.RemoteFingerprint = rec.Fingerprint
	st.NeedsSync = lfp != rec.Fingerprint
	if st.NeedsSync && hasBase && hasSettled && lfp == base && rec.Fingerprint == settled {
		// Neither side moved since a pull whose record carried a mismatched fingerprint.
		st.NeedsSync = false
	}
	if !rec.LastSyncTime.IsZero() {
		st.LastSyncTime = new(rec.LastSyncTime)
	}

	localChanged := lfp != base
	remoteChanged := rec.Fingerprint != base
	switch {
	case !st.NeedsSync:
		st.State = model.StateInSync
	case !hasBase:
		st.State = model.StateUnknown
	case localChanged && remoteChanged:
		st.State = model.StateConflict
	case localChanged:
		st.State = model.StateLocalAhead
	default:
		st.State = model.StateRemoteAhead
	}

	return st, nil
}

func (o *Orchestrator) PushModule(ctx context.Context, name string) bool {
	o.run.Lock()
	defer o.run.Unlock()

	return o.pushNamed(ctx, uuid.NewString(), name) == nil
}

func (o *Orchestrator) PullModule(ctx context.Context, name string) bool {
	o.run.Lock()
	defer o.run.Unlock()

	return o.pullNamed(ctx, uuid.NewString(), name) == nil
}

func (o *Orchestrator) pushNamed(ctx context.Context, runID, name string) error {
	m, ok := o.registry.Get(name)
	if !ok {
		logger.Log.Warn("push of unknown module", zap.String("module", name))
		return errUnknownModule
	}

	return o.attempt(runID, m, model.DirectionPush, func() (string, error) { return o.push(ctx, m) })
}

func (o *Orchestrator) pullNamed(ctx context.Context, runID, name string) error {
	m, ok := o.registry.Get(name)
	if !ok {
		logger.Log.Warn("pull of unknown module", zap.String("module", name))
		return errUnknownModule
	}

	return o.attempt(runID, m, model.DirectionPull, func() (string, error) { return o.pull(ctx, m) })
}

// push uploads the module and returns the fingerprint it pushed.
func (o *Orchestrator) push(ctx context.Context, m registry.Module) (string, error) {
	local, err := m.ReadLocal()
	if err != nil {
		return "", err
	}

	fp, err := hasher.FingerprintJSON(local)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", m.Name, err)
	}

	now := o.now().UTC()
	body, err := json.MarshalIndent(model.RemoteRecord{
		Payload:      local,
		LastSyncTime: now,
		Fingerprint:  fp,
	}, "", "  ")
	if err != nil {
		return fp, fmt.Errorf("failed to encode %s: %w", m.Name, err)
	}

	p := o.RemotePath(m)
	msg := fmt.Sprintf("reposync: update %s", m.Name)

	o.mu.Lock()
	version := o.versions[m.Name]
	o.mu.Unlock()

	sha, err := o.remote.PutFile(ctx, p, body, msg, version)
	if errors.Is(err, remote.ErrStaleVersion) {
		logger.Log.Info("cached version is stale, refetching",
			zap.String("module", m.Name))

		f, gerr := o.remote.GetFile(ctx, p)
		if gerr != nil {
			return fp, gerr
		}

		fresh := ""
		if f != nil {
			fresh = f.Version
		}
		sha, err = o.remote.PutFile(ctx, p, body, msg, fresh)
	}
	if err != nil {
		return fp, err
	}

	o.mu.Lock()
	o.versions[m.Name] = sha
	o.baseline[m.Name] = fp
	o.settled[m.Name] = fp
	o.lastSync[m.Name] = now
	o.mu.Unlock()

	logger.Log.Info("module pushed",
		zap.String("module", m.Name),
		zap.String("fingerprint", fp))

	return fp, nil
}

// pull applies the remote payload locally and returns its fingerprint.
func (o *Orchestrator) pull(ctx context.Context, m registry.Module) (string, error) {
	f, err := o.remote.GetFile(ctx, o.RemotePath(m))
	if err != nil {
		return "", err
	}
	if f == nil {
		logger.Log.Info("nothing to pull",
			zap.String("module", m.Name))
		return "", errNothingToPull
	}

	var rec model.RemoteRecord
	if err := json.Unmarshal(f.Content, &rec); err != nil {
		return "", fmt.Errorf("failed to decode remote %s: %w", m.Name, err)
	}
	if len(rec.Payload) == 0 {
		return "", fmt.Errorf("remote %s has no payload", m.Name)
	}

	fp, err := hasher.FingerprintJSON(rec.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint remote %s: %w", m.Name, err)
	}
	if fp != rec.Fingerprint {
		logger.Log.Warn("remote fingerprint mismatch, applying payload anyway",
			zap.String("module", m.Name),
			zap.String("stored", rec.Fingerprint),
			zap.String("computed", fp))
	}

	if err := m.WriteLocal(rec.Payload); err != nil {
		return fp, err
	}

	o.mu.Lock()
	o.versions[m.Name] = f.Version
	o.baseline[m.Name] = fp
	o.settled[m.Name] = rec.Fingerprint
	o.lastSync[m.Name] = o.now().UTC()
	o.mu.Unlock()

	logger.Log.Info("module pulled",
		zap.String("module", m.Name),
		zap.String("fingerprint", fp))

	return fp, nil
}

// AutoSync brings every module in line with the remote. Modules whose local
// data is unchanged since their last sync are skipped without any remote
// call unless a remote check is due.
func (o *Orchestrator) AutoSync(ctx context.Context) model.SyncReport {
	o.run.Lock()
	defer o.run.Unlock()

	o.mu.Lock()
	now := o.now()
	checkRemote := o.remoteCheck <= 0 || !now.Before(o.nextRemoteCheck)
	if checkRemote {
		o.nextRemoteCheck = now.Add(o.remoteCheck)
	}
	o.mu.Unlock()

	return o.batch(func(runID string, m registry.Module) error {
		return o.autoSyncModule(ctx, runID, m, checkRemote)
	})
}

func (o *Orchestrator) autoSyncModule(ctx context.Context, runID string, m registry.Module, checkRemote bool) error {
	lfp, err := localFingerprint(m)
	if err != nil {
		return err
	}

	o.mu.Lock()
	base, hasBase := o.baseline[m.Name]
	o.mu.Unlock()

	if !checkRemote && hasBase && lfp == base {
		return nil
	}

	st, err := o.statusOf(ctx, m)
	if err != nil {
		return err
	}

	switch {
	case !st.NeedsSync:
		o.mu.Lock()
		o.baseline[m.Name] = lfp
		o.mu.Unlock()
		return nil
	case st.RemoteFingerprint == "" || lfp != base:
		if st.State == model.StateConflict {
			logger.Log.Warn("both sides changed since last sync, local copy wins",
				zap.String("module", m.Name))
		}
		return o.attempt(runID, m, model.DirectionPush, func() (string, error) { return o.push(ctx, m) })
	default:
		return o.attempt(runID, m, model.DirectionPull, func() (string, error) { return o.pull(ctx, m) })
	}
}

func (o *Orchestrator) SyncAllToCloud(ctx context.Context) model.SyncReport {
	o.run.Lock()
	defer o.run.Unlock()

	return o.batch(func(runID string, m registry.Module) error {
		return o.attempt(runID, m, model.DirectionPush, func() (string, error) { return o.push(ctx, m) })
	})
}

func (o *Orchestrator) SyncAllFromCloud(ctx context.Context) model.SyncReport {
	o.run.Lock()
	defer o.run.Unlock()

	return o.batch(func(runID string, m registry.Module) error {
		return o.attempt(runID, m, model.DirectionPull, func() (string, error) { return o.pull(ctx, m) })
	})
}

// batch runs fn for every module in order. A failing module never stops the batch.
func (o *Orchestrator) batch(fn func(runID string, m registry.Module) error) model.SyncReport {
	report := model.SyncReport{
		RunID:   uuid.NewString(),
		Success: true,
		Results: make(map[string]bool),
	}

	modules := o.registry.Modules()
	var succeeded, absent int
	for _, m := range modules {
		err := o.safely(m, func() error { return fn(report.RunID, m) })
		report.Results[m.Name] = err == nil
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, errNothingToPull):
			absent++
			report.Success = false
		default:
			report.Success = false
			logger.Log.Warn("module sync failed",
				zap.String("module", m.Name),
				zap.String("run_id", report.RunID),
				zap.Error(err))
		}
	}

	switch {
	case report.Success:
		report.Message = fmt.Sprintf("synced %d modules", succeeded)
	case absent == len(modules):
		report.Message = "repository has no files yet"
	default:
		report.Message = fmt.Sprintf("partial sync: %d/%d modules succeeded", succeeded, len(modules))
	}

	return report
}

// attempt runs one push or pull and records its outcome in history.
func (o *Orchestrator) attempt(runID string, m registry.Module, dir model.Direction, fn func() (string, error)) error {
	var fp string
	err := o.safely(m, func() error {
		var err error
		fp, err = fn()
		return err
	})

	if !errors.Is(err, errNothingToPull) {
		o.record(runID, m, dir, fp, err)
	}

	return err
}

// safely turns a panic in a module handler into a module failure.
func (o *Orchestrator) safely(m registry.Module, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("module sync panicked",
				zap.String("module", m.Name),
				zap.Any("panic", r))
			err = fmt.Errorf("panic syncing %s: %v", m.Name, r)
		}
	}()

	return fn()
}

func (o *Orchestrator) record(runID string, m registry.Module, dir model.Direction, fp string, err error) {
	if rerr := o.recorder.Record(runID, m.Name, dir, fp, err); rerr != nil {
		logger.Log.Warn("failed to save history",
			zap.String("module", m.Name),
			zap.Error(rerr))
	}
}

func localFingerprint(m registry.Module) (string, error) {
	local, err := m.ReadLocal()
	if err != nil {
		return "", err
	}

	fp, err := hasher.FingerprintJSON(local)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", m.Name, err)
	}

	return fp, nil
}
