// Package syncer decides, per data module, whether to push local data to the
// remote repository or pull it from there.
//
// The direction heuristic compares each module's local fingerprint with the
// fingerprint recorded at its last sync. A changed local side is pushed,
// otherwise a differing remote is pulled. When both sides changed since the
// last sync the local side wins and the remote edit is lost; there is no merge.
package syncer

import (
	"context"
	"reposync/internal/model"
	"reposync/internal/remote"
)

// Remote is the part of the contents transport the orchestrator needs.
type Remote interface {
	GetFile(ctx context.Context, path string) (*remote.File, error)
	PutFile(ctx context.Context, path string, content []byte, message, version string) (string, error)
}

// Recorder stores one line of sync history per module attempt.
type Recorder interface {
	Record(runID, module string, dir model.Direction, fingerprint string, err error) error
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, model.Direction, string, error) error { return nil }
