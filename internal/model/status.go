package model

import (
	"encoding/json"
	"time"
)

type SyncState string

const (
	StateUnknown     SyncState = "unknown"
	StateInSync      SyncState = "in_sync"
	StateLocalAhead  SyncState = "local_ahead"
	StateRemoteAhead SyncState = "remote_ahead"
	StateConflict    SyncState = "conflict"
)

// SyncStatus is derived on demand and never persisted.
type SyncStatus struct {
	Module            string     `json:"module"`
	LocalFingerprint  string     `json:"local_fingerprint"`
	RemoteFingerprint string     `json:"remote_fingerprint,omitempty"`
	NeedsSync         bool       `json:"needs_sync"`
	LastSyncTime      *time.Time `json:"last_sync_time,omitempty"`
	State             SyncState  `json:"state"`
}

// RemoteRecord is the envelope stored in each remote module file.
type RemoteRecord struct {
	Payload      json.RawMessage `json:"payload"`
	LastSyncTime time.Time       `json:"lastSyncTime"`
	Fingerprint  string          `json:"fingerprint"`
}

type SyncReport struct {
	RunID   string          `json:"run_id"`
	Success bool            `json:"success"`
	Results map[string]bool `json:"results"`
	Message string          `json:"message"`
}
