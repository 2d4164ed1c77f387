package model

import "time"

type ModuleSnapshot struct {
	Name          string     `json:"name"`
	LastSync      *time.Time `json:"last_sync"`
	LastDirection Direction  `json:"last_direction,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Synced        int        `json:"synced"`
	Failed        int        `json:"failed"`
}

type SessionSnapshot struct {
	Connected bool `json:"connected"`
	// Reconnecting means a stored profile is waiting for the provider to be reachable.
	Reconnecting bool              `json:"reconnecting"`
	Profile      ConnectionProfile `json:"profile"`
	AutoSync     bool              `json:"auto_sync"`
	Syncing      bool              `json:"syncing"`
	ConnectedAt  *time.Time        `json:"connected_at"`
	Modules      []ModuleSnapshot  `json:"modules"`
}
