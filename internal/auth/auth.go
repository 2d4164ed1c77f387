// Package auth persists the active connection profile, encrypted at rest.
package auth

import (
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"reposync/internal/logger"
	"reposync/internal/model"
	"sync"

	"go.uber.org/zap"
)

const profileKey = "sync.profile"

type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type CredentialStore struct {
	mu     sync.RWMutex
	store  Store
	aead   cipher.AEAD
	active *model.ConnectionProfile
}

func NewCredentialStore(store Store, nodeID string) (*CredentialStore, error) {
	aead, err := newAEAD(nodeID)
	if err != nil {
		return nil, err
	}

	return &CredentialStore{store: store, aead: aead}, nil
}

// Save persists p, filling in the provider's default branch, and makes it active.
func (c *CredentialStore) Save(p model.ConnectionProfile) (model.ConnectionProfile, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid profile: %w", err)
	}

	plain, err := json.Marshal(p)
	if err != nil {
		return p, fmt.Errorf("failed to encode profile: %w", err)
	}

	blob, err := seal(c.aead, plain)
	if err != nil {
		return p, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Set(profileKey, blob); err != nil {
		return p, fmt.Errorf("failed to save profile: %w", err)
	}
	c.active = new(p)

	return p, nil
}

// Load returns the stored profile, or nil when none is stored or it cannot be read.
func (c *CredentialStore) Load() *model.ConnectionProfile {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, ok, err := c.store.Get(profileKey)
	if err != nil {
		logger.Log.Warn("failed to read stored profile", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	plain, err := open(c.aead, blob)
	if err != nil {
		logger.Log.Warn("stored profile unreadable, ignoring", zap.Error(err))
		return nil
	}

	var p model.ConnectionProfile
	if err := json.Unmarshal(plain, &p); err != nil {
		logger.Log.Warn("stored profile malformed, ignoring", zap.Error(err))
		return nil
	}

	p = p.WithDefaults()
	c.active = &p
	return new(p)
}

func (c *CredentialStore) Active() *model.ConnectionProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.active == nil {
		return nil
	}

	return new(*c.active)
}

func (c *CredentialStore) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = nil
	if err := c.store.Delete(profileKey); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}

	return nil
}
