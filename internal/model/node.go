package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// LoadOrCreateNodeID returns the per-install identifier stored in dir.
func LoadOrCreateNodeID(dir string) (string, error) {
	idPath := filepath.Join(dir, "node-id")

	if data, err := os.ReadFile(idPath); err == nil && len(data) > 0 {
		return string(data), nil
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate node id: %w", err)
	}
	id := hex.EncodeToString(b)

	if err := os.WriteFile(idPath, []byte(id), 0600); err != nil {
		return "", fmt.Errorf("failed to save node id: %w", err)
	}

	return id, nil
}
