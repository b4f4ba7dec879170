package app

import (
	"fmt"
	"os"
	"path/filepath"

	backupsvc "keyvault/internal/services/backup"
	gossipsvc "keyvault/internal/services/gossip"
	"keyvault/internal/store"
)

// Wire bundles the store and high-level services for the CLI.
type Wire struct {
	Store  *store.Store
	Gossip *gossipsvc.Service
	Backup *backupsvc.Service
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("passphrase required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	logger := cfg.Logger()
	st, err := store.Open(cfg.StorePath, cfg.Passphrase, logger)
	if err != nil {
		return nil, err
	}

	return &Wire{
		Store:  st,
		Gossip: gossipsvc.New(st, st, st, st, logger),
		Backup: backupsvc.New(st, logger),
	}, nil
}

// Close releases the store and everything built on it.
func (w *Wire) Close() error {
	return w.Store.Close()
}
