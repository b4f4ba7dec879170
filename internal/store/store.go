package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"keyvault/internal/cryptobox"
)

// Store is the durable key-material and session-state store. One Store maps
// to one SQLite database file.
type Store struct {
	db  *sql.DB
	box *cryptobox.Box
	log zerolog.Logger

	mu     sync.RWMutex
	closed bool

	hub *hub

	// accountSem serializes exclusive account access; capacity 1.
	accountSem chan struct{}

	batchMu sync.Mutex
	// batch buffers room policy patches while a sync bracket is open;
	// nil when no bracket is open.
	batch map[string]roomPolicyPatch
}

// Open opens or creates the store at path. The passphrase seals the account
// blob at rest. Opening a database that cannot be deserialized fails with
// ErrStoreCorrupt and leaves nothing half-open.
func Open(path, passphrase string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: set pragma %q: %v", ErrStoreCorrupt, pragma, err)
		}
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		db.Close()
		return nil, fmt.Errorf("%w: integrity check failed: %v", ErrStoreCorrupt, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", ErrStoreCorrupt, err)
	}

	s := &Store{
		db:         db,
		box:        cryptobox.New(passphrase),
		log:        logger.With().Str("component", "store").Logger(),
		hub:        newHub(),
		accountSem: make(chan struct{}, 1),
	}
	return s, nil
}

// Close releases all resources. Idempotent; subsequent operations fail fast
// with ErrClosed. Any open sync bracket is discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.batchMu.Lock()
	s.batch = nil
	s.batchMu.Unlock()

	s.hub.closeAll()
	return s.db.Close()
}

// DeleteStore removes the database at path, including WAL side files.
// Safe on a never-opened store.
func DeleteStore(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete store: %w", err)
		}
	}
	return nil
}

// checkOpen is called by readers holding mu.RLock or writers holding mu.Lock.
func (s *Store) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// writeTx runs fn inside one transaction under the writer lock and notifies
// topics only after a successful commit.
func (s *Store) writeTx(fn func(tx *sql.Tx) error, topics ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.hub.notify(topics...)
	return nil
}

// read acquires the reader lock and checks liveness; the caller must invoke
// the returned release func.
func (s *Store) read() (release func(), err error) {
	s.mu.RLock()
	if err := s.checkOpen(); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	return s.mu.RUnlock, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
