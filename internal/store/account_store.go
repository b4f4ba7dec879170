package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"keyvault/internal/domain"
	"keyvault/internal/util/memzero"
)

// accountRecord is the CBOR interior of the sealed account blob.
type accountRecord struct {
	Pickle []byte `cbor:"1,keyasint"`
}

// GetOrCreateAccount returns the stored account or creates one exactly once
// per store lifetime using generate.
func (s *Store) GetOrCreateAccount(generate func() (domain.Account, error)) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return domain.Account{}, err
	}

	acc, found, err := s.loadAccount()
	if err != nil {
		return domain.Account{}, err
	}
	if found {
		return acc, nil
	}

	acc, err = generate()
	if err != nil {
		return domain.Account{}, fmt.Errorf("generate account: %w", err)
	}
	if acc.CreatedUTC == 0 {
		acc.CreatedUTC = time.Now().Unix()
	}

	blob, err := s.sealAccount(acc)
	if err != nil {
		return domain.Account{}, err
	}
	_, err = s.db.Exec(`
		INSERT INTO account (id, device_id, identity_key, signing_key, blob, uploaded_key_count, created_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
	`, acc.DeviceID, acc.IdentityKey, acc.SigningKey, blob, acc.UploadedKeyCount, acc.CreatedUTC)
	if err != nil {
		return domain.Account{}, fmt.Errorf("store account: %w", err)
	}
	return acc, nil
}

// AcquireAccount grants exclusive mutable access to the account. It blocks
// until the previous guard releases or ctx ends.
func (s *Store) AcquireAccount(ctx context.Context) (domain.AccountGuard, error) {
	s.mu.RLock()
	if err := s.checkOpen(); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	s.mu.RUnlock()

	select {
	case s.accountSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		<-s.accountSem
		return nil, err
	}

	acc, found, err := s.loadAccount()
	if err != nil {
		<-s.accountSem
		return nil, err
	}
	if !found {
		<-s.accountSem
		return nil, ErrNoAccount
	}

	g := &accountGuard{store: s, acc: acc}
	g.release = sync.OnceFunc(func() {
		memzero.Zero(g.acc.Pickle)
		<-s.accountSem
	})
	return g, nil
}

type accountGuard struct {
	store   *Store
	acc     domain.Account
	release func()
}

func (g *accountGuard) Account() *domain.Account { return &g.acc }

func (g *accountGuard) Save() error {
	s := g.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	blob, err := s.sealAccount(g.acc)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE account
		SET device_id = ?, identity_key = ?, signing_key = ?, blob = ?, uploaded_key_count = ?
		WHERE id = 1
	`, g.acc.DeviceID, g.acc.IdentityKey, g.acc.SigningKey, blob, g.acc.UploadedKeyCount)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (g *accountGuard) Release() { g.release() }

// loadAccount is called with at least the reader lock held.
func (s *Store) loadAccount() (domain.Account, bool, error) {
	var (
		acc  domain.Account
		blob []byte
	)
	err := s.db.QueryRow(`
		SELECT device_id, identity_key, signing_key, blob, uploaded_key_count, created_at
		FROM account WHERE id = 1
	`).Scan(&acc.DeviceID, &acc.IdentityKey, &acc.SigningKey, &blob,
		&acc.UploadedKeyCount, &acc.CreatedUTC)
	if err == sql.ErrNoRows {
		return domain.Account{}, false, nil
	}
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("load account: %w", err)
	}

	raw, err := s.box.Open(blob)
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("unseal account: %w", err)
	}
	defer memzero.Zero(raw)

	var rec accountRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return domain.Account{}, false, fmt.Errorf("%w: decode account record: %v", ErrStoreCorrupt, err)
	}
	acc.Pickle = rec.Pickle
	return acc, true, nil
}

// MarkKeysPublished records how many one-time keys the server holds. The
// count lives outside the sealed blob so it can change without resealing.
func (s *Store) MarkKeysPublished(count int) error {
	return s.writeTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE account SET uploaded_key_count = ? WHERE id = 1`, count)
		if err != nil {
			return fmt.Errorf("mark keys published: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoAccount
		}
		return nil
	})
}

// OneTimeKeyCount reports the server-side one-time key count.
func (s *Store) OneTimeKeyCount() (int, error) {
	release, err := s.read()
	if err != nil {
		return 0, err
	}
	defer release()

	var n int
	err = s.db.QueryRow(`SELECT uploaded_key_count FROM account WHERE id = 1`).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, ErrNoAccount
	}
	if err != nil {
		return 0, fmt.Errorf("load key count: %w", err)
	}
	return n, nil
}

func (s *Store) sealAccount(acc domain.Account) ([]byte, error) {
	raw, err := cbor.Marshal(accountRecord{Pickle: acc.Pickle})
	if err != nil {
		return nil, fmt.Errorf("encode account record: %w", err)
	}
	defer memzero.Zero(raw)

	blob, err := s.box.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("seal account: %w", err)
	}
	return blob, nil
}

var _ domain.AccountStore = (*Store)(nil)
