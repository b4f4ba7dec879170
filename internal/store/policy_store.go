package store

import (
	"database/sql"
	"errors"
	"fmt"

	"keyvault/internal/domain"
)

// Global policy keys in the policy table. Absent rows mean the default.
const (
	policyKeyBlacklistUnverified = "blacklist_unverified_devices"
	policyKeyGossipingEnabled    = "key_gossiping_enabled"
	policyKeyShareOnInvite       = "share_keys_on_invite"
)

// roomPolicyPatch buffers the sync-derived flags of one room inside an open
// sync bracket. Nil fields were not touched in this bracket.
type roomPolicyPatch struct {
	encryptForInvited *bool
	shareHistory      *bool
}

// GlobalPolicy returns the device-wide flags, applying defaults for flags
// never set: gossiping on, share-on-invite off, blacklist off.
func (s *Store) GlobalPolicy() (domain.GlobalPolicy, error) {
	release, err := s.read()
	if err != nil {
		return domain.GlobalPolicy{}, err
	}
	defer release()

	p := domain.GlobalPolicy{KeyGossipingEnabled: true}

	rows, err := s.db.Query(`SELECT key, value FROM policy WHERE key IN (?, ?, ?)`,
		policyKeyBlacklistUnverified, policyKeyGossipingEnabled, policyKeyShareOnInvite)
	if err != nil {
		return domain.GlobalPolicy{}, fmt.Errorf("load global policy: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.GlobalPolicy{}, fmt.Errorf("scan global policy: %w", err)
		}
		v := value == "1"
		switch key {
		case policyKeyBlacklistUnverified:
			p.BlacklistUnverifiedDevices = v
		case policyKeyGossipingEnabled:
			p.KeyGossipingEnabled = v
		case policyKeyShareOnInvite:
			p.ShareKeysOnInvite = v
		}
	}
	return p, rows.Err()
}

func (s *Store) SetGlobalBlacklistUnverifiedDevices(v bool) error {
	return s.setPolicyFlag(policyKeyBlacklistUnverified, v)
}

func (s *Store) SetKeyGossipingEnabled(v bool) error {
	return s.setPolicyFlag(policyKeyGossipingEnabled, v)
}

func (s *Store) SetShareKeysOnInvite(v bool) error {
	return s.setPolicyFlag(policyKeyShareOnInvite, v)
}

func (s *Store) setPolicyFlag(key string, v bool) error {
	value := "0"
	if v {
		value = "1"
	}
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO policy (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("set policy flag %s: %w", key, err)
		}
		return nil
	})
}

// RoomPolicy returns roomID's committed flags; all false for an unknown room.
func (s *Store) RoomPolicy(roomID string) (domain.RoomPolicy, error) {
	release, err := s.read()
	if err != nil {
		return domain.RoomPolicy{}, err
	}
	defer release()
	return s.roomPolicyLocked(roomID)
}

func (s *Store) roomPolicyLocked(roomID string) (domain.RoomPolicy, error) {
	p := domain.RoomPolicy{RoomID: roomID}
	var block, invited, history int
	err := s.db.QueryRow(`
		SELECT block_unverified, encrypt_for_invited, share_history
		FROM room_policy WHERE room_id = ?
	`, roomID).Scan(&block, &invited, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return domain.RoomPolicy{}, fmt.Errorf("load room policy: %w", err)
	}
	p.BlockUnverifiedDevices = block != 0
	p.EncryptForInvitedMembers = invited != 0
	p.ShareHistory = history != 0
	return p, nil
}

// SetRoomBlockUnverifiedDevices is a user action, not sync-derived, so it
// always commits immediately even inside a bracket.
func (s *Store) SetRoomBlockUnverifiedDevices(roomID string, v bool) error {
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO room_policy (room_id, block_unverified) VALUES (?, ?)
			ON CONFLICT (room_id) DO UPDATE SET block_unverified = excluded.block_unverified
		`, roomID, boolToInt(v))
		if err != nil {
			return fmt.Errorf("set room block unverified: %w", err)
		}
		return nil
	}, topicRoomPolicy+roomID)
}

// SetShouldEncryptForInvitedMembers records the flag. Inside an open sync
// bracket the value buffers until EndBatch.
func (s *Store) SetShouldEncryptForInvitedMembers(roomID string, v bool) error {
	if s.bufferPatch(roomID, func(p *roomPolicyPatch) { p.encryptForInvited = &v }) {
		return nil
	}
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO room_policy (room_id, encrypt_for_invited) VALUES (?, ?)
			ON CONFLICT (room_id) DO UPDATE SET encrypt_for_invited = excluded.encrypt_for_invited
		`, roomID, boolToInt(v))
		if err != nil {
			return fmt.Errorf("set encrypt for invited: %w", err)
		}
		return nil
	}, topicRoomPolicy+roomID)
}

// SetShouldShareHistory records the flag. Inside an open sync bracket the
// value buffers until EndBatch.
func (s *Store) SetShouldShareHistory(roomID string, v bool) error {
	if s.bufferPatch(roomID, func(p *roomPolicyPatch) { p.shareHistory = &v }) {
		return nil
	}
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO room_policy (room_id, share_history) VALUES (?, ?)
			ON CONFLICT (room_id) DO UPDATE SET share_history = excluded.share_history
		`, roomID, boolToInt(v))
		if err != nil {
			return fmt.Errorf("set share history: %w", err)
		}
		return nil
	}, topicRoomPolicy+roomID)
}

// ShouldEncryptForInvitedMembers reads the committed value; a buffered patch
// is invisible until its bracket ends.
func (s *Store) ShouldEncryptForInvitedMembers(roomID string) (bool, error) {
	p, err := s.RoomPolicy(roomID)
	return p.EncryptForInvitedMembers, err
}

// ShouldShareHistory reads the committed value.
func (s *Store) ShouldShareHistory(roomID string) (bool, error) {
	p, err := s.RoomPolicy(roomID)
	return p.ShareHistory, err
}

// BeginBatch opens a sync bracket. Sync-derived room policy writes buffer in
// memory until EndBatch commits them in one transaction. Nested calls extend
// the same bracket. On a closed store no bracket opens and the setters fail
// with ErrClosed.
func (s *Store) BeginBatch() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.batchMu.Lock()
	if s.batch == nil {
		s.batch = make(map[string]roomPolicyPatch)
	}
	s.batchMu.Unlock()
}

// EndBatch commits every buffered patch atomically and closes the bracket.
// Without a prior BeginBatch it is a no-op. On commit failure the bracket is
// closed and the buffered patches are dropped.
func (s *Store) EndBatch() error {
	s.batchMu.Lock()
	patches := s.batch
	s.batch = nil
	s.batchMu.Unlock()
	if len(patches) == 0 {
		return nil
	}

	topics := make([]string, 0, len(patches))
	for roomID := range patches {
		topics = append(topics, topicRoomPolicy+roomID)
	}

	return s.writeTx(func(tx *sql.Tx) error {
		for roomID, p := range patches {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO room_policy (room_id) VALUES (?)`, roomID); err != nil {
				return fmt.Errorf("commit policy batch: %w", err)
			}
			if p.encryptForInvited != nil {
				_, err := tx.Exec(`UPDATE room_policy SET encrypt_for_invited = ? WHERE room_id = ?`,
					boolToInt(*p.encryptForInvited), roomID)
				if err != nil {
					return fmt.Errorf("commit policy batch: %w", err)
				}
			}
			if p.shareHistory != nil {
				_, err := tx.Exec(`UPDATE room_policy SET share_history = ? WHERE room_id = ?`,
					boolToInt(*p.shareHistory), roomID)
				if err != nil {
					return fmt.Errorf("commit policy batch: %w", err)
				}
			}
		}
		return nil
	}, topics...)
}

// bufferPatch applies apply to roomID's pending patch when a bracket is open
// and reports whether it did.
func (s *Store) bufferPatch(roomID string, apply func(*roomPolicyPatch)) bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if s.batch == nil {
		return false
	}
	p := s.batch[roomID]
	apply(&p)
	s.batch[roomID] = p
	return true
}

// WatchRoomPolicy emits roomID's policy after each committed change.
func (s *Store) WatchRoomPolicy(roomID string) *Subscription[domain.RoomPolicy] {
	return watch(s, []string{topicRoomPolicy + roomID}, func() (domain.RoomPolicy, error) {
		return s.RoomPolicy(roomID)
	})
}

var _ domain.PolicyStore = (*Store)(nil)
