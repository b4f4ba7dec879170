package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"keyvault/internal/domain"
)

const policyKeyBackupVersion = "backup_version"

// StoreInboundSessions upserts a batch of inbound group sessions in one
// transaction; readers never observe a partial batch.
//
// Merge rule on conflict: the copy granting the most history (lowest
// FirstKnownIndex) wins and its backup flag resets, since the current backup
// no longer covers the full session. Equal or higher index keeps the
// existing entry untouched, backup flag included.
func (s *Store) StoreInboundSessions(sessions []domain.InboundGroupSession) error {
	return s.writeTx(func(tx *sql.Tx) error {
		for _, sess := range sessions {
			if sess.CreatedUTC == 0 {
				sess.CreatedUTC = time.Now().Unix()
			}
			chains, err := encodeChains(sess.ForwardingChain)
			if err != nil {
				return err
			}

			var existingIndex int64
			err = tx.QueryRow(`
				SELECT first_known_index FROM inbound_group_sessions
				WHERE session_id = ? AND sender_key = ?
			`, sess.SessionID, sess.SenderKey).Scan(&existingIndex)
			switch {
			case err == sql.ErrNoRows:
				_, err = tx.Exec(`
					INSERT INTO inbound_group_sessions
						(session_id, sender_key, room_id, shared_history, backed_up,
						 first_known_index, pickle, chains, created_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, sess.SessionID, sess.SenderKey, sess.RoomID,
					boolToInt(sess.SharedHistory), boolToInt(sess.BackedUp),
					sess.FirstKnownIndex, sess.Pickle, chains, sess.CreatedUTC)
				if err != nil {
					return fmt.Errorf("insert inbound session: %w", err)
				}
			case err != nil:
				return fmt.Errorf("probe inbound session: %w", err)
			case sess.FirstKnownIndex < existingIndex:
				// Keeps the original rowid so backup ordering is stable.
				_, err = tx.Exec(`
					UPDATE inbound_group_sessions
					SET room_id = ?, shared_history = ?, backed_up = 0,
						first_known_index = ?, pickle = ?, chains = ?
					WHERE session_id = ? AND sender_key = ?
				`, sess.RoomID, boolToInt(sess.SharedHistory),
					sess.FirstKnownIndex, sess.Pickle, chains,
					sess.SessionID, sess.SenderKey)
				if err != nil {
					return fmt.Errorf("replace inbound session: %w", err)
				}
			}
		}
		return nil
	})
}

// InboundSession looks up by (sessionID, senderKey). When sharedHistoryOnly
// is non-nil and true, sessions not flagged shared-history report not found;
// this honors restricted history disclosure to newly invited members.
func (s *Store) InboundSession(sessionID, senderKey string, sharedHistoryOnly *bool) (domain.InboundGroupSession, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.InboundGroupSession{}, false, err
	}
	defer release()

	sess, err := scanInbound(s.db.QueryRow(`
		SELECT session_id, sender_key, room_id, shared_history, backed_up,
			first_known_index, pickle, chains, created_at
		FROM inbound_group_sessions
		WHERE session_id = ? AND sender_key = ?
	`, sessionID, senderKey))
	if err == sql.ErrNoRows {
		return domain.InboundGroupSession{}, false, nil
	}
	if err != nil {
		return domain.InboundGroupSession{}, false, fmt.Errorf("load inbound session: %w", err)
	}
	if sharedHistoryOnly != nil && *sharedHistoryOnly && !sess.SharedHistory {
		return domain.InboundGroupSession{}, false, nil
	}
	return sess, true, nil
}

// InboundSessionsByRoom lists the room's inbound sessions in creation order.
func (s *Store) InboundSessionsByRoom(roomID string) ([]domain.InboundGroupSession, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.queryInbound(`
		SELECT session_id, sender_key, room_id, shared_history, backed_up,
			first_known_index, pickle, chains, created_at
		FROM inbound_group_sessions
		WHERE room_id = ?
		ORDER BY rowid ASC
	`, roomID)
}

// RemoveInboundSession deletes one inbound session; removing an absent
// session is a no-op.
func (s *Store) RemoveInboundSession(sessionID, senderKey string) error {
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			DELETE FROM inbound_group_sessions
			WHERE session_id = ? AND sender_key = ?
		`, sessionID, senderKey)
		if err != nil {
			return fmt.Errorf("remove inbound session: %w", err)
		}
		return nil
	})
}

// ResetBackupMarkers clears every backed-up flag, used when the backup
// version changes.
func (s *Store) ResetBackupMarkers() error {
	return s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE inbound_group_sessions SET backed_up = 0`); err != nil {
			return fmt.Errorf("reset backup markers: %w", err)
		}
		return nil
	})
}

// MarkBackedUp flags the given sessions as present in the current backup.
func (s *Store) MarkBackedUp(keys []domain.SessionKeyRef) error {
	return s.writeTx(func(tx *sql.Tx) error {
		for _, k := range keys {
			_, err := tx.Exec(`
				UPDATE inbound_group_sessions SET backed_up = 1
				WHERE session_id = ? AND sender_key = ?
			`, k.SessionID, k.SenderKey)
			if err != nil {
				return fmt.Errorf("mark backed up: %w", err)
			}
		}
		return nil
	})
}

// ToBackup returns up to limit sessions not yet backed up, in stable
// creation order so repeated batches make progress.
func (s *Store) ToBackup(limit int) ([]domain.InboundGroupSession, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.queryInbound(`
		SELECT session_id, sender_key, room_id, shared_history, backed_up,
			first_known_index, pickle, chains, created_at
		FROM inbound_group_sessions
		WHERE backed_up = 0
		ORDER BY rowid ASC
		LIMIT ?
	`, limit)
}

// CountInbound counts inbound sessions, optionally only backed-up ones.
func (s *Store) CountInbound(onlyBackedUp bool) (int, error) {
	release, err := s.read()
	if err != nil {
		return 0, err
	}
	defer release()

	q := `SELECT COUNT(*) FROM inbound_group_sessions`
	if onlyBackedUp {
		q += ` WHERE backed_up = 1`
	}
	var n int
	if err := s.db.QueryRow(q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count inbound sessions: %w", err)
	}
	return n, nil
}

// BackupVersion returns the recorded key backup version, empty when none.
func (s *Store) BackupVersion() (string, error) {
	release, err := s.read()
	if err != nil {
		return "", err
	}
	defer release()

	var v string
	err = s.db.QueryRow(`SELECT value FROM policy WHERE key = ?`, policyKeyBackupVersion).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load backup version: %w", err)
	}
	return v, nil
}

// SetBackupVersion records the current key backup version.
func (s *Store) SetBackupVersion(version string) error {
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO policy (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, policyKeyBackupVersion, version)
		if err != nil {
			return fmt.Errorf("set backup version: %w", err)
		}
		return nil
	})
}

// CurrentOutboundSession returns the room's outbound session.
func (s *Store) CurrentOutboundSession(roomID string) (domain.OutboundGroupSession, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.OutboundGroupSession{}, false, err
	}
	defer release()

	var sess domain.OutboundGroupSession
	err = s.db.QueryRow(`
		SELECT room_id, session_id, pickle, created_at
		FROM outbound_group_sessions WHERE room_id = ?
	`, roomID).Scan(&sess.RoomID, &sess.SessionID, &sess.Pickle, &sess.CreatedUTC)
	if err == sql.ErrNoRows {
		return domain.OutboundGroupSession{}, false, nil
	}
	if err != nil {
		return domain.OutboundGroupSession{}, false, fmt.Errorf("load outbound session: %w", err)
	}
	return sess, true, nil
}

// StoreOutboundSession replaces the room's outbound session and resets its
// shared-with set: the new session has been shared with nobody yet.
func (s *Store) StoreOutboundSession(sess domain.OutboundGroupSession) error {
	if sess.CreatedUTC == 0 {
		sess.CreatedUTC = time.Now().Unix()
	}
	return s.writeTx(func(tx *sql.Tx) error {
		var prevID string
		err := tx.QueryRow(`
			SELECT session_id FROM outbound_group_sessions WHERE room_id = ?
		`, sess.RoomID).Scan(&prevID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("probe outbound session: %w", err)
		}
		if err == nil && prevID != sess.SessionID {
			_, err = tx.Exec(`
				DELETE FROM shared_sessions WHERE room_id = ? AND session_id = ?
			`, sess.RoomID, prevID)
			if err != nil {
				return fmt.Errorf("clear shared-with set: %w", err)
			}
		}
		_, err = tx.Exec(`
			INSERT INTO outbound_group_sessions (room_id, session_id, pickle, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(room_id) DO UPDATE SET
				session_id = excluded.session_id,
				pickle = excluded.pickle,
				created_at = excluded.created_at
		`, sess.RoomID, sess.SessionID, sess.Pickle, sess.CreatedUTC)
		if err != nil {
			return fmt.Errorf("store outbound session: %w", err)
		}
		return nil
	})
}

// MarkShared records that a group session was shared with a device at a
// ratchet position.
func (s *Store) MarkShared(rec domain.SharedSessionRecord) error {
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO shared_sessions (room_id, session_id, user_id, device_id, device_key, chain_index)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(room_id, session_id, user_id, device_id) DO UPDATE SET
				device_key = excluded.device_key,
				chain_index = excluded.chain_index
		`, rec.RoomID, rec.SessionID, rec.UserID, rec.DeviceID, rec.DeviceKey, rec.ChainIndex)
		if err != nil {
			return fmt.Errorf("mark shared: %w", err)
		}
		return nil
	})
}

// SharedInfo reports whether the session was shared with the device and at
// which chain index; found=false means the index is meaningless.
func (s *Store) SharedInfo(roomID, sessionID, userID, deviceID string) (int64, bool, error) {
	release, err := s.read()
	if err != nil {
		return 0, false, err
	}
	defer release()

	var idx int64
	err = s.db.QueryRow(`
		SELECT chain_index FROM shared_sessions
		WHERE room_id = ? AND session_id = ? AND user_id = ? AND device_id = ?
	`, roomID, sessionID, userID, deviceID).Scan(&idx)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load shared info: %w", err)
	}
	return idx, true, nil
}

// SharedWith aggregates the shared-with set per user. When a user received
// the session on several devices, the lowest chain index wins.
func (s *Store) SharedWith(roomID, sessionID string) (map[string]int64, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.Query(`
		SELECT user_id, MIN(chain_index) FROM shared_sessions
		WHERE room_id = ? AND session_id = ?
		GROUP BY user_id
	`, roomID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load shared-with set: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			user string
			idx  int64
		)
		if err := rows.Scan(&user, &idx); err != nil {
			return nil, fmt.Errorf("scan shared-with row: %w", err)
		}
		out[user] = idx
	}
	return out, rows.Err()
}

func (s *Store) queryInbound(q string, args ...any) ([]domain.InboundGroupSession, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query inbound sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundGroupSession
	for rows.Next() {
		sess, err := scanInbound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inbound session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanInbound(row rowScanner) (domain.InboundGroupSession, error) {
	var sess domain.InboundGroupSession
	var sharedHist, backedUp int
	var chains []byte
	err := row.Scan(&sess.SessionID, &sess.SenderKey, &sess.RoomID, &sharedHist,
		&backedUp, &sess.FirstKnownIndex, &sess.Pickle, &chains, &sess.CreatedUTC)
	if err != nil {
		return domain.InboundGroupSession{}, err
	}
	sess.SharedHistory = sharedHist == 1
	sess.BackedUp = backedUp == 1
	if len(chains) > 0 {
		if err := cbor.Unmarshal(chains, &sess.ForwardingChain); err != nil {
			return domain.InboundGroupSession{}, fmt.Errorf("decode forwarding chain: %w", err)
		}
	}
	return sess, nil
}

func encodeChains(chain []string) ([]byte, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	b, err := cbor.Marshal(chain)
	if err != nil {
		return nil, fmt.Errorf("encode forwarding chain: %w", err)
	}
	return b, nil
}

var _ domain.GroupSessionStore = (*Store)(nil)
