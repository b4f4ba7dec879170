package store

import (
	"database/sql"
	"fmt"
	"time"

	"keyvault/internal/domain"
)

// StoreSession upserts a pairwise session by (sessionID, deviceKey).
func (s *Store) StoreSession(sess domain.PairwiseSession) error {
	if sess.CreatedUTC == 0 {
		sess.CreatedUTC = time.Now().Unix()
	}
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO pairwise_sessions (session_id, device_key, pickle, last_received_at, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id, device_key) DO UPDATE SET
				pickle = excluded.pickle,
				last_received_at = excluded.last_received_at
		`, sess.SessionID, sess.DeviceKey, sess.Pickle, sess.LastReceivedUTC, sess.CreatedUTC)
		if err != nil {
			return fmt.Errorf("store pairwise session: %w", err)
		}
		return nil
	})
}

// Session looks up one pairwise session.
func (s *Store) Session(sessionID, deviceKey string) (domain.PairwiseSession, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.PairwiseSession{}, false, err
	}
	defer release()

	sess, err := scanPairwise(s.db.QueryRow(`
		SELECT session_id, device_key, pickle, last_received_at, created_at
		FROM pairwise_sessions
		WHERE session_id = ? AND device_key = ?
	`, sessionID, deviceKey))
	if err == sql.ErrNoRows {
		return domain.PairwiseSession{}, false, nil
	}
	if err != nil {
		return domain.PairwiseSession{}, false, fmt.Errorf("load pairwise session: %w", err)
	}
	return sess, true, nil
}

// SessionIDs returns all known session ids for deviceKey; empty when the
// device is unknown.
func (s *Store) SessionIDs(deviceKey string) ([]string, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.Query(`
		SELECT session_id FROM pairwise_sessions
		WHERE device_key = ?
		ORDER BY created_at ASC, session_id ASC
	`, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastUsedSession returns the session with the newest received message.
// Equal timestamps resolve to the earliest-created session, ties broken by
// session id for determinism.
func (s *Store) LastUsedSession(deviceKey string) (domain.PairwiseSession, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.PairwiseSession{}, false, err
	}
	defer release()

	sess, err := scanPairwise(s.db.QueryRow(`
		SELECT session_id, device_key, pickle, last_received_at, created_at
		FROM pairwise_sessions
		WHERE device_key = ?
		ORDER BY last_received_at DESC, created_at ASC, session_id ASC
		LIMIT 1
	`, deviceKey))
	if err == sql.ErrNoRows {
		return domain.PairwiseSession{}, false, nil
	}
	if err != nil {
		return domain.PairwiseSession{}, false, fmt.Errorf("load last used session: %w", err)
	}
	return sess, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPairwise(row rowScanner) (domain.PairwiseSession, error) {
	var sess domain.PairwiseSession
	err := row.Scan(&sess.SessionID, &sess.DeviceKey, &sess.Pickle, &sess.LastReceivedUTC, &sess.CreatedUTC)
	return sess, err
}

var _ domain.PairwiseSessionStore = (*Store)(nil)
