package store

import (
	"database/sql"
	"fmt"
	"time"

	"keyvault/internal/domain"
)

// AddWithheld upserts a withheld notice by (roomID, sessionID).
func (s *Store) AddWithheld(rec domain.WithheldRecord) error {
	if rec.CreatedUTC == 0 {
		rec.CreatedUTC = time.Now().Unix()
	}
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO withheld (room_id, session_id, sender_key, code, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(room_id, session_id) DO UPDATE SET
				sender_key = excluded.sender_key,
				code = excluded.code,
				reason = excluded.reason,
				created_at = excluded.created_at
		`, rec.RoomID, rec.SessionID, rec.SenderKey, rec.Code, rec.Reason, rec.CreatedUTC)
		if err != nil {
			return fmt.Errorf("store withheld record: %w", err)
		}
		return nil
	})
}

// Withheld returns the stored reason for (roomID, sessionID), if any.
func (s *Store) Withheld(roomID, sessionID string) (domain.WithheldRecord, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.WithheldRecord{}, false, err
	}
	defer release()

	var rec domain.WithheldRecord
	err = s.db.QueryRow(`
		SELECT room_id, session_id, sender_key, code, reason, created_at
		FROM withheld WHERE room_id = ? AND session_id = ?
	`, roomID, sessionID).Scan(&rec.RoomID, &rec.SessionID, &rec.SenderKey,
		&rec.Code, &rec.Reason, &rec.CreatedUTC)
	if err == sql.ErrNoRows {
		return domain.WithheldRecord{}, false, nil
	}
	if err != nil {
		return domain.WithheldRecord{}, false, fmt.Errorf("load withheld record: %w", err)
	}
	return rec, true, nil
}

var _ domain.WithheldStore = (*Store)(nil)
