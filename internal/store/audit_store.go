package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"keyvault/internal/domain"
)

// SaveOutgoingRequest appends an OUTGOING_REQUEST entry for req.
func (s *Store) SaveOutgoingRequest(req domain.OutgoingKeyRequest) error {
	detail, _ := json.Marshal(map[string]any{
		"recipients": req.Recipients,
		"from_index": req.FromIndex,
	})
	return s.appendAudit(domain.AuditEntry{
		Kind:      domain.AuditOutgoingRequest,
		RoomID:    req.Body.RoomID,
		SessionID: req.Body.SessionID,
		SenderKey: req.Body.SenderKey,
		Algorithm: req.Body.Algorithm,
		RequestID: req.RequestID,
		Detail:    string(detail),
	})
}

// SaveIncomingRequest appends an INCOMING_REQUEST entry for a request
// received from another device.
func (s *Store) SaveIncomingRequest(requestID, userID, deviceID string, body domain.RequestBody) error {
	return s.appendAudit(domain.AuditEntry{
		Kind:      domain.AuditIncomingRequest,
		RoomID:    body.RoomID,
		SessionID: body.SessionID,
		SenderKey: body.SenderKey,
		Algorithm: body.Algorithm,
		UserID:    userID,
		DeviceID:  deviceID,
		RequestID: requestID,
	})
}

// SaveWithheld appends a WITHHELD entry.
func (s *Store) SaveWithheld(rec domain.WithheldRecord, userID, deviceID string) error {
	return s.appendAudit(domain.AuditEntry{
		Kind:      domain.AuditWithheld,
		RoomID:    rec.RoomID,
		SessionID: rec.SessionID,
		SenderKey: rec.SenderKey,
		UserID:    userID,
		DeviceID:  deviceID,
		Detail:    rec.Code,
	})
}

// SaveOutgoingForward appends an OUTGOING_FORWARD entry for a key shared
// with another device.
func (s *Store) SaveOutgoingForward(body domain.RequestBody, userID, deviceID string, chainIndex int64) error {
	return s.appendAudit(domain.AuditEntry{
		Kind:      domain.AuditOutgoingForward,
		RoomID:    body.RoomID,
		SessionID: body.SessionID,
		SenderKey: body.SenderKey,
		Algorithm: body.Algorithm,
		UserID:    userID,
		DeviceID:  deviceID,
		Detail:    strconv.FormatInt(chainIndex, 10),
	})
}

// SaveIncomingForward appends an INCOMING_FORWARD entry for a forwarded key
// we received.
func (s *Store) SaveIncomingForward(body domain.RequestBody, fromDevice, requestID string) error {
	return s.appendAudit(domain.AuditEntry{
		Kind:      domain.AuditIncomingForward,
		RoomID:    body.RoomID,
		SessionID: body.SessionID,
		SenderKey: body.SenderKey,
		Algorithm: body.Algorithm,
		DeviceID:  fromDevice,
		RequestID: requestID,
	})
}

// PageAudit lists entries newest-first with a restartable cursor. An empty
// kinds slice matches every kind.
func (s *Store) PageAudit(kinds []domain.AuditKind, cursor domain.Cursor, limit int) ([]domain.AuditEntry, domain.Cursor, error) {
	release, err := s.read()
	if err != nil {
		return nil, 0, err
	}
	defer release()

	after := int64(cursor)
	if after <= 0 {
		after = math.MaxInt64
	}
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT rowid, entry_id, kind, room_id, session_id, sender_key, algorithm,
			user_id, device_id, request_id, detail, created_at
		FROM gossip_audit
		WHERE rowid < ?`
	args := []any{after}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		q += ` AND kind IN (` + strings.Join(placeholders, ",") + `)`
	}
	q += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("page audit trail: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	var last int64
	for rows.Next() {
		var rowid int64
		var e domain.AuditEntry
		var kind string
		err := rows.Scan(&rowid, &e.EntryID, &kind, &e.RoomID, &e.SessionID,
			&e.SenderKey, &e.Algorithm, &e.UserID, &e.DeviceID, &e.RequestID,
			&e.Detail, &e.CreatedUTC)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Kind = domain.AuditKind(kind)
		out = append(out, e)
		last = rowid
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) < limit {
		return out, 0, nil
	}
	return out, domain.Cursor(last), nil
}

// WatchAudit emits the newest page of matching entries on each append.
func (s *Store) WatchAudit(kinds []domain.AuditKind, limit int) *Subscription[[]domain.AuditEntry] {
	return watch(s, []string{topicAudit}, func() ([]domain.AuditEntry, error) {
		page, _, err := s.PageAudit(kinds, 0, limit)
		return page, err
	})
}

func (s *Store) appendAudit(e domain.AuditEntry) error {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	if e.CreatedUTC == 0 {
		e.CreatedUTC = time.Now().Unix()
	}
	err := s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO gossip_audit
				(entry_id, kind, room_id, session_id, sender_key, algorithm,
				 user_id, device_id, request_id, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.EntryID, string(e.Kind), e.RoomID, e.SessionID, e.SenderKey,
			e.Algorithm, e.UserID, e.DeviceID, e.RequestID, e.Detail, e.CreatedUTC)
		if err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		return nil
	}, topicAudit)
	if err != nil {
		// The audit trail is advisory: report the failure to the caller but
		// log here so a dropped entry is visible even when callers ignore it.
		s.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("Audit write failed")
	}
	return err
}

var _ domain.AuditTrail = (*Store)(nil)
