package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"keyvault/internal/domain"
)

// GetOrAddRequest finds the non-deleted request for body or creates one.
//
// A cancelled request is reactivated to CREATED with the new recipients and
// fromIndex; this is the only backward transition in the state machine. An
// active request widens instead: fromIndex drops to the minimum and
// recipients are unioned, never narrowed.
func (s *Store) GetOrAddRequest(body domain.RequestBody, recipients map[string][]string, fromIndex int64) (domain.OutgoingKeyRequest, error) {
	var out domain.OutgoingKeyRequest
	err := s.writeTx(func(tx *sql.Tx) error {
		existing, found, err := requestByBodyTx(tx, body)
		if err != nil {
			return err
		}

		switch {
		case !found:
			out = domain.OutgoingKeyRequest{
				RequestID:  uuid.NewString(),
				Body:       body,
				Recipients: copyRecipients(recipients),
				FromIndex:  fromIndex,
				State:      domain.RequestCreated,
				CreatedUTC: time.Now().Unix(),
			}
			rec, err := json.Marshal(out.Recipients)
			if err != nil {
				return fmt.Errorf("encode recipients: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO outgoing_key_requests
					(request_id, room_id, session_id, algorithm, sender_key,
					 recipients, from_index, state, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, out.RequestID, body.RoomID, body.SessionID, body.Algorithm,
				body.SenderKey, rec, out.FromIndex, int(out.State), out.CreatedUTC)
			if err != nil {
				return fmt.Errorf("insert request: %w", err)
			}

		case existing.State == domain.RequestCancelled:
			out = existing
			out.State = domain.RequestCreated
			out.Recipients = copyRecipients(recipients)
			out.FromIndex = fromIndex
			rec, err := json.Marshal(out.Recipients)
			if err != nil {
				return fmt.Errorf("encode recipients: %w", err)
			}
			_, err = tx.Exec(`
				UPDATE outgoing_key_requests
				SET state = ?, recipients = ?, from_index = ?
				WHERE request_id = ?
			`, int(domain.RequestCreated), rec, fromIndex, out.RequestID)
			if err != nil {
				return fmt.Errorf("reactivate request: %w", err)
			}

		default:
			out = existing
			if fromIndex < out.FromIndex {
				out.FromIndex = fromIndex
			}
			out.Recipients = unionRecipients(existing.Recipients, recipients)
			rec, err := json.Marshal(out.Recipients)
			if err != nil {
				return fmt.Errorf("encode recipients: %w", err)
			}
			_, err = tx.Exec(`
				UPDATE outgoing_key_requests
				SET recipients = ?, from_index = ?
				WHERE request_id = ?
			`, rec, out.FromIndex, out.RequestID)
			if err != nil {
				return fmt.Errorf("widen request: %w", err)
			}
		}
		return nil
	}, topicRequests)
	if err != nil {
		return domain.OutgoingKeyRequest{}, err
	}
	return out, nil
}

// Request looks up by request id.
func (s *Store) Request(id string) (domain.OutgoingKeyRequest, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.OutgoingKeyRequest{}, false, err
	}
	defer release()

	req, err := scanRequest(s.db.QueryRow(requestSelect+` WHERE request_id = ?`, id))
	if err == sql.ErrNoRows {
		return domain.OutgoingKeyRequest{}, false, nil
	}
	if err != nil {
		return domain.OutgoingKeyRequest{}, false, fmt.Errorf("load request: %w", err)
	}
	return req, true, nil
}

// RequestByBody looks up the single request for a request body.
func (s *Store) RequestByBody(body domain.RequestBody) (domain.OutgoingKeyRequest, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.OutgoingKeyRequest{}, false, err
	}
	defer release()

	req, err := scanRequest(s.db.QueryRow(requestSelect+`
		WHERE room_id = ? AND session_id = ? AND algorithm = ? AND sender_key = ?
		ORDER BY created_at DESC LIMIT 1
	`, body.RoomID, body.SessionID, body.Algorithm, body.SenderKey))
	if err == sql.ErrNoRows {
		return domain.OutgoingKeyRequest{}, false, nil
	}
	if err != nil {
		return domain.OutgoingKeyRequest{}, false, fmt.Errorf("load request by body: %w", err)
	}
	return req, true, nil
}

// RequestsForSession returns every request targeting the given key; several
// requests may exist across recipients.
func (s *Store) RequestsForSession(roomID, sessionID, algorithm, senderKey string) ([]domain.OutgoingKeyRequest, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.Query(requestSelect+`
		WHERE room_id = ? AND session_id = ? AND algorithm = ? AND sender_key = ?
		ORDER BY created_at DESC, rowid DESC
	`, roomID, sessionID, algorithm, senderKey)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// UpdateRequestState enforces the transition table; an illegal transition is
// rejected with ErrIllegalTransition and the stored state unchanged.
func (s *Store) UpdateRequestState(id string, next domain.RequestState) error {
	return s.writeTx(func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRow(`
			SELECT state FROM outgoing_key_requests WHERE request_id = ?
		`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("request %s: not found", id)
		}
		if err != nil {
			return fmt.Errorf("probe request state: %w", err)
		}
		if !domain.RequestState(current).CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition,
				domain.RequestState(current), next)
		}
		if _, err := tx.Exec(`
			UPDATE outgoing_key_requests SET state = ? WHERE request_id = ?
		`, int(next), id); err != nil {
			return fmt.Errorf("update request state: %w", err)
		}
		return nil
	}, topicRequests)
}

// UpdateRequiredIndex lowers the request's fromIndex only when newIndex is
// strictly lower.
func (s *Store) UpdateRequiredIndex(id string, newIndex int64) error {
	return s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE outgoing_key_requests SET from_index = ?
			WHERE request_id = ? AND from_index > ?
		`, newIndex, id, newIndex); err != nil {
			return fmt.Errorf("update required index: %w", err)
		}
		return nil
	}, topicRequests)
}

// UpdateReply attaches a received forwarded-key event to the request
// matching body, for audit and duplicate suppression by the gossiping layer.
// Silently a no-op when no request matches.
func (s *Store) UpdateReply(body domain.RequestBody, fromDevice string, event []byte) error {
	return s.writeTx(func(tx *sql.Tx) error {
		req, found, err := requestByBodyTx(tx, body)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		_, err = tx.Exec(`
			INSERT INTO request_replies (request_id, from_device, event, received_at)
			VALUES (?, ?, ?, ?)
		`, req.RequestID, fromDevice, event, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("store reply: %w", err)
		}
		return nil
	}, topicRequests)
}

// Replies returns the forwarded-key replies attached to a request, oldest
// first.
func (s *Store) Replies(requestID string) ([]domain.ForwardedKeyReply, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.Query(`
		SELECT request_id, from_device, event, received_at
		FROM request_replies WHERE request_id = ?
		ORDER BY rowid ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	var out []domain.ForwardedKeyReply
	for rows.Next() {
		var r domain.ForwardedKeyReply
		if err := rows.Scan(&r.RequestID, &r.FromDevice, &r.Event, &r.ReceivedUTC); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRequest removes a request and its replies.
func (s *Store) DeleteRequest(id string) error {
	return s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM request_replies WHERE request_id = ?`, id); err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM outgoing_key_requests WHERE request_id = ?`, id); err != nil {
			return fmt.Errorf("delete request: %w", err)
		}
		return nil
	}, topicRequests)
}

// DeleteRequestsInState bulk-purges requests in the given state, typically
// CANCELLED, and reports how many were removed.
func (s *Store) DeleteRequestsInState(state domain.RequestState) (int, error) {
	var n int
	err := s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM request_replies WHERE request_id IN
				(SELECT request_id FROM outgoing_key_requests WHERE state = ?)
		`, int(state)); err != nil {
			return fmt.Errorf("delete replies in state: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM outgoing_key_requests WHERE state = ?`, int(state))
		if err != nil {
			return fmt.Errorf("delete requests in state: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	}, topicRequests)
	return n, err
}

// PageRequests lists requests newest-first with a restartable cursor.
func (s *Store) PageRequests(cursor domain.Cursor, limit int) ([]domain.OutgoingKeyRequest, domain.Cursor, error) {
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

	rows, err := s.db.Query(`
		SELECT rowid, request_id, room_id, session_id, algorithm, sender_key,
			recipients, from_index, state, created_at
		FROM outgoing_key_requests
		WHERE rowid < ?
		ORDER BY rowid DESC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("page requests: %w", err)
	}
	defer rows.Close()

	var out []domain.OutgoingKeyRequest
	var last int64
	for rows.Next() {
		var rowid int64
		var req domain.OutgoingKeyRequest
		var rec []byte
		var state int
		err := rows.Scan(&rowid, &req.RequestID, &req.Body.RoomID, &req.Body.SessionID,
			&req.Body.Algorithm, &req.Body.SenderKey, &rec, &req.FromIndex,
			&state, &req.CreatedUTC)
		if err != nil {
			return nil, 0, fmt.Errorf("scan request page: %w", err)
		}
		if err := json.Unmarshal(rec, &req.Recipients); err != nil {
			return nil, 0, fmt.Errorf("decode recipients: %w", err)
		}
		req.State = domain.RequestState(state)
		out = append(out, req)
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

// WatchRequests emits the newest page of requests on each committed change.
func (s *Store) WatchRequests(limit int) *Subscription[[]domain.OutgoingKeyRequest] {
	return watch(s, []string{topicRequests}, func() ([]domain.OutgoingKeyRequest, error) {
		page, _, err := s.PageRequests(0, limit)
		return page, err
	})
}

const requestSelect = `
	SELECT request_id, room_id, session_id, algorithm, sender_key,
		recipients, from_index, state, created_at
	FROM outgoing_key_requests`

func requestByBodyTx(tx *sql.Tx, body domain.RequestBody) (domain.OutgoingKeyRequest, bool, error) {
	req, err := scanRequest(tx.QueryRow(requestSelect+`
		WHERE room_id = ? AND session_id = ? AND algorithm = ? AND sender_key = ?
		ORDER BY created_at DESC LIMIT 1
	`, body.RoomID, body.SessionID, body.Algorithm, body.SenderKey))
	if err == sql.ErrNoRows {
		return domain.OutgoingKeyRequest{}, false, nil
	}
	if err != nil {
		return domain.OutgoingKeyRequest{}, false, fmt.Errorf("load request by body: %w", err)
	}
	return req, true, nil
}

func collectRequests(rows *sql.Rows) ([]domain.OutgoingKeyRequest, error) {
	var out []domain.OutgoingKeyRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row rowScanner) (domain.OutgoingKeyRequest, error) {
	var req domain.OutgoingKeyRequest
	var rec []byte
	var state int
	err := row.Scan(&req.RequestID, &req.Body.RoomID, &req.Body.SessionID,
		&req.Body.Algorithm, &req.Body.SenderKey, &rec, &req.FromIndex,
		&state, &req.CreatedUTC)
	if err != nil {
		return domain.OutgoingKeyRequest{}, err
	}
	if err := json.Unmarshal(rec, &req.Recipients); err != nil {
		return domain.OutgoingKeyRequest{}, fmt.Errorf("decode recipients: %w", err)
	}
	req.State = domain.RequestState(state)
	return req, nil
}

func copyRecipients(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for u, devices := range in {
		out[u] = append([]string(nil), devices...)
	}
	return out
}

func unionRecipients(a, b map[string][]string) map[string][]string {
	out := copyRecipients(a)
	for u, devices := range b {
		seen := make(map[string]struct{}, len(out[u]))
		for _, d := range out[u] {
			seen[d] = struct{}{}
		}
		for _, d := range devices {
			if _, ok := seen[d]; !ok {
				out[u] = append(out[u], d)
			}
		}
	}
	return out
}

var _ domain.KeyRequestStore = (*Store)(nil)
