package store

import (
	"database/sql"
	"fmt"
	"time"

	"keyvault/internal/domain"
	"keyvault/internal/util/memzero"
)

// StoreDevices replaces userID's device list in one transaction. Trust flags
// carry over for device ids retained across the replace; new ids start
// unverified regardless of the flags on the incoming records.
func (s *Store) StoreDevices(userID string, devices []domain.Device) error {
	return s.writeTx(func(tx *sql.Tx) error {
		type kept struct {
			trust domain.TrustLevel
			seen  int64
		}
		existing := make(map[string]kept)

		rows, err := tx.Query(`
			SELECT device_id, locally_verified, cross_signed, first_seen_at
			FROM devices WHERE user_id = ?
		`, userID)
		if err != nil {
			return fmt.Errorf("load existing devices: %w", err)
		}
		for rows.Next() {
			var id string
			var local, cross int
			var seen int64
			if err := rows.Scan(&id, &local, &cross, &seen); err != nil {
				rows.Close()
				return fmt.Errorf("scan existing device: %w", err)
			}
			existing[id] = kept{
				trust: domain.TrustLevel{LocallyVerified: local == 1, CrossSignedVerified: cross == 1},
				seen:  seen,
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM devices WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear device list: %w", err)
		}

		now := time.Now().Unix()
		for _, d := range devices {
			trust := domain.TrustLevel{}
			seen := now
			if k, ok := existing[d.DeviceID]; ok {
				trust = k.trust
				seen = k.seen
			}
			_, err := tx.Exec(`
				INSERT INTO devices
					(user_id, device_id, identity_key, signing_key, display_name,
					 locally_verified, cross_signed, first_seen_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, userID, d.DeviceID, d.IdentityKey, d.SigningKey, d.DisplayName,
				boolToInt(trust.LocallyVerified), boolToInt(trust.CrossSignedVerified), seen)
			if err != nil {
				return fmt.Errorf("insert device: %w", err)
			}
		}
		return nil
	}, topicDevices+userID)
}

// Devices lists userID's devices.
func (s *Store) Devices(userID string) ([]domain.Device, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.queryDevices(`
		SELECT user_id, device_id, identity_key, signing_key, display_name,
			locally_verified, cross_signed, first_seen_at
		FROM devices WHERE user_id = ?
		ORDER BY device_id ASC
	`, userID)
}

// Device looks up one device.
func (s *Store) Device(userID, deviceID string) (domain.Device, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.Device{}, false, err
	}
	defer release()

	d, err := scanDevice(s.db.QueryRow(`
		SELECT user_id, device_id, identity_key, signing_key, display_name,
			locally_verified, cross_signed, first_seen_at
		FROM devices WHERE user_id = ? AND device_id = ?
	`, userID, deviceID))
	if err == sql.ErrNoRows {
		return domain.Device{}, false, nil
	}
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("load device: %w", err)
	}
	return d, true, nil
}

// DeviceByKey looks up a device by its Curve25519 identity key, the form a
// sender key arrives in.
func (s *Store) DeviceByKey(identityKey string) (domain.Device, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.Device{}, false, err
	}
	defer release()

	d, err := scanDevice(s.db.QueryRow(`
		SELECT user_id, device_id, identity_key, signing_key, display_name,
			locally_verified, cross_signed, first_seen_at
		FROM devices WHERE identity_key = ?
		LIMIT 1
	`, identityKey))
	if err == sql.ErrNoRows {
		return domain.Device{}, false, nil
	}
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("load device by key: %w", err)
	}
	return d, true, nil
}

// Users lists every user id with known devices.
func (s *Store) Users() ([]string, error) {
	release, err := s.read()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM devices ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetTrust updates a device's verification flags. A nil locallyVerified
// leaves the local flag unchanged.
func (s *Store) SetTrust(userID, deviceID string, crossSigned bool, locallyVerified *bool) error {
	return s.writeTx(func(tx *sql.Tx) error {
		var err error
		if locallyVerified == nil {
			_, err = tx.Exec(`
				UPDATE devices SET cross_signed = ?
				WHERE user_id = ? AND device_id = ?
			`, boolToInt(crossSigned), userID, deviceID)
		} else {
			_, err = tx.Exec(`
				UPDATE devices SET cross_signed = ?, locally_verified = ?
				WHERE user_id = ? AND device_id = ?
			`, boolToInt(crossSigned), boolToInt(*locallyVerified), userID, deviceID)
		}
		if err != nil {
			return fmt.Errorf("set trust: %w", err)
		}
		return nil
	}, topicDevices+userID)
}

// UpdateUsersTrust recomputes CrossSignedVerified for every known user by
// evaluating the supplied predicate per user id, applied as one batch. The
// predicate runs under the writer lock; it must not call back into the
// store or it will deadlock. It should be a pure function over verification
// state the caller already holds.
func (s *Store) UpdateUsersTrust(verified func(userID string) bool) error {
	users, err := s.Users()
	if err != nil {
		return err
	}

	topics := make([]string, 0, len(users))
	for _, u := range users {
		topics = append(topics, topicDevices+u)
	}

	return s.writeTx(func(tx *sql.Tx) error {
		for _, u := range users {
			v := boolToInt(verified(u))
			if _, err := tx.Exec(`
				UPDATE devices SET cross_signed = ? WHERE user_id = ?
			`, v, u); err != nil {
				return fmt.Errorf("update user trust: %w", err)
			}
			if _, err := tx.Exec(`
				UPDATE cross_signing_keys SET cross_signed = ? WHERE user_id = ?
			`, v, u); err != nil {
				return fmt.Errorf("update cross-signing trust: %w", err)
			}
		}
		return nil
	}, topics...)
}

// ClearOtherUserTrust revokes cross-signing verification for every user
// except selfUserID, after a master-key rotation invalidates prior chains.
// Local verification is untouched.
func (s *Store) ClearOtherUserTrust(selfUserID string) error {
	return s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE devices SET cross_signed = 0 WHERE user_id != ?
		`, selfUserID); err != nil {
			return fmt.Errorf("clear device trust: %w", err)
		}
		if _, err := tx.Exec(`
			UPDATE cross_signing_keys SET cross_signed = 0 WHERE user_id != ?
		`, selfUserID); err != nil {
			return fmt.Errorf("clear cross-signing trust: %w", err)
		}
		return nil
	})
}

// StoreCrossSigningKeys upserts a user's public cross-signing hierarchy.
func (s *Store) StoreCrossSigningKeys(info domain.CrossSigningInfo) error {
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO cross_signing_keys
				(user_id, master_key, self_signing_key, user_signing_key, locally_verified, cross_signed)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				master_key = excluded.master_key,
				self_signing_key = excluded.self_signing_key,
				user_signing_key = excluded.user_signing_key,
				locally_verified = excluded.locally_verified,
				cross_signed = excluded.cross_signed
		`, info.UserID, info.MasterKey, info.SelfSigningKey, info.UserSigningKey,
			boolToInt(info.Trust.LocallyVerified), boolToInt(info.Trust.CrossSignedVerified))
		if err != nil {
			return fmt.Errorf("store cross-signing keys: %w", err)
		}
		return nil
	})
}

// CrossSigningKeys returns a user's public cross-signing hierarchy.
func (s *Store) CrossSigningKeys(userID string) (domain.CrossSigningInfo, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.CrossSigningInfo{}, false, err
	}
	defer release()

	var info domain.CrossSigningInfo
	var local, cross int
	err = s.db.QueryRow(`
		SELECT user_id, master_key, self_signing_key, user_signing_key, locally_verified, cross_signed
		FROM cross_signing_keys WHERE user_id = ?
	`, userID).Scan(&info.UserID, &info.MasterKey, &info.SelfSigningKey,
		&info.UserSigningKey, &local, &cross)
	if err == sql.ErrNoRows {
		return domain.CrossSigningInfo{}, false, nil
	}
	if err != nil {
		return domain.CrossSigningInfo{}, false, fmt.Errorf("load cross-signing keys: %w", err)
	}
	info.Trust = domain.TrustLevel{LocallyVerified: local == 1, CrossSignedVerified: cross == 1}
	return info, true, nil
}

// StoreCrossSigningPrivateKeys stores the local private cross-signing keys.
// All three must be present; the record is never partially populated.
func (s *Store) StoreCrossSigningPrivateKeys(keys domain.CrossSigningPrivateKeys) error {
	if len(keys.Master) == 0 || len(keys.SelfSigning) == 0 || len(keys.UserSigning) == 0 {
		return fmt.Errorf("private cross-signing keys must be fully populated")
	}
	return s.writeTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO cross_signing_private (id, master, self_signing, user_signing)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				master = excluded.master,
				self_signing = excluded.self_signing,
				user_signing = excluded.user_signing
		`, keys.Master, keys.SelfSigning, keys.UserSigning)
		if err != nil {
			return fmt.Errorf("store private cross-signing keys: %w", err)
		}
		return nil
	}, topicPrivateKeys)
}

// CrossSigningPrivateKeys returns the local private keys when present.
func (s *Store) CrossSigningPrivateKeys() (domain.CrossSigningPrivateKeys, bool, error) {
	release, err := s.read()
	if err != nil {
		return domain.CrossSigningPrivateKeys{}, false, err
	}
	defer release()

	var keys domain.CrossSigningPrivateKeys
	err = s.db.QueryRow(`
		SELECT master, self_signing, user_signing FROM cross_signing_private WHERE id = 1
	`).Scan(&keys.Master, &keys.SelfSigning, &keys.UserSigning)
	if err == sql.ErrNoRows {
		return domain.CrossSigningPrivateKeys{}, false, nil
	}
	if err != nil {
		return domain.CrossSigningPrivateKeys{}, false, fmt.Errorf("load private cross-signing keys: %w", err)
	}
	return keys, true, nil
}

// ClearCrossSigningPrivateKeys removes the local private keys without
// touching the public records.
func (s *Store) ClearCrossSigningPrivateKeys() error {
	keys, found, err := s.CrossSigningPrivateKeys()
	if err != nil {
		return err
	}
	err = s.writeTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM cross_signing_private WHERE id = 1`); err != nil {
			return fmt.Errorf("clear private cross-signing keys: %w", err)
		}
		return nil
	}, topicPrivateKeys)
	if err == nil && found {
		memzero.Zero(keys.Master)
		memzero.Zero(keys.SelfSigning)
		memzero.Zero(keys.UserSigning)
	}
	return err
}

// WatchDevices emits userID's device list on each committed change.
func (s *Store) WatchDevices(userID string) *Subscription[[]domain.Device] {
	return watch(s, []string{topicDevices + userID}, func() ([]domain.Device, error) {
		return s.Devices(userID)
	})
}

// WatchCrossSigningPrivateKeys emits whether private keys are available.
func (s *Store) WatchCrossSigningPrivateKeys() *Subscription[bool] {
	return watch(s, []string{topicPrivateKeys}, func() (bool, error) {
		_, found, err := s.CrossSigningPrivateKeys()
		return found, err
	})
}

func (s *Store) queryDevices(q string, args ...any) ([]domain.Device, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDevice(row rowScanner) (domain.Device, error) {
	var d domain.Device
	var local, cross int
	err := row.Scan(&d.UserID, &d.DeviceID, &d.IdentityKey, &d.SigningKey,
		&d.DisplayName, &local, &cross, &d.FirstSeenUTC)
	if err != nil {
		return domain.Device{}, err
	}
	d.Trust = domain.TrustLevel{LocallyVerified: local == 1, CrossSignedVerified: cross == 1}
	return d, nil
}

var _ domain.DeviceStore = (*Store)(nil)
