package domain

import "context"

// AccountGuard grants exclusive, scoped, mutable access to the account.
// Release must run on every exit path; mutations not saved before Release
// are lost on crash, which is intentional for ratchet state.
type AccountGuard interface {
	// Account returns the mutable account. Valid until Release.
	Account() *Account

	// Save durably persists the current account state.
	Save() error

	// Release ends the scope. Idempotent.
	Release()
}

// AccountStore owns the long-term identity account.
type AccountStore interface {
	// GetOrCreateAccount returns the stored account, or creates one exactly
	// once per store lifetime using generate.
	GetOrCreateAccount(generate func() (Account, error)) (Account, error)

	// AcquireAccount blocks until exclusive access is granted or ctx ends.
	AcquireAccount(ctx context.Context) (AccountGuard, error)

	// MarkKeysPublished records how many one-time keys the server holds
	// after an upload.
	MarkKeysPublished(count int) error

	// OneTimeKeyCount reports the server-side one-time key count.
	OneTimeKeyCount() (int, error)
}

// PairwiseSessionStore persists one-to-one ratchet sessions keyed by device.
// Absence is a normal, non-error outcome everywhere.
type PairwiseSessionStore interface {
	StoreSession(s PairwiseSession) error
	Session(sessionID, deviceKey string) (PairwiseSession, bool, error)

	// SessionIDs returns all known session ids for deviceKey; empty when
	// the device is unknown.
	SessionIDs(deviceKey string) ([]string, error)

	// LastUsedSession returns the session with the newest received message;
	// equal timestamps resolve to the earliest-created session.
	LastUsedSession(deviceKey string) (PairwiseSession, bool, error)
}

// GroupSessionStore persists group ratchet sessions, backup bookkeeping and
// share tracking.
type GroupSessionStore interface {
	// StoreInboundSessions upserts a batch atomically. On conflict the copy
	// granting the most history (lowest FirstKnownIndex) wins; ties keep
	// the existing entry untouched.
	StoreInboundSessions(sessions []InboundGroupSession) error

	// InboundSession looks up by (sessionID, senderKey). When
	// sharedHistoryOnly is non-nil and true, sessions not flagged
	// shared-history report not found.
	InboundSession(sessionID, senderKey string, sharedHistoryOnly *bool) (InboundGroupSession, bool, error)

	InboundSessionsByRoom(roomID string) ([]InboundGroupSession, error)
	RemoveInboundSession(sessionID, senderKey string) error

	// Backup bookkeeping.
	ResetBackupMarkers() error
	MarkBackedUp(keys []SessionKeyRef) error
	ToBackup(limit int) ([]InboundGroupSession, error)
	CountInbound(onlyBackedUp bool) (int, error)
	BackupVersion() (string, error)
	SetBackupVersion(version string) error

	// Outbound side.
	CurrentOutboundSession(roomID string) (OutboundGroupSession, bool, error)

	// StoreOutboundSession replaces the room's session and resets its
	// shared-with set.
	StoreOutboundSession(s OutboundGroupSession) error

	MarkShared(rec SharedSessionRecord) error
	SharedInfo(roomID, sessionID, userID, deviceID string) (chainIndex int64, found bool, err error)

	// SharedWith aggregates per user; the lowest chain index wins when a
	// user received the session on several devices.
	SharedWith(roomID, sessionID string) (map[string]int64, error)
}

// DeviceStore tracks per-user device lists, the cross-signing hierarchy and
// verification state.
type DeviceStore interface {
	// StoreDevices replaces userID's device list. Trust flags carry over
	// for retained device ids; new ids start unverified.
	StoreDevices(userID string, devices []Device) error

	Devices(userID string) ([]Device, error)
	Device(userID, deviceID string) (Device, bool, error)
	DeviceByKey(identityKey string) (Device, bool, error)
	Users() ([]string, error)

	// SetTrust updates verification flags; a nil locallyVerified leaves
	// that flag unchanged.
	SetTrust(userID, deviceID string, crossSigned bool, locallyVerified *bool) error

	// UpdateUsersTrust recomputes CrossSignedVerified for every known user
	// by evaluating verified per user id, applied as one batch. The
	// predicate runs while the batch write is in progress and must not
	// call back into the store.
	UpdateUsersTrust(verified func(userID string) bool) error

	// ClearOtherUserTrust revokes cross-signing verification for every user
	// except selfUserID, after a master-key rotation.
	ClearOtherUserTrust(selfUserID string) error

	StoreCrossSigningKeys(info CrossSigningInfo) error
	CrossSigningKeys(userID string) (CrossSigningInfo, bool, error)

	// Private cross-signing keys are an independent surface; clearing them
	// leaves the public records untouched.
	StoreCrossSigningPrivateKeys(keys CrossSigningPrivateKeys) error
	CrossSigningPrivateKeys() (CrossSigningPrivateKeys, bool, error)
	ClearCrossSigningPrivateKeys() error
}

// WithheldStore records why keys were not shared with this device.
type WithheldStore interface {
	AddWithheld(rec WithheldRecord) error
	Withheld(roomID, sessionID string) (WithheldRecord, bool, error)
}

// Cursor positions a restartable paginated listing. The zero Cursor starts
// from the newest entry; a zero next-cursor return means exhausted.
type Cursor int64

// KeyRequestStore is the outgoing key request state machine.
type KeyRequestStore interface {
	// GetOrAddRequest finds the non-deleted request for body or creates one
	// in CREATED. A cancelled request is reactivated to CREATED with the
	// new recipients and fromIndex; an active one widens: fromIndex is
	// lowered to the minimum and recipients are unioned, never narrowed.
	GetOrAddRequest(body RequestBody, recipients map[string][]string, fromIndex int64) (OutgoingKeyRequest, error)

	Request(id string) (OutgoingKeyRequest, bool, error)
	RequestByBody(body RequestBody) (OutgoingKeyRequest, bool, error)
	RequestsForSession(roomID, sessionID, algorithm, senderKey string) ([]OutgoingKeyRequest, error)

	// UpdateRequestState enforces the transition table and rejects illegal
	// transitions with the state unchanged.
	UpdateRequestState(id string, next RequestState) error

	// UpdateRequiredIndex lowers fromIndex only when newIndex is lower.
	UpdateRequiredIndex(id string, newIndex int64) error

	// UpdateReply attaches a received forwarded-key event to the matching
	// request.
	UpdateReply(body RequestBody, fromDevice string, event []byte) error
	Replies(requestID string) ([]ForwardedKeyReply, error)

	DeleteRequest(id string) error
	DeleteRequestsInState(s RequestState) (int, error)

	// PageRequests lists requests newest-first.
	PageRequests(cursor Cursor, limit int) ([]OutgoingKeyRequest, Cursor, error)
}

// AuditTrail is the append-only log of gossip protocol events. A write
// failure is reported but must never fail the operation that triggered it.
type AuditTrail interface {
	SaveOutgoingRequest(req OutgoingKeyRequest) error
	SaveIncomingRequest(requestID, userID, deviceID string, body RequestBody) error
	SaveWithheld(rec WithheldRecord, userID, deviceID string) error
	SaveOutgoingForward(body RequestBody, userID, deviceID string, chainIndex int64) error
	SaveIncomingForward(body RequestBody, fromDevice, requestID string) error

	// PageAudit lists entries newest-first; an empty kinds slice matches
	// every kind.
	PageAudit(kinds []AuditKind, cursor Cursor, limit int) ([]AuditEntry, Cursor, error)
}

// PolicyStore holds global and per-room encryption policy flags.
type PolicyStore interface {
	GlobalPolicy() (GlobalPolicy, error)
	SetGlobalBlacklistUnverifiedDevices(v bool) error
	SetKeyGossipingEnabled(v bool) error
	SetShareKeysOnInvite(v bool) error

	RoomPolicy(roomID string) (RoomPolicy, error)
	SetRoomBlockUnverifiedDevices(roomID string, v bool) error

	// The two flags below buffer inside an open sync bracket and commit at
	// EndBatch; outside a bracket they commit immediately.
	SetShouldEncryptForInvitedMembers(roomID string, v bool) error
	SetShouldShareHistory(roomID string, v bool) error

	ShouldEncryptForInvitedMembers(roomID string) (bool, error)
	ShouldShareHistory(roomID string) (bool, error)
}
