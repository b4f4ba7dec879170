package domain

// PairwiseSession is one one-to-one ratchet session with a remote device.
// Many sessions may exist for the same device key.
type PairwiseSession struct {
	SessionID string
	DeviceKey string // remote device's Curve25519 identity key

	// Pickle is the opaque serialized ratchet state.
	Pickle []byte

	// LastReceivedUTC is when a message was last decrypted with this session.
	LastReceivedUTC int64
	CreatedUTC      int64
}

// InboundGroupSession holds key material for decrypting a room's messages.
type InboundGroupSession struct {
	SessionID string
	SenderKey string // Curve25519 key of the device that created the session
	RoomID    string

	// SharedHistory marks the session as disclosable to newly invited members.
	SharedHistory bool

	// BackedUp is set once the session has reached the current key backup.
	BackedUp bool

	// FirstKnownIndex is the lowest ratchet index this copy can decrypt from.
	// A lower index grants strictly more history.
	FirstKnownIndex int64

	// Pickle is the opaque serialized group ratchet state.
	Pickle []byte

	// ForwardingChain lists the Curve25519 keys the session was forwarded
	// through, empty when received directly.
	ForwardingChain []string

	CreatedUTC int64
}

// SessionKeyRef identifies an inbound group session.
type SessionKeyRef struct {
	SessionID string
	SenderKey string
}

// OutboundGroupSession is the session this device encrypts a room with.
// At most one exists per room.
type OutboundGroupSession struct {
	RoomID    string
	SessionID string

	// Pickle is the opaque serialized outbound ratchet state.
	Pickle []byte

	CreatedUTC int64
}

// SharedSessionRecord records that a group session was shared with a device
// at a specific ratchet position.
type SharedSessionRecord struct {
	RoomID     string
	SessionID  string
	UserID     string
	DeviceID   string
	DeviceKey  string
	ChainIndex int64
}
