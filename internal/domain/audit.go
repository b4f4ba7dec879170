package domain

// AuditKind tags one gossip protocol event in the audit trail.
type AuditKind string

const (
	AuditOutgoingRequest AuditKind = "OUTGOING_REQUEST"
	AuditIncomingRequest AuditKind = "INCOMING_REQUEST"
	AuditWithheld        AuditKind = "WITHHELD"
	AuditOutgoingForward AuditKind = "OUTGOING_FORWARD"
	AuditIncomingForward AuditKind = "INCOMING_FORWARD"
)

// AuditEntry is one immutable, append-only record of a gossip event.
// Entries are never mutated or deleted except on full store wipe.
type AuditEntry struct {
	EntryID string
	Kind    AuditKind

	RoomID    string
	SessionID string
	SenderKey string
	Algorithm string

	// Counterpart of the event: requester, forwarder or withholder.
	UserID   string
	DeviceID string

	RequestID string

	// Detail carries kind-specific data (reason codes, chain index).
	Detail string

	CreatedUTC int64
}
