package domain

// RequestState is the lifecycle state of an outgoing key request.
type RequestState int

const (
	RequestCreated RequestState = iota
	RequestSent
	RequestCancelled
)

// String returns the state name used in logs and the CLI.
func (s RequestState) String() string {
	switch s {
	case RequestCreated:
		return "CREATED"
	case RequestSent:
		return "SENT"
	case RequestCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Reactivation of a cancelled request happens only through
// GetOrAddRequest, never through UpdateRequestState.
func (s RequestState) CanTransition(next RequestState) bool {
	switch s {
	case RequestCreated:
		return next == RequestSent || next == RequestCancelled
	case RequestSent:
		return next == RequestCancelled
	default:
		return false
	}
}

// RequestBody identifies the group session a key request is asking for.
type RequestBody struct {
	RoomID    string
	SessionID string
	Algorithm string
	SenderKey string
}

// OutgoingKeyRequest is one outgoing group-key request. At most one
// non-cancelled request exists per body.
type OutgoingKeyRequest struct {
	RequestID string
	Body      RequestBody

	// Recipients maps user id to the device ids the request targets.
	Recipients map[string][]string

	// FromIndex is the minimum chain index needed; merging requests only
	// ever lowers it.
	FromIndex int64

	State      RequestState
	CreatedUTC int64
}

// ForwardedKeyReply is a forwarded-key event attached to a request, kept for
// audit and duplicate suppression by the gossiping layer.
type ForwardedKeyReply struct {
	RequestID   string
	FromDevice  string
	Event       []byte
	ReceivedUTC int64
}
