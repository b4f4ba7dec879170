package domain

// Common withheld reason codes.
const (
	WithheldCodeBlacklisted  = "m.blacklisted"
	WithheldCodeUnverified   = "m.unverified"
	WithheldCodeUnauthorised = "m.unauthorised"
	WithheldCodeUnavailable  = "m.unavailable"
	WithheldCodeNoOlm        = "m.no_olm"
)

// WithheldRecord explains why a group session key was not shared with us.
// Purely informational; it does not block re-requesting the key.
type WithheldRecord struct {
	RoomID    string
	SessionID string
	SenderKey string

	Code   string
	Reason string

	CreatedUTC int64
}
