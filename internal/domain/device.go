package domain

// TrustLevel carries the independent verification flags of a device or user.
// The flags are not mutually exclusive.
type TrustLevel struct {
	LocallyVerified     bool
	CrossSignedVerified bool
}

// Verified reports whether any verification path trusts the subject.
func (t TrustLevel) Verified() bool {
	return t.LocallyVerified || t.CrossSignedVerified
}

// Device is one device of a user, as published in their device list.
type Device struct {
	UserID   string
	DeviceID string

	IdentityKey string // Curve25519, unpadded base64
	SigningKey  string // Ed25519, unpadded base64
	DisplayName string

	Trust TrustLevel

	FirstSeenUTC int64
}

// CrossSigningInfo holds a user's public cross-signing key hierarchy.
type CrossSigningInfo struct {
	UserID string

	MasterKey      string
	SelfSigningKey string
	UserSigningKey string

	// Trust is derived from signatures over the master key, not stored on
	// the individual devices.
	Trust TrustLevel
}

// CrossSigningPrivateKeys are the local copies of the private cross-signing
// keys. A record is either fully populated or absent, never partial.
type CrossSigningPrivateKeys struct {
	Master      []byte
	SelfSigning []byte
	UserSigning []byte
}
