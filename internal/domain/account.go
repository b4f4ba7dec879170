package domain

// Account holds the long-term identity of this logical device.
//
// The ratchet library's account object is carried as an opaque pickle; this
// store never interprets it. The durable form on disk is the pickle sealed
// inside a passphrase-derived envelope.
type Account struct {
	DeviceID string

	// Public fingerprints of the long-term identity key pair.
	IdentityKey string // Curve25519, unpadded base64
	SigningKey  string // Ed25519, unpadded base64

	// Pickle is the opaque serialized account from the crypto library,
	// including the one-time key pool.
	Pickle []byte

	// UploadedKeyCount tracks how many one-time keys the server claims.
	UploadedKeyCount int

	CreatedUTC int64
}
