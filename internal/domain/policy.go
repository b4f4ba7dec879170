package domain

// GlobalPolicy holds the device-wide encryption policy flags.
type GlobalPolicy struct {
	// BlacklistUnverifiedDevices overrides every per-room setting when true.
	BlacklistUnverifiedDevices bool

	// KeyGossipingEnabled gates both sending key requests and honoring
	// forwarded keys. Defaults to true.
	KeyGossipingEnabled bool

	// ShareKeysOnInvite gates disclosure of shared-history sessions to
	// newly invited members. Defaults to false.
	ShareKeysOnInvite bool
}

// RoomPolicy holds the per-room encryption policy flags.
//
// EncryptForInvitedMembers and ShareHistory are derived from room state and
// mutate only inside a sync bracket; readers see them change only when the
// bracket commits.
type RoomPolicy struct {
	RoomID string

	BlockUnverifiedDevices   bool
	EncryptForInvitedMembers bool
	ShareHistory             bool
}
