package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyvault/internal/domain"
)

func deviceFixture(userID, deviceID, identityKey string) domain.Device {
	return domain.Device{
		UserID:      userID,
		DeviceID:    deviceID,
		IdentityKey: identityKey,
		SigningKey:  "ed25519+" + deviceID,
		DisplayName: deviceID + " display",
	}
}

func TestStoreDevicesCarriesTrustOverReplace(t *testing.T) {
	s := newTestStore(t)
	alice := "@alice:example.org"

	require.NoError(t, s.StoreDevices(alice, []domain.Device{
		deviceFixture(alice, "KEEP", "key-keep"),
		deviceFixture(alice, "DROP", "key-drop"),
	}))

	verified := true
	require.NoError(t, s.SetTrust(alice, "KEEP", true, &verified))

	// The replacement list keeps one id and introduces a new one. The
	// incoming records claim trust, which must be ignored for new ids.
	incoming := []domain.Device{
		deviceFixture(alice, "KEEP", "key-keep"),
		deviceFixture(alice, "NEW", "key-new"),
	}
	incoming[1].Trust = domain.TrustLevel{LocallyVerified: true, CrossSignedVerified: true}
	require.NoError(t, s.StoreDevices(alice, incoming))

	kept, found, err := s.Device(alice, "KEEP")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, kept.Trust.LocallyVerified)
	assert.True(t, kept.Trust.CrossSignedVerified)

	added, found, err := s.Device(alice, "NEW")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, added.Trust.Verified(), "a new device id must start unverified")

	_, found, err = s.Device(alice, "DROP")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetTrustNilLeavesLocalFlag(t *testing.T) {
	s := newTestStore(t)
	alice := "@alice:example.org"
	require.NoError(t, s.StoreDevices(alice, []domain.Device{deviceFixture(alice, "D1", "k1")}))

	verified := true
	require.NoError(t, s.SetTrust(alice, "D1", false, &verified))
	require.NoError(t, s.SetTrust(alice, "D1", true, nil))

	d, _, err := s.Device(alice, "D1")
	require.NoError(t, err)
	assert.True(t, d.Trust.LocallyVerified, "nil locallyVerified must not touch the local flag")
	assert.True(t, d.Trust.CrossSignedVerified)
}

func TestDeviceByKeyAndUsers(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StoreDevices("@bob:x", []domain.Device{deviceFixture("@bob:x", "B1", "bob-key")}))
	require.NoError(t, s.StoreDevices("@alice:x", []domain.Device{deviceFixture("@alice:x", "A1", "alice-key")}))

	d, found, err := s.DeviceByKey("bob-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "B1", d.DeviceID)

	_, found, err = s.DeviceByKey("nobody")
	require.NoError(t, err)
	assert.False(t, found)

	users, err := s.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice:x", "@bob:x"}, users)
}

func TestUpdateUsersTrust(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StoreDevices("@alice:x", []domain.Device{deviceFixture("@alice:x", "A1", "ka")}))
	require.NoError(t, s.StoreDevices("@bob:x", []domain.Device{deviceFixture("@bob:x", "B1", "kb")}))
	require.NoError(t, s.StoreCrossSigningKeys(domain.CrossSigningInfo{
		UserID: "@alice:x", MasterKey: "amk", SelfSigningKey: "ask", UserSigningKey: "auk",
	}))

	require.NoError(t, s.UpdateUsersTrust(func(userID string) bool {
		return userID == "@alice:x"
	}))

	aliceDev, _, err := s.Device("@alice:x", "A1")
	require.NoError(t, err)
	assert.True(t, aliceDev.Trust.CrossSignedVerified)

	bobDev, _, err := s.Device("@bob:x", "B1")
	require.NoError(t, err)
	assert.False(t, bobDev.Trust.CrossSignedVerified)

	info, found, err := s.CrossSigningKeys("@alice:x")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, info.Trust.CrossSignedVerified)
}

func TestClearOtherUserTrust(t *testing.T) {
	s := newTestStore(t)
	self := "@me:example.org"

	for _, u := range []string{self, "@alice:x"} {
		require.NoError(t, s.StoreDevices(u, []domain.Device{deviceFixture(u, "D", "k-"+u)}))
		verified := true
		require.NoError(t, s.SetTrust(u, "D", true, &verified))
	}

	require.NoError(t, s.ClearOtherUserTrust(self))

	mine, _, err := s.Device(self, "D")
	require.NoError(t, err)
	assert.True(t, mine.Trust.CrossSignedVerified)

	theirs, _, err := s.Device("@alice:x", "D")
	require.NoError(t, err)
	assert.False(t, theirs.Trust.CrossSignedVerified)
	assert.True(t, theirs.Trust.LocallyVerified, "local verification survives a master-key rotation")
}

func TestCrossSigningPrivateKeysAllOrNone(t *testing.T) {
	s := newTestStore(t)

	err := s.StoreCrossSigningPrivateKeys(domain.CrossSigningPrivateKeys{
		Master: []byte("m"), SelfSigning: []byte("s"),
	})
	require.Error(t, err, "partial private keys must be rejected")

	_, found, err := s.CrossSigningPrivateKeys()
	require.NoError(t, err)
	assert.False(t, found)

	full := domain.CrossSigningPrivateKeys{
		Master: []byte("m"), SelfSigning: []byte("s"), UserSigning: []byte("u"),
	}
	require.NoError(t, s.StoreCrossSigningPrivateKeys(full))

	got, found, err := s.CrossSigningPrivateKeys()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("u"), got.UserSigning)

	require.NoError(t, s.ClearCrossSigningPrivateKeys())
	_, found, err = s.CrossSigningPrivateKeys()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClearPrivateKeysLeavesPublicRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StoreCrossSigningKeys(domain.CrossSigningInfo{
		UserID: "@me:x", MasterKey: "mk", SelfSigningKey: "sk", UserSigningKey: "uk",
	}))
	require.NoError(t, s.StoreCrossSigningPrivateKeys(domain.CrossSigningPrivateKeys{
		Master: []byte("m"), SelfSigning: []byte("s"), UserSigning: []byte("u"),
	}))

	require.NoError(t, s.ClearCrossSigningPrivateKeys())

	_, found, err := s.CrossSigningKeys("@me:x")
	require.NoError(t, err)
	assert.True(t, found, "public hierarchy must survive private key removal")
}
