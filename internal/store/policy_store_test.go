package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestGlobalPolicyDefaults(t *testing.T) {
	s := newTestStore(t)

	p, err := s.GlobalPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if !p.KeyGossipingEnabled {
		t.Error("gossiping should default to enabled")
	}
	if p.ShareKeysOnInvite {
		t.Error("share-on-invite should default to disabled")
	}
	if p.BlacklistUnverifiedDevices {
		t.Error("blacklist should default to disabled")
	}
}

func TestGlobalPolicyRoundtrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetKeyGossipingEnabled(false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetShareKeysOnInvite(true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetGlobalBlacklistUnverifiedDevices(true); err != nil {
		t.Fatal(err)
	}

	p, err := s.GlobalPolicy()
	if err != nil {
		t.Fatal(err)
	}
	if p.KeyGossipingEnabled || !p.ShareKeysOnInvite || !p.BlacklistUnverifiedDevices {
		t.Errorf("got %+v", p)
	}
}

func TestRoomPolicyUnknownRoom(t *testing.T) {
	s := newTestStore(t)
	p, err := s.RoomPolicy("!ghost:example.org")
	if err != nil {
		t.Fatal(err)
	}
	if p.BlockUnverifiedDevices || p.EncryptForInvitedMembers || p.ShareHistory {
		t.Errorf("unknown room should report all-false flags: %+v", p)
	}
}

func TestRoomPolicyImmediateWrites(t *testing.T) {
	s := newTestStore(t)
	room := "!room:example.org"

	// Outside a bracket every write commits immediately.
	if err := s.SetRoomBlockUnverifiedDevices(room, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetShouldEncryptForInvitedMembers(room, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetShouldShareHistory(room, true); err != nil {
		t.Fatal(err)
	}

	p, err := s.RoomPolicy(room)
	if err != nil {
		t.Fatal(err)
	}
	if !p.BlockUnverifiedDevices || !p.EncryptForInvitedMembers || !p.ShareHistory {
		t.Errorf("got %+v", p)
	}
}

func TestBatchBuffersUntilEndBatch(t *testing.T) {
	s := newTestStore(t)
	room := "!room:example.org"

	s.BeginBatch()
	if err := s.SetShouldShareHistory(room, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetShouldEncryptForInvitedMembers(room, true); err != nil {
		t.Fatal(err)
	}

	// Buffered writes are invisible until the bracket commits.
	share, err := s.ShouldShareHistory(room)
	if err != nil {
		t.Fatal(err)
	}
	if share {
		t.Error("buffered flag visible before EndBatch")
	}

	if err := s.EndBatch(); err != nil {
		t.Fatalf("EndBatch: %v", err)
	}

	p, err := s.RoomPolicy(room)
	if err != nil {
		t.Fatal(err)
	}
	if !p.ShareHistory || !p.EncryptForInvitedMembers {
		t.Errorf("bracket did not commit: %+v", p)
	}
}

func TestBatchLastWritePerRoomWins(t *testing.T) {
	s := newTestStore(t)
	room := "!room:example.org"

	s.BeginBatch()
	if err := s.SetShouldShareHistory(room, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetShouldShareHistory(room, false); err != nil {
		t.Fatal(err)
	}
	if err := s.EndBatch(); err != nil {
		t.Fatal(err)
	}

	share, err := s.ShouldShareHistory(room)
	if err != nil {
		t.Fatal(err)
	}
	if share {
		t.Error("earlier write in the bracket won over the later one")
	}
}

func TestEndBatchWithoutBeginIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.EndBatch(); err != nil {
		t.Fatalf("EndBatch without bracket: %v", err)
	}
}

func TestBracketFailsFastAfterClose(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	// BeginBatch on a closed store must not open a bracket that would let
	// the setters buffer and report success.
	s.BeginBatch()
	if err := s.SetShouldShareHistory("!room:x", true); !errors.Is(err, ErrClosed) {
		t.Errorf("SetShouldShareHistory: want ErrClosed, got %v", err)
	}
	if err := s.SetShouldEncryptForInvitedMembers("!room:x", true); !errors.Is(err, ErrClosed) {
		t.Errorf("SetShouldEncryptForInvitedMembers: want ErrClosed, got %v", err)
	}
}

func TestBracketSettersFailAfterCloseMidBatch(t *testing.T) {
	s := newTestStore(t)

	// Close in the middle of a bracket discards it; later setters must not
	// quietly buffer into a dead bracket.
	s.BeginBatch()
	if err := s.SetShouldShareHistory("!room:x", true); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if err := s.SetShouldShareHistory("!room:x", false); !errors.Is(err, ErrClosed) {
		t.Errorf("setter after mid-batch Close: want ErrClosed, got %v", err)
	}
}

func TestCloseDiscardsOpenBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	s := openAt(t, path, testPassphrase)
	room := "!room:example.org"

	if err := s.SetShouldShareHistory(room, false); err != nil {
		t.Fatal(err)
	}

	// A crash mid-sync must not leak half a sync's worth of policy.
	s.BeginBatch()
	if err := s.SetShouldShareHistory(room, true); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened := openAt(t, path, testPassphrase)
	share, err := reopened.ShouldShareHistory(room)
	if err != nil {
		t.Fatal(err)
	}
	if share {
		t.Error("buffered write survived Close without EndBatch")
	}
}
