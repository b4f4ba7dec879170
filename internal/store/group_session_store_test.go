package store

import (
	"testing"

	"keyvault/internal/domain"
)

func inboundFixture(sessionID string, index int64) domain.InboundGroupSession {
	return domain.InboundGroupSession{
		SessionID:       sessionID,
		SenderKey:       "sender-key",
		RoomID:          "!room:example.org",
		FirstKnownIndex: index,
		Pickle:          []byte("pickle@" + sessionID),
		ForwardingChain: []string{"hop1", "hop2"},
	}
}

func TestStoreInboundSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	sess := inboundFixture("mg-1", 5)

	if err := s.StoreInboundSessions([]domain.InboundGroupSession{sess}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreInboundSessions([]domain.InboundGroupSession{sess}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountInbound(false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	got, found, err := s.InboundSession("mg-1", "sender-key", nil)
	if err != nil || !found {
		t.Fatalf("InboundSession: found=%v err=%v", found, err)
	}
	if got.FirstKnownIndex != 5 || len(got.ForwardingChain) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestInboundMergeLowerIndexWins(t *testing.T) {
	s := newTestStore(t)

	first := inboundFixture("mg-2", 10)
	first.BackedUp = true
	if err := s.StoreInboundSessions([]domain.InboundGroupSession{first}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkBackedUp([]domain.SessionKeyRef{{SessionID: "mg-2", SenderKey: "sender-key"}}); err != nil {
		t.Fatal(err)
	}

	// A copy with more history replaces the stored one and drops the
	// backup marker: the current backup no longer covers the session.
	better := inboundFixture("mg-2", 3)
	better.Pickle = []byte("more history")
	if err := s.StoreInboundSessions([]domain.InboundGroupSession{better}); err != nil {
		t.Fatal(err)
	}

	got, _, err := s.InboundSession("mg-2", "sender-key", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.FirstKnownIndex != 3 || string(got.Pickle) != "more history" {
		t.Errorf("replacement not applied: %+v", got)
	}
	if got.BackedUp {
		t.Error("backup marker survived the replacement")
	}
}

func TestInboundMergeEqualOrHigherIndexKeepsExisting(t *testing.T) {
	s := newTestStore(t)

	original := inboundFixture("mg-3", 4)
	if err := s.StoreInboundSessions([]domain.InboundGroupSession{original}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkBackedUp([]domain.SessionKeyRef{{SessionID: "mg-3", SenderKey: "sender-key"}}); err != nil {
		t.Fatal(err)
	}

	for _, index := range []int64{4, 9} {
		dup := inboundFixture("mg-3", index)
		dup.Pickle = []byte("should be ignored")
		if err := s.StoreInboundSessions([]domain.InboundGroupSession{dup}); err != nil {
			t.Fatal(err)
		}
	}

	got, _, err := s.InboundSession("mg-3", "sender-key", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Pickle) != "pickle@mg-3" || got.FirstKnownIndex != 4 {
		t.Errorf("existing entry was touched: %+v", got)
	}
	if !got.BackedUp {
		t.Error("backup marker lost on a no-op merge")
	}
}

func TestSharedHistoryFilter(t *testing.T) {
	s := newTestStore(t)

	private := inboundFixture("mg-private", 0)
	shared := inboundFixture("mg-shared", 0)
	shared.SharedHistory = true
	if err := s.StoreInboundSessions([]domain.InboundGroupSession{private, shared}); err != nil {
		t.Fatal(err)
	}

	only := true
	if _, found, err := s.InboundSession("mg-private", "sender-key", &only); err != nil || found {
		t.Errorf("private session visible through shared-history filter: found=%v err=%v", found, err)
	}
	if _, found, err := s.InboundSession("mg-shared", "sender-key", &only); err != nil || !found {
		t.Errorf("shared session filtered out: found=%v err=%v", found, err)
	}

	// A nil filter sees both.
	if _, found, _ := s.InboundSession("mg-private", "sender-key", nil); !found {
		t.Error("nil filter hid the private session")
	}
}

func TestRemoveInboundSession(t *testing.T) {
	s := newTestStore(t)
	if err := s.StoreInboundSessions([]domain.InboundGroupSession{inboundFixture("mg-del", 0)}); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveInboundSession("mg-del", "sender-key"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.InboundSession("mg-del", "sender-key", nil); found {
		t.Error("session still present after removal")
	}
	// Removing again is a no-op.
	if err := s.RemoveInboundSession("mg-del", "sender-key"); err != nil {
		t.Fatalf("second removal: %v", err)
	}
}

func TestBackupBatchesMakeProgress(t *testing.T) {
	s := newTestStore(t)

	batch := []domain.InboundGroupSession{
		inboundFixture("mg-a", 0),
		inboundFixture("mg-b", 0),
		inboundFixture("mg-c", 0),
	}
	if err := s.StoreInboundSessions(batch); err != nil {
		t.Fatal(err)
	}

	pending, err := s.ToBackup(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].SessionID != "mg-a" || pending[1].SessionID != "mg-b" {
		t.Fatalf("first batch = %v", sessionIDs(pending))
	}

	refs := make([]domain.SessionKeyRef, len(pending))
	for i, sess := range pending {
		refs[i] = domain.SessionKeyRef{SessionID: sess.SessionID, SenderKey: sess.SenderKey}
	}
	if err := s.MarkBackedUp(refs); err != nil {
		t.Fatal(err)
	}

	pending, err = s.ToBackup(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].SessionID != "mg-c" {
		t.Fatalf("second batch = %v", sessionIDs(pending))
	}

	done, err := s.CountInbound(true)
	if err != nil {
		t.Fatal(err)
	}
	if done != 2 {
		t.Errorf("backed-up count = %d, want 2", done)
	}

	if err := s.ResetBackupMarkers(); err != nil {
		t.Fatal(err)
	}
	pending, err = s.ToBackup(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 {
		t.Errorf("after reset %d pending, want 3", len(pending))
	}
}

func TestBackupVersionRoundtrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.BackupVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Fatalf("fresh store has backup version %q", v)
	}

	if err := s.SetBackupVersion("7"); err != nil {
		t.Fatal(err)
	}
	v, err = s.BackupVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != "7" {
		t.Errorf("backup version = %q, want 7", v)
	}
}

func TestOutboundReplaceClearsSharedWith(t *testing.T) {
	s := newTestStore(t)
	room := "!room:example.org"

	if err := s.StoreOutboundSession(domain.OutboundGroupSession{
		RoomID: room, SessionID: "out-1", Pickle: []byte("p1"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkShared(domain.SharedSessionRecord{
		RoomID: room, SessionID: "out-1", UserID: "@alice:example.org",
		DeviceID: "AAA", DeviceKey: "alice-key", ChainIndex: 2,
	}); err != nil {
		t.Fatal(err)
	}

	idx, found, err := s.SharedInfo(room, "out-1", "@alice:example.org", "AAA")
	if err != nil || !found || idx != 2 {
		t.Fatalf("SharedInfo: idx=%d found=%v err=%v", idx, found, err)
	}

	// Rotating to a new session starts an empty shared-with set.
	if err := s.StoreOutboundSession(domain.OutboundGroupSession{
		RoomID: room, SessionID: "out-2", Pickle: []byte("p2"),
	}); err != nil {
		t.Fatal(err)
	}

	cur, found, err := s.CurrentOutboundSession(room)
	if err != nil || !found {
		t.Fatalf("CurrentOutboundSession: found=%v err=%v", found, err)
	}
	if cur.SessionID != "out-2" {
		t.Errorf("current session = %q", cur.SessionID)
	}
	if _, found, _ := s.SharedInfo(room, "out-1", "@alice:example.org", "AAA"); found {
		t.Error("shared-with record survived the session rotation")
	}
}

func TestSharedWithAggregatesLowestIndexPerUser(t *testing.T) {
	s := newTestStore(t)
	room, session := "!room:example.org", "out-9"

	records := []domain.SharedSessionRecord{
		{RoomID: room, SessionID: session, UserID: "@bob:x", DeviceID: "B1", DeviceKey: "kb1", ChainIndex: 7},
		{RoomID: room, SessionID: session, UserID: "@bob:x", DeviceID: "B2", DeviceKey: "kb2", ChainIndex: 3},
		{RoomID: room, SessionID: session, UserID: "@eve:x", DeviceID: "E1", DeviceKey: "ke1", ChainIndex: 0},
	}
	for _, rec := range records {
		if err := s.MarkShared(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SharedWith(room, session)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["@bob:x"] != 3 || got["@eve:x"] != 0 {
		t.Errorf("SharedWith = %v", got)
	}
}

func sessionIDs(sessions []domain.InboundGroupSession) []string {
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.SessionID
	}
	return ids
}
