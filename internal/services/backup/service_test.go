package backup

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"keyvault/internal/domain"
	"keyvault/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "keys.db"), "pass", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, zerolog.Nop()), st
}

func seedSessions(t *testing.T, st *store.Store, ids ...string) {
	t.Helper()
	sessions := make([]domain.InboundGroupSession, len(ids))
	for i, id := range ids {
		sessions[i] = domain.InboundGroupSession{
			SessionID: id,
			SenderKey: "sender-key",
			RoomID:    "!room:example.org",
			Pickle:    []byte("pickle@" + id),
		}
	}
	if err := st.StoreInboundSessions(sessions); err != nil {
		t.Fatal(err)
	}
}

func TestBackupProgress(t *testing.T) {
	svc, st := newTestService(t)
	seedSessions(t, st, "mg-1", "mg-2", "mg-3")

	batch, err := svc.PendingBatch(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch size %d, want 2", len(batch))
	}

	refs := make([]domain.SessionKeyRef, len(batch))
	for i, sess := range batch {
		refs[i] = domain.SessionKeyRef{SessionID: sess.SessionID, SenderKey: sess.SenderKey}
	}
	if err := svc.MarkDone(refs); err != nil {
		t.Fatal(err)
	}

	counts, err := svc.Progress()
	if err != nil {
		t.Fatal(err)
	}
	if counts.Total != 3 || counts.BackedUp != 2 {
		t.Errorf("counts = %+v", counts)
	}

	// The next batch only contains what is still pending.
	batch, err = svc.PendingBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].SessionID != "mg-3" {
		t.Errorf("pending = %+v", batch)
	}
}

func TestMarkDoneEmptyBatch(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.MarkDone(nil); err != nil {
		t.Fatalf("MarkDone(nil): %v", err)
	}
}

func TestSyncVersionRotationResetsMarkers(t *testing.T) {
	svc, st := newTestService(t)
	seedSessions(t, st, "mg-1", "mg-2")

	if err := svc.SyncVersion("1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkDone([]domain.SessionKeyRef{
		{SessionID: "mg-1", SenderKey: "sender-key"},
		{SessionID: "mg-2", SenderKey: "sender-key"},
	}); err != nil {
		t.Fatal(err)
	}

	// Same version: markers stay.
	if err := svc.SyncVersion("1"); err != nil {
		t.Fatal(err)
	}
	counts, err := svc.Progress()
	if err != nil {
		t.Fatal(err)
	}
	if counts.BackedUp != 2 {
		t.Fatalf("markers lost on a same-version sync: %+v", counts)
	}

	// New version: everything needs re-uploading.
	if err := svc.SyncVersion("2"); err != nil {
		t.Fatal(err)
	}
	counts, err = svc.Progress()
	if err != nil {
		t.Fatal(err)
	}
	if counts.BackedUp != 0 {
		t.Errorf("markers survived a version rotation: %+v", counts)
	}

	v, err := st.BackupVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != "2" {
		t.Errorf("recorded version = %q, want 2", v)
	}
}
