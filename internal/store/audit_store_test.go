package store

import (
	"testing"

	"keyvault/internal/domain"
)

func TestAuditTrailNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for _, sessionID := range []string{"mg-1", "mg-2", "mg-3"} {
		err := s.SaveIncomingRequest("req-"+sessionID, "@alice:x", "A1", domain.RequestBody{
			RoomID: "!room:x", SessionID: sessionID, Algorithm: "m.megolm.v1.aes-sha2",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	page, cursor, err := s.PageAudit(nil, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 {
		t.Fatalf("got %d entries, want 3", len(page))
	}
	if page[0].SessionID != "mg-3" || page[2].SessionID != "mg-1" {
		t.Errorf("not newest-first: %s .. %s", page[0].SessionID, page[2].SessionID)
	}
	if cursor != 0 {
		t.Errorf("exhausted listing returned cursor %d", cursor)
	}
	for _, e := range page {
		if e.EntryID == "" || e.CreatedUTC == 0 {
			t.Errorf("entry missing id or timestamp: %+v", e)
		}
	}
}

func TestAuditCursorPagination(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		err := s.SaveOutgoingForward(domain.RequestBody{RoomID: "!r:x", SessionID: "mg"},
			"@bob:x", "B1", int64(i))
		if err != nil {
			t.Fatal(err)
		}
	}

	page, cursor, err := s.PageAudit(nil, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || cursor == 0 {
		t.Fatalf("first page: %d entries, cursor %d", len(page), cursor)
	}
	if page[0].Detail != "4" {
		t.Errorf("first entry detail = %q, want the latest forward", page[0].Detail)
	}

	page, cursor, err = s.PageAudit(nil, cursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Detail != "2" {
		t.Fatalf("second page: %d entries, first detail %q", len(page), page[0].Detail)
	}

	page, cursor, err = s.PageAudit(nil, cursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || cursor != 0 {
		t.Fatalf("final page: %d entries, cursor %d", len(page), cursor)
	}
}

func TestAuditKindFilter(t *testing.T) {
	s := newTestStore(t)
	body := domain.RequestBody{RoomID: "!r:x", SessionID: "mg", Algorithm: "m.megolm.v1.aes-sha2"}

	if err := s.SaveOutgoingRequest(domain.OutgoingKeyRequest{
		RequestID: "req-1", Body: body,
		Recipients: map[string][]string{"@alice:x": {"A1"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveWithheld(domain.WithheldRecord{
		RoomID: "!r:x", SessionID: "mg", Code: domain.WithheldCodeUnverified,
	}, "@alice:x", "A1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveIncomingForward(body, "A1", "req-1"); err != nil {
		t.Fatal(err)
	}

	withheld, _, err := s.PageAudit([]domain.AuditKind{domain.AuditWithheld}, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(withheld) != 1 || withheld[0].Detail != domain.WithheldCodeUnverified {
		t.Fatalf("withheld filter: %+v", withheld)
	}

	both, _, err := s.PageAudit([]domain.AuditKind{
		domain.AuditOutgoingRequest, domain.AuditIncomingForward,
	}, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 2 {
		t.Fatalf("two-kind filter returned %d entries", len(both))
	}
}
