package cryptobox_test

import (
	"bytes"
	"errors"
	"testing"

	"keyvault/internal/cryptobox"
)

func TestSealOpen_Roundtrip(t *testing.T) {
	box := cryptobox.New("pass")

	raw := []byte("opaque account pickle")
	blob, err := box.Seal(raw)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(blob, raw) {
		t.Fatal("sealed blob leaks plaintext")
	}

	got, err := box.Open(blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("mismatch after open")
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	blob, err := cryptobox.New("correct").Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := cryptobox.New("wrong").Open(blob); !errors.Is(err, cryptobox.ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	if _, err := cryptobox.New("p").Open([]byte("not an envelope")); err == nil {
		t.Fatal("expected error for garbage blob")
	}
}
