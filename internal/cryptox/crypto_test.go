package cryptox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/dmarkelov/notesync/internal/common"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	key1 := DeriveKey([]byte("correct horse battery staple"))
	key2 := DeriveKey([]byte("correct horse battery staple"))

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same key for same passphrase, got different")
	}
	if len(key1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key1))
	}
}

func TestDeriveKey_DifferentPassphrases(t *testing.T) {
	key1 := DeriveKey([]byte("passphrase-one"))
	key2 := DeriveKey([]byte("passphrase-two"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different keys for different passphrases, got same")
	}
}

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox([]byte("shared secret"))
	if err != nil {
		t.Fatalf("NewBox error: %v", err)
	}

	tests := [][]byte{
		[]byte("Content A"),
		[]byte(""),
		bytes.Repeat([]byte("markdown text compresses well\n"), 200),
		common.GenerateRandByteArray(4096), // incompressible
	}

	for _, plaintext := range tests {
		bundle, err := box.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt error: %v", err)
		}
		got, err := box.Decrypt(bundle)
		if err != nil {
			t.Fatalf("Decrypt error: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
		}
	}
}

func TestBox_Decrypt_FlippedByte(t *testing.T) {
	box, err := NewBox([]byte("shared secret"))
	if err != nil {
		t.Fatalf("NewBox error: %v", err)
	}

	bundle, err := box.Encrypt([]byte("some note content"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(bundle)
	if err != nil {
		t.Fatalf("decode bundle: %v", err)
	}

	// Flip one byte at every position; each corruption must be refused.
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := box.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		if !errors.Is(err, common.ErrDecryptionFailed) {
			t.Fatalf("byte %d: want ErrDecryptionFailed, got %v", i, err)
		}
	}
}

func TestBox_Decrypt_WrongPassphrase(t *testing.T) {
	sender, err := NewBox([]byte("the right passphrase"))
	if err != nil {
		t.Fatalf("NewBox error: %v", err)
	}
	receiver, err := NewBox([]byte("the wrong passphrase"))
	if err != nil {
		t.Fatalf("NewBox error: %v", err)
	}

	bundle, err := sender.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	if _, err := receiver.Decrypt(bundle); !errors.Is(err, common.ErrDecryptionFailed) {
		t.Fatalf("want ErrDecryptionFailed, got %v", err)
	}
}

func TestBox_Decrypt_MalformedBundle(t *testing.T) {
	box, err := NewBox([]byte("shared secret"))
	if err != nil {
		t.Fatalf("NewBox error: %v", err)
	}

	for _, bundle := range []string{"", "not base64!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := box.Decrypt(bundle); !errors.Is(err, common.ErrDecryptionFailed) {
			t.Fatalf("bundle %q: want ErrDecryptionFailed, got %v", bundle, err)
		}
	}
}

func TestBox_Encrypt_FreshNonce(t *testing.T) {
	box, err := NewBox([]byte("shared secret"))
	if err != nil {
		t.Fatalf("NewBox error: %v", err)
	}

	b1, err := box.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	b2, err := box.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if strings.Compare(b1, b2) == 0 {
		t.Fatalf("expected distinct bundles for repeated encryption")
	}
}
