// Package cryptox is the boundary where plaintext file content is
// turned into something safe to hand to the relay. Everything beyond
// Encrypt is ciphertext; the relay never sees file content in the
// clear.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/argon2"

	"github.com/dmarkelov/notesync/internal/common"
)

// appSalt is the fixed application-wide KDF salt. It is deliberately
// not secret: confidentiality comes from the passphrase being unique to
// the trust group. A weak passphrase is a documented risk, not a
// defect.
var appSalt = []byte("notesync.vault.kdf.v1")

const (
	bundleVersion = 1

	// Compression tags stored in the bundle header. Protocol
	// constants — changing them breaks decryption of existing
	// bundles.
	compressionNone uint8 = 0
	compressionZstd uint8 = 1
)

// DeriveKey derives the 32-byte symmetric key from the shared
// passphrase. The derivation is deterministic so every device in the
// trust group arrives at the same key.
func DeriveKey(passphrase []byte) []byte {
	return argon2.IDKey(passphrase, appSalt, 1, 64*1024, 4, 32)
}

// Box performs authenticated encryption of file payloads with a key
// derived once from the configured passphrase. It is stateless apart
// from the derived key and the reusable compressor.
type Box struct {
	aead cipher.AEAD
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// NewBox derives the key from passphrase and prepares the AEAD. The
// passphrase slice is not retained.
func NewBox(passphrase []byte) (*Box, error) {
	key := DeriveKey(passphrase)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead, enc: enc, dec: dec}, nil
}

// Encrypt seals plaintext into a self-describing bundle string:
// base64(version ‖ compression ‖ nonce ‖ ciphertext). The payload is
// zstd-compressed first when that actually shrinks it (text almost
// always does; already-compressed attachments do not).
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	payload := plaintext
	tag := compressionNone

	if compressed := b.enc.EncodeAll(plaintext, nil); len(compressed) < len(plaintext) {
		payload = compressed
		tag = compressionZstd
	}

	nonce := common.GenerateRandByteArray(b.aead.NonceSize())

	out := make([]byte, 0, 2+len(nonce)+len(payload)+b.aead.Overhead())
	out = append(out, bundleVersion, tag)
	out = append(out, nonce...)
	out = b.aead.Seal(out, nonce, payload, out[:2])

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a bundle produced by Encrypt. Any tampering, truncation
// or passphrase mismatch yields common.ErrDecryptionFailed; partially
// decrypted data is never returned.
func (b *Box) Decrypt(bundle string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	nonceSize := b.aead.NonceSize()
	if len(raw) < 2+nonceSize+b.aead.Overhead() {
		return nil, fmt.Errorf("%w: bundle too short", common.ErrDecryptionFailed)
	}
	if raw[0] != bundleVersion {
		return nil, fmt.Errorf("%w: unknown bundle version %d", common.ErrDecryptionFailed, raw[0])
	}

	header := raw[:2]
	nonce := raw[2 : 2+nonceSize]
	ciphertext := raw[2+nonceSize:]

	payload, err := b.aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	switch header[1] {
	case compressionNone:
		return payload, nil
	case compressionZstd:
		plaintext, err := b.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
		}
		return plaintext, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", common.ErrDecryptionFailed, header[1])
	}
}
