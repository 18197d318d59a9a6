// Package hashx computes content digests for file records. Hashes are
// always taken over plaintext, never ciphertext, so two devices that
// encrypt the same content with different nonces still agree on the
// digest.
package hashx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash of a file's plaintext content.
type Digest [32]byte

// Sum computes the content digest of data.
func Sum(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// String returns the canonical hex form used in messages, logs and the
// local index.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Parse converts a 64-character hex string back into a Digest.
func Parse(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parsing content digest: %w", err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("content digest is %d bytes, want %d", len(raw), len(d))
	}
	copy(d[:], raw)
	return d, nil
}

// Compare imposes the total order used to break equal-mtime conflicts:
// it returns -1, 0 or 1 as a sorts before, equal to or after b. Both
// peers evaluate the same pair and therefore converge on the same
// winner without another round trip.
func Compare(a, b Digest) int {
	return bytes.Compare(a[:], b[:])
}
