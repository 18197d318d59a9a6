package common

import (
	"crypto/rand"
	"math/big"
)

// GenerateRandByteArray returns size cryptographically random bytes.
// It panics if the system random source fails, which is unrecoverable.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic("common: random source failed: " + err.Error())
	}
	return b
}

// invitationAlphabet deliberately omits easily confused characters
// (0/O, 1/I) so keys survive being read over the phone.
const invitationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MakeInvitationKey generates a random uppercase alphanumeric invitation
// key of InvitationKeyLength characters.
func MakeInvitationKey() (string, error) {
	out := make([]byte, InvitationKeyLength)
	max := big.NewInt(int64(len(invitationAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = invitationAlphabet[n.Int64()]
	}
	return string(out), nil
}
