// Package common contains shared constants and sentinel errors used across
// notesync components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Transport / session errors. These are recoverable: callers either
	// retry with backoff or report a failed attempt.
	ErrNotConnected = errors.New("not connected")

	// Protocol errors: a single malformed or unknown message. The
	// offending message is dropped, the connection stays alive.
	ErrProtocol = errors.New("protocol error")

	// Authorization errors: a message from a device that is not trusted.
	ErrUnauthorized = errors.New("unauthorized")

	// Crypto errors: authentication tag mismatch, wrong passphrase or a
	// corrupted bundle. The affected file sync attempt fails, nothing else.
	ErrDecryptionFailed = errors.New("decryption failed")

	// Invitation key lifecycle errors.
	ErrInvalidInvitationKey = errors.New("invalid invitation key")
	ErrKeyExpired           = errors.New("invitation key expired")
	ErrKeyConsumed          = errors.New("invitation key already used")

	// Relay session token errors.
	ErrInvalidToken = errors.New("invalid session token")

	// Validation errors: structurally invalid field values, e.g. a file
	// path escaping the synchronized directory.
	ErrValidation = errors.New("validation error")
)
