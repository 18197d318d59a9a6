package common

import "time"

const (
	// InvitationKeyLength is the number of characters in a generated
	// invitation key. Redemption rejects anything shorter before any
	// network round trip.
	InvitationKeyLength = 8

	// InvitationKeyMinLength is the minimum acceptable key length on
	// redemption.
	InvitationKeyMinLength = 6

	// InvitationKeyTTL is how long a freshly generated invitation key
	// stays redeemable.
	InvitationKeyTTL = 10 * time.Minute

	// PendingRequestTTL bounds how long an unanswered sync request stays
	// in the pending queue before it is swept.
	PendingRequestTTL = 24 * time.Hour
)
