// Package models defines relay-side persistence records. The relay
// stores routing identity only: device registrations and invitation
// keys. File content never reaches relay storage.
package models

import "time"

// Device is a registered device identity as the relay sees it: opaque
// stable id, a display name, and when it was last connected. Trust
// relationships between devices are a client-side concern and are never
// stored here.
type Device struct {
	ID       string
	Name     string
	LastSeen time.Time
}

// Invitation is a short-lived, single-use key issued by a device to
// bootstrap trust with another device. The first successful redemption
// sets Consumed; later attempts behave as a lookup miss.
type Invitation struct {
	Key       string
	DeviceID  string
	ExpiresAt time.Time
	Consumed  bool
}
