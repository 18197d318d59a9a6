// Package config handles configuration for the relay server, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmarkelov/notesync/internal/common"
)

// Config holds runtime settings for the relay.
//
// Fields:
//   - EndpointAddr: bind address for the device-facing TCP endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx); empty selects in-memory storage.
//   - SecretKey: HMAC secret signing session tokens (HS256). Do not use
//     the development default in production.
//   - SessionTokenValidity: lifetime of issued session tokens.
//   - InvitationTTL: how long generated invitation keys stay redeemable.
//   - SweepInterval: how often expired invitations are purged.
type Config struct {
	EndpointAddr         string
	DatabaseDSN          string
	SecretKey            string
	SessionTokenValidity time.Duration
	InvitationTTL        time.Duration
	SweepInterval        time.Duration
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":7430"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.SessionTokenValidity = 90 * 24 * time.Hour
	c.InvitationTTL = common.InvitationKeyTTL
	c.SweepInterval = time.Minute
}

// LoadConfig builds a Config by applying defaults, then overlaying
// values from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
