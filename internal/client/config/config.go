// Package config handles configuration for the sync client, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the client.
//
// Fields:
//   - RelayAddr: host:port of the relay server.
//   - VaultDir: the synchronized directory.
//   - DatabasePath: SQLite file holding identity, trust and the file
//     index; empty selects in-memory storage (state lost on exit).
//   - DeviceName: human-readable name shown to other devices; empty
//     keeps the stored name, or falls back to the hostname.
//   - FullSyncInterval: period of unprompted full syncs; zero disables
//     them (full syncs still run on every reconnect).
//   - PingInterval: relay keepalive period.
//   - ReconnectMin / ReconnectMax: reconnect backoff bounds.
//   - IgnorePatterns: glob patterns for files that never sync.
type Config struct {
	RelayAddr        string
	VaultDir         string
	DatabasePath     string
	DeviceName       string
	FullSyncInterval time.Duration
	PingInterval     time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	IgnorePatterns   []string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.RelayAddr = "localhost:7430"
	c.VaultDir = "./notes"
	c.DatabasePath = "./notesync.db"
	c.DeviceName = ""
	c.FullSyncInterval = 0
	c.PingInterval = 30 * time.Second
	c.ReconnectMin = time.Second
	c.ReconnectMax = 2 * time.Minute
	c.IgnorePatterns = nil
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
