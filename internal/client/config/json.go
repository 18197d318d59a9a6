package config

import (
	"encoding/json"
	"os"

	"github.com/dmarkelov/notesync/internal/flagx"
	"github.com/dmarkelov/notesync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It uses
// timex.Duration so intervals can be given either as strings like "5m"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	RelayAddr        string         `json:"relay_addr"`
	VaultDir         string         `json:"vault_dir"`
	DatabasePath     string         `json:"database_path"`
	DeviceName       string         `json:"device_name"`
	FullSyncInterval timex.Duration `json:"full_sync_interval"`
	PingInterval     timex.Duration `json:"ping_interval"`
	ReconnectMin     timex.Duration `json:"reconnect_min"`
	ReconnectMax     timex.Duration `json:"reconnect_max"`
	IgnorePatterns   []string       `json:"ignore_patterns"`
}

// parseJson overlays Config with values loaded from the JSON file named
// by the -c/-config flag. Missing file means nothing to overlay; an
// unreadable or invalid file panics (callers treat that as a startup
// failure).
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.RelayAddr != "" {
		config.RelayAddr = c.RelayAddr
	}
	if c.VaultDir != "" {
		config.VaultDir = c.VaultDir
	}
	if c.DatabasePath != "" {
		config.DatabasePath = c.DatabasePath
	}
	if c.DeviceName != "" {
		config.DeviceName = c.DeviceName
	}
	if c.FullSyncInterval.Duration != 0 {
		config.FullSyncInterval = c.FullSyncInterval.Duration
	}
	if c.PingInterval.Duration != 0 {
		config.PingInterval = c.PingInterval.Duration
	}
	if c.ReconnectMin.Duration != 0 {
		config.ReconnectMin = c.ReconnectMin.Duration
	}
	if c.ReconnectMax.Duration != 0 {
		config.ReconnectMax = c.ReconnectMax.Duration
	}
	if len(c.IgnorePatterns) > 0 {
		config.IgnorePatterns = c.IgnorePatterns
	}
}
