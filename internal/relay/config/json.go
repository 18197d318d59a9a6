package config

import (
	"encoding/json"
	"os"

	"github.com/dmarkelov/notesync/internal/flagx"
	"github.com/dmarkelov/notesync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It uses
// timex.Duration so intervals can be given either as strings like "10m"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	EndpointAddr         string         `json:"endpoint_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	SessionTokenValidity timex.Duration `json:"session_token_validity"`
	InvitationTTL        timex.Duration `json:"invitation_ttl"`
	SweepInterval        timex.Duration `json:"sweep_interval"`
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

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.SessionTokenValidity.Duration != 0 {
		config.SessionTokenValidity = c.SessionTokenValidity.Duration
	}
	if c.InvitationTTL.Duration != 0 {
		config.InvitationTTL = c.InvitationTTL.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
}
