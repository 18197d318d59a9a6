package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmarkelov/notesync/internal/common"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":7430", c.EndpointAddr)
	assert.Equal(t, "", c.DatabaseDSN)
	assert.Equal(t, 90*24*time.Hour, c.SessionTokenValidity)
	assert.Equal(t, common.InvitationKeyTTL, c.InvitationTTL)
	assert.Equal(t, time.Minute, c.SweepInterval)
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"cmd", "-a", ":9000", "-d", "postgres://localhost/relay", "-t", "30"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":9000", cfg.EndpointAddr)
	assert.Equal(t, "postgres://localhost/relay", cfg.DatabaseDSN)
	assert.Equal(t, 30*time.Minute, cfg.InvitationTTL)
	// Untouched flags keep their defaults.
	assert.Equal(t, "secretKey", cfg.SecretKey)
}
