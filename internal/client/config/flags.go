package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmarkelov/notesync/internal/flagx"
)

// parseFlags populates selected client Config fields from command-line
// flags.
//
// Supported flags:
//
//	-a string   relay address (host:port)
//	-v string   synchronized directory
//	-f string   SQLite database path (empty = in-memory)
//	-n string   device display name
//	-i int      full sync interval, minutes (0 = on reconnect only)
//
// The function first filters os.Args to only the flags it recognizes
// using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-v", "-f", "-n", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.RelayAddr, "a", config.RelayAddr, "relay address")
	fs.StringVar(&config.VaultDir, "v", config.VaultDir, "synchronized directory")
	fs.StringVar(&config.DatabasePath, "f", config.DatabasePath, "database path")
	fs.StringVar(&config.DeviceName, "n", config.DeviceName, "device name")

	fullSync := fs.Int("i", int(config.FullSyncInterval.Minutes()), "full sync interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.FullSyncInterval = time.Duration(*fullSync) * time.Minute
}
