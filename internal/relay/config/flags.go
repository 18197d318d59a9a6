package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmarkelov/notesync/internal/flagx"
)

// parseFlags populates selected relay Config fields from command-line
// flags.
//
// Supported flags:
//
//	-a string   TCP bind address (e.g., ":7430")
//	-d string   PostgreSQL DSN (empty = in-memory storage)
//	-s string   session token HMAC secret
//	-t int      invitation key TTL, minutes
//
// The function first filters os.Args to only the flags it recognizes
// using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run relay")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	invitationTTL := fs.Int("t", int(config.InvitationTTL.Minutes()), "invitation key TTL (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.InvitationTTL = time.Duration(*invitationTTL) * time.Minute
}
