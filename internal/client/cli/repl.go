package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	status(ctx context.Context) error
	devices(ctx context.Context) error
	pending(ctx context.Context) error
	invite(ctx context.Context) error
	join(ctx context.Context, key string) error
	accept(ctx context.Context, requestID string, session bool) error
	decline(ctx context.Context, requestID string) error
	revoke(ctx context.Context, deviceID string) error
	ignore(ctx context.Context, pattern string) error
	sync(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the notesync client.
//
// It reads a line from the provided scanner, parses the first token as
// the command, and dispatches to methods on 'a'. Unknown commands are
// reported back to the user. The loop exits on scanner EOF or when the
// user types "exit" or "quit".
//
// Commands:
//
//   - help                      — show available commands
//   - status                    — connection and index summary
//   - devices                   — trusted devices and their presence
//   - pending                   — sync requests awaiting an answer
//   - invite                    — create an invitation key
//   - join <key>                — redeem a key from another device
//   - accept <id> [session]     — grant trust (session = this run only)
//   - decline <id>              — refuse a sync request
//   - revoke <device-id>        — withdraw trust
//   - ignore <glob>             — never sync files matching the pattern
//   - sync                      — run a full sync now
//   - exit | quit               — leave the program
//
// Any errors returned by command handlers are ignored here; handlers
// print their own errors. This keeps the REPL loop resilient and
// focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		fmt.Printf("ns %s> ", statusFn())
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			printlnFn("Available commands: status, devices, pending, invite, join <key>, accept <id> [session], decline <id>, revoke <device-id>, ignore <glob>, sync, exit")

		case "status":
			_ = a.status(ctx)

		case "devices":
			_ = a.devices(ctx)

		case "pending":
			_ = a.pending(ctx)

		case "invite":
			_ = a.invite(ctx)

		case "join":
			if len(args) == 0 {
				printlnFn("Usage: join <key>")
				continue
			}
			_ = a.join(ctx, args[0])

		case "accept":
			if len(args) == 0 {
				printlnFn("Usage: accept <request-id> [session]")
				continue
			}
			session := len(args) > 1 && args[1] == "session"
			_ = a.accept(ctx, args[0], session)

		case "decline":
			if len(args) == 0 {
				printlnFn("Usage: decline <request-id>")
				continue
			}
			_ = a.decline(ctx, args[0])

		case "revoke":
			if len(args) == 0 {
				printlnFn("Usage: revoke <device-id>")
				continue
			}
			_ = a.revoke(ctx, args[0])

		case "ignore":
			if len(args) == 0 {
				printlnFn("Usage: ignore <glob>")
				continue
			}
			_ = a.ignore(ctx, args[0])

		case "sync":
			_ = a.sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
