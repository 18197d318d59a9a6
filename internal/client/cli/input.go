package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// passphraseEnv lets non-interactive setups (tests, service units) skip
// the terminal prompt.
const passphraseEnv = "NOTESYNC_PASSPHRASE"

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// GetPassphrase obtains the shared vault passphrase: from the
// environment if set, otherwise from the terminal without echo. A
// newline is printed after the read to keep the UI tidy.
//
// The returned byte slice should be wiped by the caller when no longer
// needed.
func GetPassphrase(w io.Writer) ([]byte, error) {
	if env := os.Getenv(passphraseEnv); env != "" {
		return []byte(env), nil
	}

	if _, err := fmt.Fprint(w, "Enter passphrase: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	return pw, nil
}
