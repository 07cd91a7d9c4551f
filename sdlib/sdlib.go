// Package sdlib is a support library for the sealdb tool.
//
// It holds the consumers of the document store that run on top of the engine
// (user accounts, sessions, and port allocations) along with the terminal,
// editor, and file-watching helpers used by the command-line tool.
package sdlib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creachadair/getpass"
	"github.com/creachadair/sealdb/sddb"
	"go.uber.org/zap"
)

// OpenDB opens the database whose data file is at dbPath, using the provided
// passphrase. Events from the database are delivered to pub, if it is
// non-nil.
func OpenDB(dbPath, passphrase string, log *zap.SugaredLogger, pub sddb.Publisher) (*sddb.DB, error) {
	db, err := sddb.Open(sddb.Options{
		Path:        dbPath,
		Passphrase:  passphrase,
		Logger:      log,
		Events:      pub,
		SyncRetries: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", dbPath, err)
	}
	return db, nil
}

// GetPassphrase prompts the user at the terminal for a passphrase with echo
// disabled.  An empty passprase is permitted; the caller must check for that
// case if an empty passphrase is not wanted.
func GetPassphrase(prompt string) (string, error) {
	passphrase, err := getpass.Prompt(prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return passphrase, nil
}

// ConfirmPassphrase prompts the user at the terminal for a passphrase with
// echo disabled, then prompts again for confirmation and reports an error if
// the two copies are not equal.
func ConfirmPassphrase(prompt string) (string, error) {
	passphrase, err := getpass.Prompt(prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	confirm, err := getpass.Prompt("Confirm " + strings.ToLower(prompt))
	if err != nil {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	if confirm != passphrase {
		return "", errors.New("passphrases do not match")
	}
	return passphrase, nil
}
