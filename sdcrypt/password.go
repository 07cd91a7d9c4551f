package sdcrypt

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// PasswordIterations is the PBKDF2 iteration count for password hashes.
	PasswordIterations = 100_000

	// PasswordSaltLen is the length in bytes of a password hash salt.
	PasswordSaltLen = 16
)

// HashPassword returns a salted PBKDF2 hash of password, in the format
// "<salt-hex>:<digest-hex>" (32 and 64 hex digits respectively).
func HashPassword(password string) (string, error) {
	salt, err := Random(PasswordSaltLen)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := PBKDF2([]byte(password), salt, PasswordIterations)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sum[:]), nil
}

// VerifyPassword reports whether password matches a hash previously
// generated by HashPassword. Malformed stored values never match.
func VerifyPassword(password, stored string) bool {
	saltHex, sumHex, ok := strings.Cut(stored, ":")
	if !ok || strings.Contains(sumHex, ":") {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(sumHex)
	if err != nil || len(want) != Size {
		return false
	}
	got := PBKDF2([]byte(password), salt, PasswordIterations)
	return Equal(got[:], want)
}

// DeriveKey returns the storage encryption key for a passphrase, which is
// the SHA-256 digest of the passphrase.
func DeriveKey(passphrase string) [KeySize]byte {
	return Sum256([]byte(passphrase))
}

// Fingerprint returns a short non-secret identifier for key, suitable for
// showing to a human to confirm two keys match.
func Fingerprint(key *[KeySize]byte) string {
	sum := Sum256(key[:])
	return hex.EncodeToString(sum[:6])
}
