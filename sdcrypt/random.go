package sdcrypt

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Random returns n bytes read from the system random source.  It reports an
// error if the source fails or returns short; it never substitutes fixed
// bytes.
func Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(crand.Reader, buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return buf, nil
}

// RandomHex returns n random bytes encoded as 2n lowercase hex digits.
func RandomHex(n int) (string, error) {
	buf, err := Random(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RandomNonce returns a fresh random ChaCha20 nonce.
func RandomNonce() (*[NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(crand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &nonce, nil
}

// CheckRandom reports an error if the system random source is unusable.
// Callers should treat an error as fatal at startup.
func CheckRandom() error {
	_, err := Random(16)
	return err
}
