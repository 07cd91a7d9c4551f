// Package sdstore implements the encrypted on-disk image of a sealdb
// database.
//
// # Storage Format
//
// An image is a single byte string in this layout:
//
//	byte 0      format version (currently 1)
//	bytes 1..13 12-byte ChaCha20 nonce
//	bytes 13..  ChaCha20 ciphertext of the serialized database
//
// The nonce is freshly generated for every image. The ciphertext carries no
// authentication tag, so a wrong key is detected only when the decrypted
// plaintext fails to decode.
package sdstore

import (
	"errors"
	"fmt"

	"github.com/creachadair/sealdb/sdcrypt"
)

// Version is the storage format version written by this package.
const Version = 1

// HeaderLen is the length in bytes of the unencrypted image header.
const HeaderLen = 1 + sdcrypt.NonceSize

// KeyLen is the required length in bytes of an encryption key.
const KeyLen = sdcrypt.KeySize

var (
	// ErrShortImage is reported by Unseal for an image too short to contain a
	// header and any ciphertext.
	ErrShortImage = errors.New("image is too short")

	// ErrVersion is reported by Unseal for an image with an unknown format
	// version.
	ErrVersion = errors.New("unsupported format version")
)

// Seal encrypts plain with key under a fresh random nonce and returns the
// complete image. It reports an error if no nonce could be generated; it
// never falls back to a fixed nonce.
func Seal(key *[KeyLen]byte, plain []byte) ([]byte, error) {
	nonce, err := sdcrypt.RandomNonce()
	if err != nil {
		return nil, err
	}
	img := make([]byte, HeaderLen+len(plain))
	img[0] = Version
	copy(img[1:HeaderLen], nonce[:])
	sdcrypt.XORKeyStream(img[HeaderLen:], plain, key, nonce, 0)
	return img, nil
}

// Unseal decrypts an image produced by Seal and returns the plaintext.
func Unseal(key *[KeyLen]byte, img []byte) ([]byte, error) {
	if len(img) <= HeaderLen {
		return nil, fmt.Errorf("%w (%d bytes)", ErrShortImage, len(img))
	} else if img[0] != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, img[0], Version)
	}
	var nonce [sdcrypt.NonceSize]byte
	copy(nonce[:], img[1:HeaderLen])
	return sdcrypt.ChaCha20(key, &nonce, img[HeaderLen:]), nil
}
