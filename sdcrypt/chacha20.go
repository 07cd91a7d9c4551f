package sdcrypt

import (
	"encoding/binary"
	"math/bits"
)

const (
	// KeySize is the size of a ChaCha20 key in bytes.
	KeySize = 32

	// NonceSize is the size of a ChaCha20 nonce in bytes (RFC 8439).
	NonceSize = 12

	chachaBlockSize = 64
)

// The words of "expand 32-byte k" in little-endian order.
const (
	c0 = 0x61707865
	c1 = 0x3320646e
	c2 = 0x79622d32
	c3 = 0x6b206574
)

// ChaCha20 returns data XORed with the ChaCha20 keystream for key and nonce,
// starting at block counter 0. Encryption and decryption are the same
// operation.
func ChaCha20(key *[KeySize]byte, nonce *[NonceSize]byte, data []byte) []byte {
	out := make([]byte, len(data))
	XORKeyStream(out, data, key, nonce, 0)
	return out
}

// XORKeyStream sets dst to src XORed with the ChaCha20 keystream for key and
// nonce, starting at the given block counter. The dst slice must be at least
// as long as src; dst and src may be the same slice.
func XORKeyStream(dst, src []byte, key *[KeySize]byte, nonce *[NonceSize]byte, counter uint32) {
	if len(dst) < len(src) {
		panic("sdcrypt: output smaller than input")
	}
	var ks [chachaBlockSize]byte
	for len(src) > 0 {
		chachaBlock(&ks, key, nonce, counter)
		n := min(len(src), chachaBlockSize)
		for i := range n {
			dst[i] = src[i] ^ ks[i]
		}
		src, dst = src[n:], dst[n:]
		counter++
	}
}

// chachaBlock computes the 64-byte keystream block for the given counter.
func chachaBlock(out *[chachaBlockSize]byte, key *[KeySize]byte, nonce *[NonceSize]byte, counter uint32) {
	s := [16]uint32{
		c0, c1, c2, c3,
		binary.LittleEndian.Uint32(key[0:]),
		binary.LittleEndian.Uint32(key[4:]),
		binary.LittleEndian.Uint32(key[8:]),
		binary.LittleEndian.Uint32(key[12:]),
		binary.LittleEndian.Uint32(key[16:]),
		binary.LittleEndian.Uint32(key[20:]),
		binary.LittleEndian.Uint32(key[24:]),
		binary.LittleEndian.Uint32(key[28:]),
		counter,
		binary.LittleEndian.Uint32(nonce[0:]),
		binary.LittleEndian.Uint32(nonce[4:]),
		binary.LittleEndian.Uint32(nonce[8:]),
	}
	x := s
	for range 10 {
		// Column rounds.
		quarterRound(&x, 0, 4, 8, 12)
		quarterRound(&x, 1, 5, 9, 13)
		quarterRound(&x, 2, 6, 10, 14)
		quarterRound(&x, 3, 7, 11, 15)

		// Diagonal rounds.
		quarterRound(&x, 0, 5, 10, 15)
		quarterRound(&x, 1, 6, 11, 12)
		quarterRound(&x, 2, 7, 8, 13)
		quarterRound(&x, 3, 4, 9, 14)
	}
	for i := range x {
		binary.LittleEndian.PutUint32(out[4*i:], x[i]+s[i])
	}
}

func quarterRound(x *[16]uint32, a, b, c, d int) {
	x[a] += x[b]
	x[d] = bits.RotateLeft32(x[d]^x[a], 16)
	x[c] += x[d]
	x[b] = bits.RotateLeft32(x[b]^x[c], 12)
	x[a] += x[b]
	x[d] = bits.RotateLeft32(x[d]^x[a], 8)
	x[c] += x[d]
	x[b] = bits.RotateLeft32(x[b]^x[c], 7)
}
