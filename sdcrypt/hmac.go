package sdcrypt

import "encoding/binary"

const (
	ipad = 0x36
	opad = 0x5c
)

// HMAC returns the HMAC-SHA256 of data under key.
func HMAC(key, data []byte) [Size]byte {
	var k [BlockSize]byte
	if len(key) > BlockSize {
		sum := Sum256(key)
		copy(k[:], sum[:])
	} else {
		copy(k[:], key)
	}
	var ik, ok [BlockSize]byte
	for i, b := range k {
		ik[i] = b ^ ipad
		ok[i] = b ^ opad
	}

	inner := New()
	inner.Write(ik[:])
	inner.Write(data)
	isum := inner.Sum(nil)

	outer := New()
	outer.Write(ok[:])
	outer.Write(isum)

	var out [Size]byte
	outer.Sum(out[:0])
	return out
}

// PBKDF2 derives a 32-byte key from password and salt using PBKDF2 with
// HMAC-SHA256 as the pseudorandom function. Only the first output block is
// computed, so the result is exactly one HMAC output (dkLen = 32).
// Values of iterations less than 1 are treated as 1.
func PBKDF2(password, salt []byte, iterations int) [Size]byte {
	iterations = max(iterations, 1)

	// U1 = PRF(P, S || INT(1))
	msg := make([]byte, len(salt)+4)
	copy(msg, salt)
	binary.BigEndian.PutUint32(msg[len(salt):], 1)

	u := HMAC(password, msg)
	out := u
	for range iterations - 1 {
		u = HMAC(password, u[:])
		for i := range out {
			out[i] ^= u[i]
		}
	}
	return out
}

// Equal reports whether a and b have the same contents. The time taken
// depends on the lengths of the inputs but not on their contents.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
