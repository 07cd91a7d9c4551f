package sdlib

import (
	"encoding/binary"

	"github.com/creachadair/sealdb/sdcrypt"
)

// Charset is a bit mask specifying which letters to use in a character-based
// password. A Charset always includes letters.
type Charset int

const (
	// Letters denotes the capital and lowercase ASCII English letters.
	Letters Charset = 0

	// Digits denotes the set of ASCII decimal digits.
	Digits Charset = 1

	// Symbols denotes a set of ASCII punctuation symbols.
	Symbols Charset = 2

	// AllChars denotes a combination of letters, digits, and symbols.
	AllChars = Letters | Digits | Symbols
)

const (
	pwLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" // 52 letters
	pwDigits  = "0123456789"                                           // 10 digits
	pwSymbols = `!#$%&()*+,-./:;<=>?@[]^_{|}~`                         // 28 symbols

	// The number of entropy bits to charge for each character. This is an
	// overestimate safe to use regardless which subset of alphabets are
	// selected. If you change the alphabets, update this constant.
	bitsPerChar = 7 // log2(52 + 10 + 28) = 6.492, round up to 7
)

// RandomChars creates a new randomly-generated password of the given length
// using the specified character types. A minimum length of 8 is enforced, so
// that the result is always acceptable to ValidPassword.
func RandomChars(length int, charset Charset) (string, error) {
	out := make([]byte, max(length, 8))
	chars := expandCharset(charset)
	clen := uint64(len(chars))

	var bits uint64 // entropy bits
	var nb int      // unconsumed entropy count
	for i := range out {
		if nb < bitsPerChar {
			buf, err := sdcrypt.Random(8)
			if err != nil {
				return "", err
			}
			bits, nb = binary.LittleEndian.Uint64(buf), 64
		}
		out[i] = chars[int(bits%clen)]
		bits /= clen
		nb -= bitsPerChar
	}
	return string(out), nil
}

// expandCharset returns the alphabet described by c.
func expandCharset(c Charset) string {
	chars := pwLetters
	if c&Digits != 0 {
		chars += pwDigits
	}
	if c&Symbols != 0 {
		chars += pwSymbols
	}
	return chars
}
