// Package idgen generates short, stable identifiers for entities that need
// a human-typeable handle in logs and command output (capability call
// sites, timer and trigger ids) without the verbosity of a full UUID.
package idgen

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts a byte slice to a base36 string of specified length.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	var result strings.Builder
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// Short returns a random base36 id of the given length prefixed with
// "<prefix>-", e.g. Short("tmr", 5) -> "tmr-k3f9a".
func Short(prefix string, length int) string {
	numBytes := (length*6)/8 + 1
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the system entropy source is broken;
		// fall back to an all-zero id rather than panicking mid-dispatch.
		buf = make([]byte, numBytes)
	}
	id := EncodeBase36(buf, length)
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
