package room

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet avoids ambiguous glyphs (0/O, 1/I/L) since players type the
// code off someone else's screen.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the length of a human-shareable room code.
const CodeLength = 6

// GenerateCode returns a random room join code.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
