package tracker

import "crypto/rand"

// Page ids are opaque: a fixed 16 characters, a literal leading "p", and
// an id-safe alphabet for the remainder. The server validates exactly this
// shape.
const (
	pageIDLength   = 16
	pageIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
)

// NewPageID generates a fresh page id.
func NewPageID() string {
	buf := make([]byte, pageIDLength-1)
	rand.Read(buf)
	// 64-character alphabet, so the modulo introduces no bias
	for i, b := range buf {
		buf[i] = pageIDAlphabet[int(b)%len(pageIDAlphabet)]
	}
	return "p" + string(buf)
}
