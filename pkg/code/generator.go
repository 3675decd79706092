// Package code provides random identifier generation utilities.
package code

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// RandomUpperHex returns n random bytes from a CSPRNG, hex encoded
// uppercase. Activation code random parts use this form.
func RandomUpperHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// RandomHex returns n random bytes, hex encoded lowercase.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// requestIDBytes is the random length of a request ID.
const requestIDBytes = 8

// RequestID returns a fresh request identifier of the form req-<hex>.
// Collision resistance only needs to cover log correlation, not
// cryptographic uniqueness.
func RequestID() string {
	id, err := RandomHex(requestIDBytes)
	if err != nil {
		// crypto/rand failing is a platform fault; degrade to a
		// constant rather than panicking in a logging path.
		return "req-00000000"
	}
	return "req-" + id
}
