// Package checksum computes the X-VERIFY header used by the PhonePe PG API.
//
// A token is hex(sha256(base64(payload) + path + secret)) followed by
// "###" and the salt key index.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"
)

const Separator = "###"

// Sign returns the verification token for payload. Status checks sign an
// empty payload with the status path.
func Sign(payload []byte, secret, path string, keyIndex int) string {
	return digest(Encode(payload), secret, path) + Separator + strconv.Itoa(keyIndex)
}

// SignEncoded is Sign for a payload that is already base64 encoded, as in
// inbound callbacks.
func SignEncoded(encoded, secret, path string, keyIndex int) string {
	return digest(encoded, secret, path) + Separator + strconv.Itoa(keyIndex)
}

// Verify reports whether token matches the expected signature of the
// base64 encoded payload.
func Verify(token, encoded, secret, path string, keyIndex int) bool {
	want := SignEncoded(encoded, secret, path, keyIndex)
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

func Encode(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

func digest(encoded, secret, path string) string {
	sum := sha256.Sum256([]byte(encoded + path + secret))
	return hex.EncodeToString(sum[:])
}
