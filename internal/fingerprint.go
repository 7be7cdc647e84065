package internal

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ConnFingerprint derives a short, stable, human-loggable identifier for a
// connection from its two endpoint strings and initial sequence numbers. It
// carries no security meaning: it exists purely so log lines from the two
// halves of a handshake (client log, server log) can be correlated by a
// reader without printing full addresses and raw sequence numbers together.
func ConnFingerprint(local, remote string, iss uint32) string {
	h := blake2b.Sum256(append([]byte(local+"|"+remote), byte(iss), byte(iss>>8), byte(iss>>16), byte(iss>>24)))
	return hex.EncodeToString(h[:6])
}
