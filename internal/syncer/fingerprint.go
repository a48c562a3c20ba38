package syncer

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Fingerprint derives the stable identity of a message from its content.
// The same physical email always hashes to the same identity, so re-syncing
// never creates a duplicate row, and UID reuse across re-syncs is harmless.
// Fields are separated by NUL so ("ab","c") and ("a","bc") cannot collide.
func Fingerprint(sender, subject, body string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
