package workflow

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the hex BLAKE2b-256 digest of a workflow document's raw
// bytes. Run ids embed a prefix of it, and resume compares the recorded
// digest against the on-disk document: any byte change counts as drift.
func Hash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
